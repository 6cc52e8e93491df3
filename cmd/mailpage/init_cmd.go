package main

import (
	"encoding/json"
	"fmt"

	"github.com/emx-mail/mailpage/pkgs/config"
)

func (a *app) handleInit() error {
	root := config.ExampleRootConfig()

	path, err := config.ResolvePath(a.configPath)
	if err != nil {
		data, err := json.MarshalIndent(root, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format example config: %w", err)
		}
		fmt.Println(string(data))
		fmt.Printf("Save this as a file and pass it with --config or set %s.\n", config.EnvConfigPath)
		return nil
	}

	if err := config.SaveConfig(path, root); err != nil {
		return err
	}
	fmt.Printf("Created config file at: %s\n", path)
	fmt.Println("Please edit the file to add your email account credentials.")
	return nil
}
