package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/emx-mail/mailpage/pkgs/config"
)

func (a *app) handleFolders(ctx context.Context, acc *config.AccountConfig) error {
	client, err := a.newIMAPClient(acc)
	if err != nil {
		return err
	}

	folders, err := client.ListFolders(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Folders:")
	for _, f := range folders {
		attrs := ""
		if len(f.Attributes) > 0 {
			attrs = " [" + strings.Join(f.Attributes, " ") + "]"
		}
		fmt.Printf("  %s%s\n", f.Name, attrs)
	}
	return nil
}
