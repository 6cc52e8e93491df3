package main

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/emx-mail/mailpage/pkgs/config"
)

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func (a *app) loadAccount() (*config.Config, *config.AccountConfig) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'mailpage --config <path> init' to create one\n")
		os.Exit(1)
	}
	acc, err := cfg.GetAccount(a.account)
	if err != nil {
		fatal("%v", err)
	}
	return cfg, acc
}

// truncate truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
