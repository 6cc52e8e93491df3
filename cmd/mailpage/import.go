package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/emx-mail/mailpage/pkgs/config"
)

type importFlags struct {
	folder string
	mbox   string
}

func parseImportFlags(args []string) importFlags {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var f importFlags
	fs.StringVar(&f.folder, "folder", "INBOX", "Destination folder")
	fs.StringVar(&f.mbox, "mbox", "", "mbox file (\"-\" for stdin)")
	if err := fs.Parse(args); err != nil {
		fatal("import: %v", err)
	}
	return f
}

func (a *app) handleImport(ctx context.Context, acc *config.AccountConfig, f importFlags) error {
	if f.mbox == "" {
		return errors.New("--mbox is required")
	}

	var r io.Reader = os.Stdin
	if f.mbox != "-" {
		file, err := os.Open(f.mbox)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.mbox, err)
		}
		defer file.Close()
		r = file
	}

	client, err := a.newIMAPClient(acc)
	if err != nil {
		return err
	}
	n, err := client.ImportMbox(ctx, f.folder, r)
	if n > 0 {
		fmt.Printf("Imported %d message(s) into %s\n", n, f.folder)
	}
	return err
}
