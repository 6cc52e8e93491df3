package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/emx-mail/mailpage/pkgs/config"
	"github.com/emx-mail/mailpage/pkgs/email"
)

type sendFlags struct {
	to, cc, subject, text, html, inReplyTo string
	textFile, htmlFile                     string
	dryRun                                 bool
}

func parseSendFlags(args []string) sendFlags {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var f sendFlags
	fs.StringVar(&f.to, "to", "", "Recipients (comma-separated)")
	fs.StringVar(&f.cc, "cc", "", "CC recipients (comma-separated)")
	fs.StringVar(&f.subject, "subject", "", "Email subject")
	fs.StringVar(&f.text, "text", "", "Plain text body")
	fs.StringVar(&f.html, "html", "", "HTML body")
	fs.StringVar(&f.textFile, "text-file", "", "Plain text body from file (\"-\" for stdin)")
	fs.StringVar(&f.htmlFile, "html-file", "", "HTML body from file (\"-\" for stdin)")
	fs.StringVar(&f.inReplyTo, "in-reply-to", "", "Message-ID to reply to")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Preview email without sending")
	if err := fs.Parse(args); err != nil {
		fatal("send: %v", err)
	}
	return f
}

// readBodySource reads body content from a file path or stdin ("-").
func readBodySource(path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatAddressList(addrs []email.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func (a *app) handleSend(acc *config.AccountConfig, f sendFlags) error {
	if f.to == "" {
		return errors.New("--to is required")
	}
	if f.subject == "" {
		return errors.New("--subject is required")
	}

	// --text-file takes precedence over --text, same for HTML
	textBody := f.text
	if f.textFile != "" {
		body, err := readBodySource(f.textFile)
		if err != nil {
			return fmt.Errorf("--text-file: %w", err)
		}
		textBody = body
	}
	htmlBody := f.html
	if f.htmlFile != "" {
		body, err := readBodySource(f.htmlFile)
		if err != nil {
			return fmt.Errorf("--html-file: %w", err)
		}
		htmlBody = body
	}
	if textBody == "" && htmlBody == "" {
		return errors.New("--text, --text-file, --html, or --html-file is required")
	}

	opts := email.SendOptions{
		From:      email.Address{Name: acc.FromName, Email: acc.Email},
		To:        email.ParseAddressList(f.to),
		Cc:        email.ParseAddressList(f.cc),
		Subject:   f.subject,
		TextBody:  textBody,
		HTMLBody:  htmlBody,
		InReplyTo: f.inReplyTo,
	}

	if f.dryRun {
		fmt.Println("=== Email Preview (Dry-Run Mode) ===")
		fmt.Println()
		fmt.Printf("From:    %s\n", opts.From)
		fmt.Printf("To:      %s\n", formatAddressList(opts.To))
		if len(opts.Cc) > 0 {
			fmt.Printf("Cc:      %s\n", formatAddressList(opts.Cc))
		}
		fmt.Printf("Subject: %s\n", opts.Subject)
		if opts.InReplyTo != "" {
			fmt.Printf("In-Reply-To: %s\n", opts.InReplyTo)
		}
		fmt.Println()
		if textBody != "" {
			fmt.Println("Text Body:")
			fmt.Println(truncate(textBody, 500))
			fmt.Println()
		}
		if htmlBody != "" {
			fmt.Printf("HTML Body: %s\n", truncate(htmlBody, 500))
			fmt.Println()
		}
		fmt.Println("Dry-run mode: email was NOT sent")
		return nil
	}

	client, err := a.newSMTPClient(acc)
	if err != nil {
		return err
	}
	if err := client.Send(opts); err != nil {
		return err
	}
	fmt.Println("Email sent successfully")
	return nil
}
