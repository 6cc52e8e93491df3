package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/emx-mail/mailpage/pkgs/config"
	"github.com/emx-mail/mailpage/pkgs/page"
)

type listFlags struct {
	folder     string
	page       int
	pageSize   int
	unreadOnly bool
	timeout    time.Duration
	json       bool
}

func parseListFlags(args []string, defaults config.PageSettings) listFlags {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var f listFlags
	fs.StringVar(&f.folder, "folder", "INBOX", "Folder to list")
	fs.IntVar(&f.page, "page", 1, "Page number, 1 is newest")
	fs.IntVar(&f.pageSize, "page-size", defaults.PageSize, "Messages per page")
	fs.BoolVar(&f.unreadOnly, "unread-only", false, "Show only unread messages")
	fs.DurationVar(&f.timeout, "timeout", defaults.Timeout, "Fetch deadline")
	fs.BoolVar(&f.json, "json", false, "Print the page as JSON")
	if err := fs.Parse(args); err != nil {
		fatal("list: %v", err)
	}
	return f
}

func (a *app) handleList(ctx context.Context, acc *config.AccountConfig, f listFlags) error {
	client, err := a.newIMAPClient(acc)
	if err != nil {
		return err
	}

	filter := page.FilterAll
	if f.unreadOnly {
		filter = page.FilterUnread
	}

	engine := page.NewEngine(
		page.WithTimeout(f.timeout),
		page.WithLogger(a.logger),
		page.WithMetrics(a.metrics),
	)
	result, err := engine.FetchPage(ctx, client, f.folder, page.PageRequest{
		Page:     f.page,
		PageSize: f.pageSize,
		Filter:   filter,
	})
	if err != nil {
		return err
	}

	if f.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	pm := result.Pagination
	fmt.Printf("Account: %s | Folder: %s | Filter: %s\n", acc.Name, f.folder, filter)
	fmt.Printf("Page %d of %d (%d per page) | Total: %d\n", pm.Page, pm.TotalPages, pm.PageSize, pm.TotalMessages)
	if result.Partial {
		fmt.Println("Warning: the server did not deliver every message in time; this page is incomplete.")
	}
	fmt.Println()

	for i, e := range result.Emails {
		status := "✓"
		if e.Unread {
			status = "✗"
		}
		star := ""
		if e.Starred {
			star = " ★"
		}
		from := e.From
		if e.FromAddress != "" && e.FromAddress != e.From {
			from = fmt.Sprintf("%s <%s>", e.From, e.FromAddress)
		}

		fmt.Printf("[%d] UID:%d %s%s From: %s\n", i+1, e.ID, status, star, from)
		fmt.Printf("    Subject: %s\n", e.Subject)
		fmt.Printf("    Date: %s\n", e.Date.Format(time.RFC1123))
		if a.verbose {
			fmt.Printf("    Preview: %s\n", truncate(e.Preview, 100))
		}
		fmt.Println()
	}
	if pm.HasMore {
		fmt.Printf("More: mailpage list --folder %q --page %d\n", f.folder, pm.Page+1)
	}
	return nil
}
