package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/emx-mail/mailpage/pkgs/config"
	"github.com/emx-mail/mailpage/pkgs/email"
	"github.com/emx-mail/mailpage/pkgs/page"
)

type flagFlags struct {
	uid     string
	folder  string
	read    bool
	unread  bool
	star    bool
	unstar  bool
	delete  bool
	expunge bool
}

func parseFlagFlags(args []string) flagFlags {
	fs := flag.NewFlagSet("flag", flag.ExitOnError)
	var f flagFlags
	fs.StringVar(&f.uid, "uid", "", "Message UID")
	fs.StringVar(&f.folder, "folder", "INBOX", "Folder containing the message")
	fs.BoolVar(&f.read, "read", false, "Mark as read")
	fs.BoolVar(&f.unread, "unread", false, "Mark as unread")
	fs.BoolVar(&f.star, "star", false, "Star the message")
	fs.BoolVar(&f.unstar, "unstar", false, "Remove the star")
	fs.BoolVar(&f.delete, "delete", false, "Mark for deletion")
	fs.BoolVar(&f.expunge, "expunge", false, "With --delete, expunge the folder afterwards")
	if err := fs.Parse(args); err != nil {
		fatal("flag: %v", err)
	}
	return f
}

// action resolves the single flag change requested on the command line.
func (f flagFlags) action() (email.Flag, bool, error) {
	type choice struct {
		set  bool
		flag email.Flag
		on   bool
	}
	var picked []choice
	for _, c := range []choice{
		{f.read, email.FlagRead, true},
		{f.unread, email.FlagRead, false},
		{f.star, email.FlagStarred, true},
		{f.unstar, email.FlagStarred, false},
		{f.delete, email.FlagDeleted, true},
	} {
		if c.set {
			picked = append(picked, c)
		}
	}
	if len(picked) != 1 {
		return 0, false, errors.New("exactly one of --read, --unread, --star, --unstar or --delete is required")
	}
	return picked[0].flag, picked[0].on, nil
}

func (a *app) handleFlag(ctx context.Context, acc *config.AccountConfig, f flagFlags) error {
	if f.uid == "" {
		return errors.New("--uid is required")
	}
	uid, err := strconv.ParseUint(f.uid, 10, 32)
	if err != nil || uid == 0 {
		return fmt.Errorf("invalid UID: %s", f.uid)
	}
	flg, on, err := f.action()
	if err != nil {
		return err
	}
	if f.expunge && flg != email.FlagDeleted {
		return errors.New("--expunge requires --delete")
	}

	client, err := a.newIMAPClient(acc)
	if err != nil {
		return err
	}
	if f.expunge {
		if err := client.DeleteMessage(ctx, f.folder, page.UID(uid), true); err != nil {
			return err
		}
		fmt.Printf("UID %d in %s: deleted and expunged\n", uid, f.folder)
		return nil
	}
	if err := client.SetFlag(ctx, f.folder, page.UID(uid), flg, on); err != nil {
		return err
	}

	verb := "set"
	if !on {
		verb = "cleared"
	}
	fmt.Printf("UID %d in %s: %s %s\n", uid, f.folder, flg, verb)
	return nil
}
