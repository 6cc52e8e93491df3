package email

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// Address represents an email address
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// String formats the address as "Name <email>" or just the email.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// ParseAddressList splits a comma separated list of bare email addresses.
func ParseAddressList(s string) []Address {
	var out []Address
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, Address{Email: part})
		}
	}
	return out
}

// SendOptions represents options for sending an email
type SendOptions struct {
	From       Address
	To         []Address
	Cc         []Address
	Bcc        []Address
	Subject    string
	TextBody   string
	HTMLBody   string
	InReplyTo  string
	References []string
}

// Folder represents an email folder
type Folder struct {
	Name       string   `json:"name"`
	Delimiter  rune     `json:"-"`
	Attributes []string `json:"attributes,omitempty"`
}

// Flag is a user-visible message state that SetFlag can change.
type Flag int

const (
	FlagRead Flag = iota
	FlagStarred
	FlagDeleted
)

func (f Flag) String() string {
	switch f {
	case FlagRead:
		return "read"
	case FlagStarred:
		return "starred"
	case FlagDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("Flag(%d)", int(f))
	}
}

func (f Flag) imapFlag() (imap.Flag, error) {
	switch f {
	case FlagRead:
		return imap.FlagSeen, nil
	case FlagStarred:
		return imap.FlagFlagged, nil
	case FlagDeleted:
		return imap.FlagDeleted, nil
	default:
		return "", fmt.Errorf("unknown flag %v", f)
	}
}
