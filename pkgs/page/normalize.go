package page

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
)

// Placeholders used when a message lacks the corresponding field.
const (
	NoSubject = "(No subject)"
	NoSender  = "Unknown"
	NoPreview = "(No preview)"
)

// PreviewMaxLen is the maximum preview length in runes.
const PreviewMaxLen = 150

// maxBodyRead bounds how much of a text part is read to build a preview.
const maxBodyRead = 256 * 1024

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// Normalize parses an assembled raw message into a summary. now is used as
// the date of messages that carry no usable Date header.
func Normalize(msg RawMessage, now time.Time) (EmailSummary, error) {
	entity, err := gomessage.Read(bytes.NewReader(msg.Raw))
	if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		return EmailSummary{}, fmt.Errorf("parse message %d: %w", msg.UID, err)
	}
	h := mail.Header{Header: entity.Header}

	from, fromAddr := senderOf(h)
	date := dateOf(h, now)

	var body bodyText
	body.walk(entity)

	unread, starred := true, false
	for _, f := range msg.Flags {
		switch {
		case strings.EqualFold(f, FlagSeen):
			unread = false
		case strings.EqualFold(f, FlagFlagged):
			starred = true
		}
	}

	return EmailSummary{
		ID:          msg.UID,
		Subject:     subjectOf(h),
		From:        from,
		FromAddress: fromAddr,
		To:          recipientsOf(h),
		Date:        date,
		Timestamp:   date.UnixMilli(),
		Unread:      unread,
		Starred:     starred,
		Preview:     Preview(body.text, body.html),
	}, nil
}

// SortSummaries orders summaries newest first. Equal timestamps fall back
// to descending UID so the order is deterministic.
func SortSummaries(s []EmailSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Timestamp != s[j].Timestamp {
			return s[i].Timestamp > s[j].Timestamp
		}
		return s[i].ID > s[j].ID
	})
}

// Preview builds the short excerpt shown in a listing: the plain-text body
// if there is one, otherwise the HTML body with tags removed, whitespace
// collapsed and cut to PreviewMaxLen runes.
func Preview(text, htmlBody string) string {
	s := text
	if strings.TrimSpace(s) == "" && htmlBody != "" {
		s = html.UnescapeString(stripPolicy.Sanitize(htmlBody))
	}
	s = strings.Join(strings.Fields(s), " ")
	s = truncateRunes(s, PreviewMaxLen)
	if s == "" {
		return NoPreview
	}
	return s
}

func subjectOf(h mail.Header) string {
	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return NoSubject
	}
	return subject
}

// senderOf resolves the display name through structured name, raw header
// text, then NoSender. The address is empty when From does not parse.
func senderOf(h mail.Header) (name, addr string) {
	if list, err := h.AddressList("From"); err == nil && len(list) > 0 {
		name = strings.TrimSpace(list[0].Name)
		addr = list[0].Address
	}
	if name == "" {
		raw, err := h.Text("From")
		if err != nil {
			raw = h.Get("From")
		}
		name = strings.TrimSpace(raw)
	}
	if name == "" {
		name = NoSender
	}
	return name, addr
}

func recipientsOf(h mail.Header) []string {
	list, err := h.AddressList("To")
	if err != nil {
		if raw := strings.TrimSpace(h.Get("To")); raw != "" {
			return []string{raw}
		}
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Name != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			out = append(out, a.Address)
		}
	}
	return out
}

func dateOf(h mail.Header, now time.Time) time.Time {
	if d, err := h.Date(); err == nil && !d.IsZero() {
		return d
	}
	return now
}

// bodyText keeps the first text/plain and text/html parts of a message.
type bodyText struct {
	text string
	html string
}

func (b *bodyText) walk(e *gomessage.Entity) {
	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
				return
			}
			if part == nil {
				return
			}
			b.walk(part)
			if b.text != "" {
				return
			}
		}
	}

	ct, _, _ := e.Header.ContentType()
	if ct == "" {
		ct = "text/plain"
	}
	disp, _, _ := e.Header.ContentDisposition()
	if disp == "attachment" {
		return
	}
	switch {
	case ct == "text/plain" && b.text == "":
		b.text = readBody(e.Body)
	case ct == "text/html" && b.html == "":
		b.html = readBody(e.Body)
	}
}

func readBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyRead))
	if err != nil && len(data) == 0 {
		return ""
	}
	return string(data)
}

// truncateRunes cuts s to at most n runes, preserving UTF-8 boundaries.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
