package email

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// SMTP mock server
// ---------------------------------------------------------------------------

type smtpTestMessage struct {
	From string
	To   []string
	Data []byte
}

type smtpTestBackend struct {
	mu       sync.Mutex
	messages []*smtpTestMessage
}

func (be *smtpTestBackend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &smtpTestSession{backend: be}, nil
}

func (be *smtpTestBackend) Messages() []*smtpTestMessage {
	be.mu.Lock()
	defer be.mu.Unlock()
	return append([]*smtpTestMessage(nil), be.messages...)
}

type smtpTestSession struct {
	backend *smtpTestBackend
	msg     *smtpTestMessage
}

func (s *smtpTestSession) AuthMechanisms() []string { return []string{"PLAIN"} }

func (s *smtpTestSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != "testuser" || password != "testpass" {
			return errors.New("invalid credentials")
		}
		return nil
	}), nil
}

func (s *smtpTestSession) Mail(from string, _ *gosmtp.MailOptions) error {
	s.msg = &smtpTestMessage{From: from}
	return nil
}

func (s *smtpTestSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.msg.To = append(s.msg.To, to)
	return nil
}

func (s *smtpTestSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.Data = b
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.msg)
	s.backend.mu.Unlock()
	return nil
}

func (s *smtpTestSession) Reset()        { s.msg = nil }
func (s *smtpTestSession) Logout() error { return nil }

// Ensure interface conformance
var _ gosmtp.AuthSession = (*smtpTestSession)(nil)

// newTestSMTPServer starts a mock SMTP server.  Returns the backend (to
// inspect received mail) and the listen address.
func newTestSMTPServer(t *testing.T) (*smtpTestBackend, string) {
	t.Helper()

	be := &smtpTestBackend{}
	srv := gosmtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return be, ln.Addr().String()
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func newSMTPTestClient(t *testing.T, addr, password string) *SMTPClient {
	t.Helper()
	host, port := splitHostPort(t, addr)
	c := NewSMTPClient(SMTPConfig{
		Host:     host,
		Port:     port,
		Username: "testuser",
		Password: password,
	})
	c.now = func() time.Time { return time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestSMTPSend_PlainText(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := newSMTPTestClient(t, addr, "testpass")

	err := client.Send(SendOptions{
		From:     Address{Name: "Sender", Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "Plain hello",
		TextBody: "Hello from the test suite.",
	})
	require.NoError(t, err)

	msgs := be.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "sender@example.com", msgs[0].From)
	require.Equal(t, []string{"rcpt@example.com"}, msgs[0].To)

	data := string(msgs[0].Data)
	require.Contains(t, data, "Subject: Plain hello")
	require.Contains(t, data, "Hello from the test suite.")
	require.Contains(t, data, "Mon, 02 Feb 2026 09:00:00")
}

func TestSMTPSend_Alternative(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := newSMTPTestClient(t, addr, "testpass")

	err := client.Send(SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		Subject:  "Both bodies",
		TextBody: "text version",
		HTMLBody: "<p>html version</p>",
	})
	require.NoError(t, err)

	msgs := be.Messages()
	require.Len(t, msgs, 1)

	mr, err := mail.CreateReader(strings.NewReader(string(msgs[0].Data)))
	require.NoError(t, err)
	var types []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			types = append(types, ct)
		}
	}
	require.Equal(t, []string{"text/plain", "text/html"}, types)
}

func TestSMTPSend_MultipleRecipients(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := newSMTPTestClient(t, addr, "testpass")

	err := client.Send(SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       ParseAddressList("a@example.com, b@example.com"),
		Cc:       []Address{{Name: "Carol", Email: "c@example.com"}},
		Bcc:      []Address{{Email: "hidden@example.com"}},
		Subject:  "Many",
		TextBody: "hi",
	})
	require.NoError(t, err)

	msgs := be.Messages()
	require.Len(t, msgs, 1)
	require.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com", "hidden@example.com"}, msgs[0].To)
	require.NotContains(t, string(msgs[0].Data), "hidden@example.com")
	require.Contains(t, string(msgs[0].Data), "Carol")
	require.Contains(t, string(msgs[0].Data), "<c@example.com>")
}

func TestSMTPSend_BadAuth(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := newSMTPTestClient(t, addr, "wrong")

	err := client.Send(SendOptions{
		From:     Address{Email: "sender@example.com"},
		To:       []Address{{Email: "rcpt@example.com"}},
		TextBody: "hi",
	})
	require.ErrorContains(t, err, "SMTP authentication failed")
	require.Empty(t, be.Messages())
}

func TestSMTPSend_Validation(t *testing.T) {
	client := NewSMTPClient(SMTPConfig{Host: "127.0.0.1", Port: 1})

	err := client.Send(SendOptions{From: Address{Email: "a@example.com"}, TextBody: "x"})
	require.ErrorContains(t, err, "no recipients")

	err = client.Send(SendOptions{From: Address{Email: "a@example.com"}, To: ParseAddressList("b@example.com")})
	require.ErrorContains(t, err, "no body")
}

func TestSMTPSend_Reply(t *testing.T) {
	be, addr := newTestSMTPServer(t)
	client := newSMTPTestClient(t, addr, "testpass")

	err := client.Send(SendOptions{
		From:       Address{Email: "sender@example.com"},
		To:         []Address{{Email: "rcpt@example.com"}},
		Subject:    "Re: thread",
		TextBody:   "reply",
		InReplyTo:  "orig@example.com",
		References: []string{"root@example.com", "orig@example.com"},
	})
	require.NoError(t, err)

	data := string(be.Messages()[0].Data)
	require.Contains(t, data, "In-Reply-To: <orig@example.com>")
	require.Contains(t, data, "References: <root@example.com> <orig@example.com>")
	require.Contains(t, data, "Message-Id: <")
}

func TestSMTPGenerateMessageID(t *testing.T) {
	tests := []struct {
		email, domain string
	}{
		{"user@example.com", "example.com"},
		{"a@b@sub.example.org", "sub.example.org"},
		{"no-at-sign", "localhost"},
		{"trailing@", "localhost"},
	}
	for _, tc := range tests {
		id := GenerateMessageID(tc.email)
		require.True(t, strings.HasPrefix(id, "<"), id)
		require.True(t, strings.HasSuffix(id, "@"+tc.domain+">"), id)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateMessageID("user@example.com")
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSMTPClose(t *testing.T) {
	_, addr := newTestSMTPServer(t)
	client := newSMTPTestClient(t, addr, "testpass")

	require.NoError(t, client.Close())
	require.NoError(t, client.Connect())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
