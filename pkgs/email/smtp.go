package email

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SMTPClient represents an SMTP client
type SMTPClient struct {
	config    SMTPConfig
	client    *smtp.Client
	tlsConfig *tls.Config
	logger    zerolog.Logger
	now       func() time.Time
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	StartTLS bool
}

// SMTPOption customizes an SMTPClient.
type SMTPOption func(*SMTPClient)

// WithSMTPLogger sets the logger for delivery diagnostics.
func WithSMTPLogger(l zerolog.Logger) SMTPOption {
	return func(c *SMTPClient) { c.logger = l }
}

// WithSMTPTLSConfig overrides the TLS configuration used for SSL and STARTTLS.
func WithSMTPTLSConfig(cfg *tls.Config) SMTPOption {
	return func(c *SMTPClient) { c.tlsConfig = cfg }
}

// NewSMTPClient creates a new SMTP client
func NewSMTPClient(config SMTPConfig, opts ...SMTPOption) *SMTPClient {
	c := &SMTPClient{
		config: config,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes a connection to the SMTP server
func (c *SMTPClient) Connect() error {
	tlsCfg := c.tlsConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: c.config.Host}
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	var client *smtp.Client
	var err error
	if c.config.SSL {
		client, err = smtp.DialTLS(addr, tlsCfg)
	} else if c.config.StartTLS {
		client, err = smtp.DialStartTLS(addr, tlsCfg)
	} else {
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	if c.config.Password != "" {
		auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	c.client = client
	return nil
}

// Send sends an email
func (c *SMTPClient) Send(opts SendOptions) error {
	recipients := make([]string, 0, len(opts.To)+len(opts.Cc)+len(opts.Bcc))
	for _, list := range [][]Address{opts.To, opts.Cc, opts.Bcc} {
		for _, addr := range list {
			recipients = append(recipients, addr.Email)
		}
	}
	if len(recipients) == 0 {
		return errors.New("no recipients")
	}
	if opts.TextBody == "" && opts.HTMLBody == "" {
		return errors.New("message has no body")
	}

	msg, err := c.buildMessage(opts)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if c.client == nil {
		if err := c.Connect(); err != nil {
			return err
		}
		defer c.Close()
	}

	size := msg.Len()
	if err := c.client.SendMail(opts.From.Email, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	c.logger.Info().
		Str("from", opts.From.Email).
		Int("recipients", len(recipients)).
		Int("bytes", size).
		Msg("message sent")
	return nil
}

// buildMessage renders opts as an RFC 5322 message. A message with both
// bodies becomes multipart/alternative.
func (c *SMTPClient) buildMessage(opts SendOptions) (*bytes.Buffer, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(c.now())
	header.SetSubject(opts.Subject)
	header.SetAddressList("From", toMailAddresses([]Address{opts.From}))
	if len(opts.To) > 0 {
		header.SetAddressList("To", toMailAddresses(opts.To))
	}
	if len(opts.Cc) > 0 {
		header.SetAddressList("Cc", toMailAddresses(opts.Cc))
	}
	if opts.InReplyTo != "" {
		header.SetMsgIDList("In-Reply-To", []string{opts.InReplyTo})
	}
	if len(opts.References) > 0 {
		header.SetMsgIDList("References", opts.References)
	}
	header.Set("Message-ID", GenerateMessageID(opts.From.Email))

	iw, err := mail.CreateInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	parts := []struct{ contentType, body string }{
		{"text/plain", opts.TextBody},
		{"text/html", opts.HTMLBody},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		var h mail.InlineHeader
		h.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := iw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func toMailAddresses(addrs []Address) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = &mail.Address{Name: a.Name, Address: a.Email}
	}
	return out
}

// Close closes the SMTP connection
func (c *SMTPClient) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// GenerateMessageID produces a RFC 5322 Message-ID using the domain of the
// sender's address: <uuid@domain>.
func GenerateMessageID(fromEmail string) string {
	domain := "localhost"
	if idx := strings.LastIndex(fromEmail, "@"); idx >= 0 && idx < len(fromEmail)-1 {
		domain = fromEmail[idx+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
