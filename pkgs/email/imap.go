package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-mbox"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/emx-mail/mailpage/pkgs/page"
)

// Supported values of IMAPConfig.AuthMechanism.
const (
	AuthLogin = "login"
	AuthPlain = "plain"
)

const defaultDialTimeout = 30 * time.Second

// IMAPClient opens IMAP sessions for one account. It implements
// page.Connector; every Connect call returns a new, independent session.
type IMAPClient struct {
	config    IMAPConfig
	limiter   *rate.Limiter
	tlsConfig *tls.Config
	logger    zerolog.Logger
}

// IMAPConfig holds IMAP configuration
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
	StartTLS bool

	// AuthMechanism is "login" (default) or "plain" (SASL PLAIN).
	AuthMechanism string
	DialTimeout   time.Duration
	// ConnectRate caps new connections per second. Zero means unlimited.
	ConnectRate float64
}

// IMAPOption customizes an IMAPClient.
type IMAPOption func(*IMAPClient)

// WithIMAPLogger sets the logger for connection diagnostics.
func WithIMAPLogger(l zerolog.Logger) IMAPOption {
	return func(c *IMAPClient) { c.logger = l }
}

// WithTLSConfig overrides the TLS configuration used for SSL and STARTTLS.
func WithTLSConfig(cfg *tls.Config) IMAPOption {
	return func(c *IMAPClient) { c.tlsConfig = cfg }
}

// NewIMAPClient creates a new IMAP client
func NewIMAPClient(config IMAPConfig, opts ...IMAPOption) *IMAPClient {
	limit := rate.Inf
	if config.ConnectRate > 0 {
		limit = rate.Limit(config.ConnectRate)
	}
	c := &IMAPClient{
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect implements page.Connector.
func (c *IMAPClient) Connect(ctx context.Context) (page.Session, error) {
	return c.dial(ctx)
}

// dial establishes an authenticated connection to the IMAP server
func (c *IMAPClient) dial(ctx context.Context) (*IMAPSession, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("connection throttled: %w", err)
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	timeout := c.config.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	tlsCfg := c.tlsConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: c.config.Host}
	}
	opts := &imapclient.Options{
		Dialer:    &net.Dialer{Timeout: timeout},
		TLSConfig: tlsCfg,
	}

	var client *imapclient.Client
	var err error
	if c.config.SSL {
		client, err = imapclient.DialTLS(addr, opts)
	} else if c.config.StartTLS {
		client, err = imapclient.DialStartTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}

	sess := newIMAPSession(client, c.logger)
	if err := sess.wait(ctx, func() error { return c.authenticate(client) }); err != nil {
		client.Close()
		return nil, fmt.Errorf("IMAP authentication failed: %w", err)
	}

	c.logger.Debug().Str("addr", addr).Str("user", c.config.Username).Msg("imap session opened")
	return sess, nil
}

func (c *IMAPClient) authenticate(client *imapclient.Client) error {
	switch strings.ToLower(c.config.AuthMechanism) {
	case "", AuthLogin:
		return client.Login(c.config.Username, c.config.Password).Wait()
	case AuthPlain:
		return client.Authenticate(sasl.NewPlainClient("", c.config.Username, c.config.Password))
	default:
		return fmt.Errorf("unsupported auth mechanism %q", c.config.AuthMechanism)
	}
}

// ListFolders lists all folders/mailboxes
func (c *IMAPClient) ListFolders(ctx context.Context) ([]Folder, error) {
	sess, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var mailboxes []*imap.ListData
	err = sess.wait(ctx, func() error {
		var lerr error
		mailboxes, lerr = sess.client.List("", "*", &imap.ListOptions{}).Collect()
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders := make([]Folder, 0, len(mailboxes))
	for _, mb := range mailboxes {
		attrs := make([]string, 0, len(mb.Attrs))
		for _, a := range mb.Attrs {
			attrs = append(attrs, string(a))
		}
		folders = append(folders, Folder{
			Name:       mb.Mailbox,
			Delimiter:  mb.Delim,
			Attributes: attrs,
		})
	}
	return folders, nil
}

// SetFlag adds (on) or removes a flag on one message.
func (c *IMAPClient) SetFlag(ctx context.Context, folder string, uid page.UID, flag Flag, on bool) error {
	imapFlag, err := flag.imapFlag()
	if err != nil {
		return err
	}
	if folder == "" {
		folder = "INBOX"
	}

	sess, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.selectMailbox(ctx, folder, false); err != nil {
		return err
	}
	if err := sess.storeFlag(ctx, uid, imapFlag, on); err != nil {
		return fmt.Errorf("failed to update flag %s on UID %d: %w", flag, uid, err)
	}
	return nil
}

// DeleteMessage marks one message \Deleted. With expunge set, every message
// of folder carrying \Deleted is then removed for good.
func (c *IMAPClient) DeleteMessage(ctx context.Context, folder string, uid page.UID, expunge bool) error {
	if folder == "" {
		folder = "INBOX"
	}

	sess, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.selectMailbox(ctx, folder, false); err != nil {
		return err
	}
	if err := sess.storeFlag(ctx, uid, imap.FlagDeleted, true); err != nil {
		return fmt.Errorf("failed to mark UID %d as deleted: %w", uid, err)
	}
	if !expunge {
		return nil
	}

	err = sess.wait(ctx, func() error {
		_, eerr := sess.client.Expunge().Collect()
		return eerr
	})
	if err != nil {
		return fmt.Errorf("failed to expunge %s: %w", folder, err)
	}
	return nil
}

// ImportMbox appends every message of an mbox stream to folder and returns
// how many were stored. It stops at the first failure.
func (c *IMAPClient) ImportMbox(ctx context.Context, folder string, r io.Reader) (int, error) {
	if folder == "" {
		folder = "INBOX"
	}

	sess, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	mr := mbox.NewReader(r)
	n := 0
	for {
		msgReader, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to read mbox message %d: %w", n+1, err)
		}
		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return n, fmt.Errorf("failed to read mbox message %d: %w", n+1, err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		if err := sess.wait(ctx, func() error { return appendMessage(sess.client, folder, raw) }); err != nil {
			return n, fmt.Errorf("failed to append message %d to %s: %w", n+1, folder, err)
		}
		n++
	}
}

func appendMessage(client *imapclient.Client, folder string, raw []byte) error {
	cmd := client.Append(folder, int64(len(raw)), nil)
	if _, err := cmd.Write(raw); err != nil {
		cmd.Close()
		return err
	}
	if err := cmd.Close(); err != nil {
		return err
	}
	_, err := cmd.Wait()
	return err
}
