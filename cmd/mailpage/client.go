package main

import (
	"fmt"

	"github.com/emx-mail/mailpage/pkgs/config"
	"github.com/emx-mail/mailpage/pkgs/email"
)

func (a *app) newIMAPClient(acc *config.AccountConfig) (*email.IMAPClient, error) {
	if acc.IMAP.Host == "" {
		return nil, fmt.Errorf("IMAP not configured for account %s", acc.Email)
	}
	return email.NewIMAPClient(imapConfig(acc),
		email.WithIMAPLogger(a.logger.With().Str("account", acc.Name).Logger())), nil
}

func imapConfig(acc *config.AccountConfig) email.IMAPConfig {
	return email.IMAPConfig{
		Host:          acc.IMAP.Host,
		Port:          acc.IMAP.Port,
		Username:      acc.IMAP.Username,
		Password:      acc.IMAP.Password,
		SSL:           acc.IMAP.SSL,
		StartTLS:      acc.IMAP.StartTLS,
		AuthMechanism: acc.IMAP.Auth,
		DialTimeout:   acc.IMAP.DialTimeout,
		ConnectRate:   acc.IMAP.ConnectRate,
	}
}

func (a *app) newSMTPClient(acc *config.AccountConfig) (*email.SMTPClient, error) {
	if acc.SMTP.Host == "" {
		return nil, fmt.Errorf("SMTP not configured for account %s", acc.Email)
	}
	return email.NewSMTPClient(email.SMTPConfig{
		Host:     acc.SMTP.Host,
		Port:     acc.SMTP.Port,
		Username: acc.SMTP.Username,
		Password: acc.SMTP.Password,
		SSL:      acc.SMTP.SSL,
		StartTLS: acc.SMTP.StartTLS,
	}, email.WithSMTPLogger(a.logger.With().Str("account", acc.Name).Logger())), nil
}
