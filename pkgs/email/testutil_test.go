package email

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"
)

// newTestTLSConfig generates a self-signed TLS config for mock servers.
func newTestTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		DNSNames:     []string{"localhost", "127.0.0.1"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}
}

// insecureTLSConfig returns a client-side TLS config that skips verification.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}

// splitHostPort splits "host:port" into (host, int port).
func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

// testMail builds a plain-text RFC 5322 message. Messages built with a
// larger day are newer.
func testMail(subject string, day int, body string) string {
	return "MIME-Version: 1.0\r\n" +
		"From: Sender Name <sender@example.com>\r\n" +
		"To: rcpt@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		fmt.Sprintf("Date: %02d Feb 2026 08:00:00 +0000\r\n", day) +
		fmt.Sprintf("Message-Id: <test-%d@example.com>\r\n", day) +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body
}

// testMailNested is a multipart/mixed containing a multipart/alternative.
const testMailNested = "MIME-Version: 1.0\r\n" +
	"From: sender@example.com\r\n" +
	"To: rcpt@example.com\r\n" +
	"Subject: Nested Multipart\r\n" +
	"Date: Tue, 10 Feb 2026 08:00:00 +0000\r\n" +
	"Message-Id: <test-nested@example.com>\r\n" +
	"Content-Type: multipart/mixed; boundary=\"OUTER\"\r\n" +
	"\r\n" +
	"--OUTER\r\n" +
	"Content-Type: multipart/alternative; boundary=\"INNER\"\r\n" +
	"\r\n" +
	"--INNER\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML version</p>\r\n" +
	"--INNER\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain version\r\n" +
	"--INNER--\r\n" +
	"--OUTER\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: attachment; filename=\"image.png\"\r\n" +
	"\r\n" +
	"PNG-DATA\r\n" +
	"--OUTER--\r\n"

// testMbox holds two messages in mboxrd format.
const testMbox = "From alice@example.com Mon Feb  2 08:00:00 2026\n" +
	"From: Alice <alice@example.com>\n" +
	"To: rcpt@example.com\n" +
	"Subject: First imported\n" +
	"Date: Mon, 02 Feb 2026 08:00:00 +0000\n" +
	"\n" +
	"first body\n" +
	"\n" +
	"From bob@example.com Tue Feb  3 08:00:00 2026\n" +
	"From: Bob <bob@example.com>\n" +
	"To: rcpt@example.com\n" +
	"Subject: Second imported\n" +
	"Date: Tue, 03 Feb 2026 08:00:00 +0000\n" +
	"\n" +
	"second body\n" +
	"\n"
