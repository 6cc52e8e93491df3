package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/emx-mail/mailpage/pkgs/config"
	"github.com/emx-mail/mailpage/pkgs/page"
)

const version = "1.0.0"

// app holds global options parsed from the command line
type app struct {
	account     string
	configPath  string
	verbose     bool
	metricsAddr string

	logger  zerolog.Logger
	metrics *page.Metrics
}

func main() {
	a := &app{}

	flag.StringVar(&a.account, "account", "", "Account name or email to use")
	flag.StringVar(&a.configPath, "config", "", "Config file (default: $"+config.EnvConfigPath+")")
	flag.BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	flag.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.CommandLine.SetInterspersed(false)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailpage v%s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	cmd := args[0]
	cmdArgs := args[1:]

	a.logger = newLogger(a.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cmd == "init" {
		if err := a.handleInit(); err != nil {
			fatal("init: %v", err)
		}
		return
	}
	if cmd == "help" {
		printUsage()
		return
	}

	shutdown := a.startMetrics()
	defer shutdown()

	cfg, acc := a.loadAccount()

	var err error
	switch cmd {
	case "list":
		err = a.handleList(ctx, acc, parseListFlags(cmdArgs, cfg.Page))
	case "folders":
		err = a.handleFolders(ctx, acc)
	case "flag":
		err = a.handleFlag(ctx, acc, parseFlagFlags(cmdArgs))
	case "send":
		err = a.handleSend(acc, parseSendFlags(cmdArgs))
	case "import":
		err = a.handleImport(ctx, acc, parseImportFlags(cmdArgs))
	default:
		shutdown()
		fatal("unknown command '%s'", cmd)
	}
	if err != nil {
		shutdown()
		fatal("%s: %v", cmd, err)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// startMetrics serves /metrics when --metrics-addr is set and returns a
// function that stops the server.
func (a *app) startMetrics() func() {
	if a.metricsAddr == "" {
		return func() {}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = page.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", a.metricsAddr).Msg("metrics server failed")
		}
	}()
	a.logger.Debug().Str("addr", a.metricsAddr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mailpage v%s - Paginated mailbox listing

Usage:
  mailpage [global options] <command> [command options]

Commands:
  list       List one page of a folder, newest first
  folders    List all folders
  flag       Mark a message read/unread, starred/unstarred or deleted
  send       Send an email
  import     Append the messages of an mbox file to a folder
  init       Write an example configuration file

Global Options:
  --account <name>       Account name or email to use
  --config <path>        Config file (default: $%s)
  -v, --verbose          Debug logging
  --metrics-addr <addr>  Serve Prometheus metrics on <addr>/metrics while running
  --version              Show version information

Environment:
  %s=<path>     Config file location
  %s_MAIL_PAGE_PAGE_SIZE, %s_MAIL_PAGE_TIMEOUT, ...  Override config keys

List Options:
  --folder <name>        Folder to list (default: INBOX)
  --page <n>             Page number, 1 is newest (default: 1)
  --page-size <n>        Messages per page (default: from config, 20)
  --unread-only          Only messages without \Seen
  --timeout <dur>        Fetch deadline (default: from config, 20s)
  --json                 Print the page as JSON

Flag Options:
  --uid <uid>            Message UID
  --folder <name>        Folder containing the message (default: INBOX)
  --read | --unread | --star | --unstar | --delete
  --expunge              With --delete, expunge the folder afterwards
                         (--delete alone only sets \Deleted; the message stays listed)

Send Options:
  --to <emails>          Recipients (comma-separated)
  --cc <emails>          CC recipients (comma-separated)
  --subject <text>       Email subject
  --text <text>          Plain text body
  --html <html>          HTML body
  --text-file <path>     Plain text body from file ("-" for stdin)
  --html-file <path>     HTML body from file ("-" for stdin)
  --in-reply-to <msgid>  Message-ID to reply to
  --dry-run              Preview without sending

Import Options:
  --folder <name>        Destination folder (default: INBOX)
  --mbox <path>          mbox file ("-" for stdin)

Examples:
  mailpage --config ~/.mailpage.json init
  mailpage list --page 2 --page-size 10
  mailpage list --unread-only --json
  mailpage flag --uid 4242 --star
  mailpage flag --uid 4242 --delete --expunge
  mailpage send --to user@example.com --subject "Hello" --text "Hi!"
  mailpage import --folder Archive --mbox old.mbox
`, version, config.EnvConfigPath, config.EnvConfigPath, config.EnvPrefix, config.EnvPrefix)
}
