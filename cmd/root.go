// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"vmconn/config"
	"vmconn/internal/core"
	"vmconn/internal/metrics"
	"vmconn/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X vmconn/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr is where usage, dry-run and metrics output goes.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// invocation is what the command line asked for beyond the Config.
type invocation struct {
	cfg         *config.Config
	showHelp    bool
	showVersion bool
	fs          *flag.FlagSet
}

// Execute parses args and attaches to the debug endpoint they name.
func Execute(ctx context.Context, args []string) error {
	inv, err := parse(args)
	if err != nil {
		return err
	}
	if inv.showHelp {
		printUsage(inv.fs)
		return nil
	}
	if inv.showVersion {
		fmt.Fprintf(stderr, "vmconn %s\n", version)
		return nil
	}
	cfg := inv.cfg

	if cfg.DryRun {
		fmt.Fprintf(stderr, "dry run: would attach to %s%s (detach timeout %v, reconnect %v)\n",
			cfg.Address(), via(cfg), cfg.DetachTimeout, cfg.Reconnect)
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	collector := metrics.New()

	mode, err := core.Build(cfg, logger, collector)
	if err != nil {
		return err
	}

	err = mode.Run(ctx)
	if cfg.Metrics {
		fmt.Fprintln(stderr, collector.JSON())
	}
	return err
}

// parse resolves the configuration with precedence
// defaults < --config file < VMCONN_* environment < flags.
func parse(args []string) (*invocation, error) {
	cfg := config.Default()

	// ── phase 1: locate the config file ──────────────────────────
	var configPath string
	pre := flag.NewFlagSet("vmconn", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.StringVar(&configPath, "config", "", "")
	pre.BoolP("help", "h", false, "")
	_ = pre.Parse(args) // real errors are reported by phase 2

	if configPath != "" {
		if err := config.LoadFile(configPath, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	// ── phase 2: flags override ──────────────────────────────────
	inv := &invocation{cfg: cfg}
	fs := flag.NewFlagSet("vmconn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inv.fs = fs

	var discard string
	fs.StringVar(&discard, "config", configPath, "YAML config file")

	// ── endpoint ─────────────────────────────────────────────────
	fs.StringVar(&cfg.URL, "ws", cfg.URL, "WebSocket debug endpoint (ws:// or wss:// URL)")
	fs.IntVarP(&cfg.LocalPort, "local-port", "p", cfg.LocalPort, "Local source port for direct TCP")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")

	var timeoutSec int
	fs.IntVarP(&timeoutSec, "timeout", "w", int(cfg.Timeout/time.Second), "Connect timeout in seconds")

	// ── session ──────────────────────────────────────────────────
	fs.DurationVar(&cfg.DetachTimeout, "detach-timeout", cfg.DetachTimeout, "How long a detach waits for the remote side (0 = forever)")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "WebSocket keepalive interval (0 = off)")
	fs.BoolVarP(&cfg.Reconnect, "reconnect", "r", cfg.Reconnect, "Start a new session when the link is lost")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Consecutive failed attempts before --reconnect gives up (0 = unlimited)")
	fs.BoolVar(&cfg.Relay, "relay", cfg.Relay, "Send stdin lines to the remote process")

	// ── helper program ───────────────────────────────────────────
	fs.StringVarP(&cfg.Execute, "exec", "e", cfg.Execute, "Drive the session from a program")
	fs.StringVarP(&cfg.Command, "command", "c", cfg.Command, "Drive the session from a shell command")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var verbosity int
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	var quiet bool
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print remote output and errors")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "Print session metrics as JSON on exit")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration and exit")

	fs.BoolVar(&inv.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&inv.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if inv.showHelp || inv.showVersion || (len(args) == 0 && configPath == "" && cfg.Host == "" && cfg.URL == "") {
		inv.showHelp = inv.showHelp || !inv.showVersion
		return inv, nil
	}

	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	cfg.Verbose += verbosity
	if quiet {
		cfg.Verbose = 0
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return nil, err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return nil, err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional accepts "<host> <port>" or a single "<host>:<port>" /
// ws:// URL.  No arguments keeps the endpoint from the file or env.
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
		return nil
	case 1:
		ep, err := config.ParseEndpoint(remaining[0])
		if err != nil {
			return err
		}
		if ep.URL != "" {
			cfg.URL, cfg.Host, cfg.Port = ep.URL, "", 0
		} else {
			cfg.Host, cfg.Port = ep.Host, ep.Port
		}
		return nil
	case 2:
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Host, cfg.Port = remaining[0], port
		return nil
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
}

func via(cfg *config.Config) string {
	if !cfg.TunnelEnabled {
		return ""
	}
	return fmt.Sprintf(" via ssh %s@%s:%d", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `vmconn – attach to a remote debuggable process v%s

Opens a debug link to a process (directly, through an SSH gateway or over
WebSocket), prints what it reports and detaches cleanly on Ctrl-C.

Usage:
  vmconn [options] <host> <port>              Attach over TCP
  vmconn [options] <host>:<port>              Same, one argument
  vmconn [options] ws://<host>:<port>/<path>  Attach over WebSocket
  vmconn -T user@gateway <host> <port>        Attach through SSH

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  vmconn localhost 5005                       Watch a local debug port
  vmconn -r --max-retries 0 build-7 5005      Re-attach whenever it drops
  vmconn -T dev@bastion 10.0.3.7 9229         Through a jump host
  vmconn --relay localhost 5005 < cmds.txt    Send commands from a file
  vmconn -c 'jq -c .' ws://127.0.0.1:9229/x   Drive the session from jq
`)
}
