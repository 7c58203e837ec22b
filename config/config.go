// Package config defines the runtime configuration for vmconn and the
// parsers for debug endpoints and SSH tunnel specifications.
package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "vmconn/internal/errors"
)

// Config holds every tuneable for attaching to one debug endpoint.
type Config struct {
	// ── Endpoint ─────────────────────────────────────────────────────
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	URL       string        `yaml:"url"` // ws:// or wss:// endpoint instead of host/port
	LocalPort int           `yaml:"local_port"`
	NoDNS     bool          `yaml:"no_dns"`
	Timeout   time.Duration `yaml:"timeout"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string `yaml:"tunnel"` // raw user@host[:port] from -T
	TunnelEnabled  bool   `yaml:"-"`
	TunnelUser     string `yaml:"-"`
	TunnelHost     string `yaml:"-"`
	TunnelPort     int    `yaml:"-"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Session ──────────────────────────────────────────────────────
	DetachTimeout time.Duration `yaml:"detach_timeout"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	Reconnect     bool          `yaml:"reconnect"`
	MaxRetries    int           `yaml:"max_retries"` // 0 = unlimited
	Relay         bool          `yaml:"relay"`

	// ── Helper program ───────────────────────────────────────────────
	Execute string `yaml:"exec"`    // -e: program path
	Command string `yaml:"command"` // -c: shell command

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `yaml:"verbose"`
	Metrics bool `yaml:"metrics"`
	DryRun  bool `yaml:"-"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Timeout:       DefaultConnTimeout,
		DetachTimeout: DefaultDetachTimeout,
		PingInterval:  DefaultPingInterval,
		MaxRetries:    DefaultMaxRetries,
		Verbose:       1,
	}
}

// Address returns what a dialer should be handed: the URL for WebSocket
// endpoints, host:port otherwise.
func (c *Config) Address() string {
	if c.URL != "" {
		return c.URL
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.  An empty
// spec disables the tunnel.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
			Hint:    "use -T user@bastion[:port]",
		}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Endpoint parser ──────────────────────────────────────────────────

// Endpoint is a parsed debug endpoint.
type Endpoint struct {
	Host string
	Port int
	URL  string // set for WebSocket endpoints
}

// ParseEndpoint accepts "host:port", "[v6]:port" or a ws:// / wss:// URL.
func ParseEndpoint(s string) (Endpoint, error) {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint URL %q: %v", s, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return Endpoint{}, fmt.Errorf("unsupported scheme %q – expected ws or wss", u.Scheme)
		}
		if u.Hostname() == "" {
			return Endpoint{}, fmt.Errorf("endpoint URL %q has no host", s)
		}
		ep := Endpoint{Host: u.Hostname(), URL: s}
		if p := u.Port(); p != "" {
			ep.Port, _ = strconv.Atoi(p)
		}
		return ep, nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q – expected host:port or ws://host:port/path", s)
	}
	port, err := ParsePort(portStr)
	if err != nil {
		return Endpoint{}, err
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q has no host", s)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParsePort parses a TCP port number.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Failures are *errors.ConfigError values carrying a hint.
func (c *Config) Validate() error {
	if c.URL == "" && c.Host == "" {
		return &ncerr.ConfigError{
			Field:   "host",
			Message: "debug endpoint is required",
			Hint:    "vmconn <host> <port>, vmconn <host>:<port> or vmconn --ws ws://host:port/path",
		}
	}
	if c.URL == "" && (c.Port < 1 || c.Port > 65535) {
		return &ncerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "destination port must be within 1-65535",
			Hint:    "the debug port the remote process listens on, e.g. 5005",
		}
	}

	if c.URL != "" {
		if _, err := ParseEndpoint(c.URL); err != nil || !strings.Contains(c.URL, "://") {
			return &ncerr.ConfigError{
				Field:   "ws",
				Value:   c.URL,
				Message: "not a WebSocket URL",
				Hint:    "use ws://host:port/path or wss://host/path",
			}
		}
	}

	if c.NoDNS && c.URL == "" && net.ParseIP(c.Host) == nil {
		return &ncerr.ConfigError{
			Field:   "no-dns",
			Value:   c.Host,
			Message: "host is not an IP address and DNS is disabled",
			Hint:    "drop -n or pass a literal address",
		}
	}

	if c.Timeout < 0 {
		return &ncerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.DetachTimeout < 0 {
		return &ncerr.ConfigError{
			Field:   "detach-timeout",
			Value:   c.DetachTimeout,
			Message: "must not be negative",
			Hint:    "0 waits for the remote side indefinitely",
		}
	}
	if c.MaxRetries < 0 {
		return &ncerr.ConfigError{
			Field:   "max-retries",
			Value:   c.MaxRetries,
			Message: "must not be negative",
			Hint:    "0 retries forever",
		}
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &ncerr.ConfigError{Field: "local-port", Value: c.LocalPort, Message: "out of range 0-65535"}
	}
	if c.LocalPort > 0 && (c.TunnelEnabled || c.URL != "") {
		return &ncerr.ConfigError{
			Field:   "local-port",
			Value:   c.LocalPort,
			Message: "source-port binding only applies to direct TCP endpoints",
		}
	}

	if c.Execute != "" && c.Command != "" {
		return &ncerr.ConfigError{Field: "exec", Value: c.Execute, Message: "-e and -c are mutually exclusive"}
	}
	if c.Relay && (c.Execute != "" || c.Command != "") {
		return &ncerr.ConfigError{
			Field:   "relay",
			Message: "cannot relay local input while a helper program drives the session",
			Hint:    "drop --relay or -e/-c",
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "tunnel host is required",
			Hint:    "use -T user@bastion[:port]",
		}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Message: "SSH authentication options need a tunnel",
			Hint:    "add -T user@bastion to reach the debug port through SSH",
		}
	}

	return nil
}
