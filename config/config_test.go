package config

import (
	"strings"
	"testing"
	"time"

	ncerr "vmconn/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── ParseEndpoint ────────────────────────────────────────────────────

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		input   string
		want    Endpoint
		wantErr bool
	}{
		{"localhost:5005", Endpoint{Host: "localhost", Port: 5005}, false},
		{"[::1]:9229", Endpoint{Host: "::1", Port: 9229}, false},
		{"ws://127.0.0.1:9229/abc", Endpoint{Host: "127.0.0.1", Port: 9229, URL: "ws://127.0.0.1:9229/abc"}, false},
		{"wss://debug.example.com/session", Endpoint{Host: "debug.example.com", URL: "wss://debug.example.com/session"}, false},
		{"http://example.com", Endpoint{}, true},
		{"ws:///nohost", Endpoint{}, true},
		{"localhost", Endpoint{}, true},
		{"localhost:0", Endpoint{}, true},
		{":5005", Endpoint{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEndpoint(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	for _, bad := range []string{"0", "70000", "abc", "-1"} {
		if _, err := ParsePort(bad); err == nil {
			t.Errorf("ParsePort(%q) should fail", bad)
		}
	}
	if p, err := ParsePort("5005"); err != nil || p != 5005 {
		t.Errorf("ParsePort(5005) = %d, %v", p, err)
	}
}

// ── Config helpers ───────────────────────────────────────────────────

func TestConfig_Address(t *testing.T) {
	c := &Config{Host: "::1", Port: 5005}
	if c.Address() != "[::1]:5005" {
		t.Errorf("Address = %q", c.Address())
	}
	c.URL = "ws://h:1/x"
	if c.Address() != "ws://h:1/x" {
		t.Errorf("Address with URL = %q", c.Address())
	}
}

func TestConfig_ApplyTunnelSpec(t *testing.T) {
	c := &Config{TunnelSpec: "dev@bastion:2200"}
	if err := c.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	if !c.TunnelEnabled || c.TunnelUser != "dev" || c.TunnelHost != "bastion" || c.TunnelPort != 2200 {
		t.Errorf("tunnel = %+v", c)
	}

	c = &Config{TunnelSpec: "a@b@c:x"}
	var ce *ncerr.ConfigError
	if err := c.ApplyTunnelSpec(); !ncerr.As(err, &ce) || ce.Field != "tunnel" {
		t.Errorf("err = %v, want tunnel ConfigError", err)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Timeout != DefaultConnTimeout || c.DetachTimeout != DefaultDetachTimeout || c.Verbose != 1 {
		t.Errorf("defaults = %+v", c)
	}
}

// ── Validation ───────────────────────────────────────────────────────

func TestValidate_OK(t *testing.T) {
	valid := []*Config{
		{Host: "localhost", Port: 5005},
		{URL: "ws://127.0.0.1:9229/x"},
		{Host: "10.0.0.1", Port: 5005, NoDNS: true},
		{Host: "db", Port: 5005, TunnelSpec: "me@gw", TunnelEnabled: true, TunnelHost: "gw", UseSSHAgent: true},
		{Host: "localhost", Port: 5005, Reconnect: true, MaxRetries: 0, DetachTimeout: 0},
	}
	for i, c := range valid {
		if err := c.Validate(); err != nil {
			t.Errorf("config %d: unexpected error %v", i, err)
		}
	}
}

// TestValidate_Errors verifies that Validate names the offending field
// and carries a hint where one helps.
func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
		wantHint  bool
	}{
		{"no endpoint", Config{}, "host", true},
		{"no port", Config{Host: "h"}, "port", true},
		{"bad url", Config{URL: "localhost:9229"}, "ws", true},
		{"no dns", Config{Host: "example.com", Port: 1, NoDNS: true}, "no-dns", true},
		{"negative timeout", Config{Host: "h", Port: 1, Timeout: -time.Second}, "timeout", false},
		{"negative detach", Config{Host: "h", Port: 1, DetachTimeout: -1}, "detach-timeout", true},
		{"negative retries", Config{Host: "h", Port: 1, MaxRetries: -1}, "max-retries", true},
		{"local port with ws", Config{URL: "ws://h:1/", LocalPort: 4000}, "local-port", false},
		{"ssh opts without tunnel", Config{Host: "h", Port: 1, SSHPassword: true}, "tunnel", true},
		{"tunnel without host", Config{Host: "h", Port: 1, TunnelEnabled: true}, "tunnel", true},
		{"exec conflict", Config{Host: "h", Port: 1, Execute: "a", Command: "b"}, "exec", false},
		{"relay with exec", Config{Host: "h", Port: 1, Relay: true, Command: "jq ."}, "relay", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			var ce *ncerr.ConfigError
			if !ncerr.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ce.Field, tt.wantField)
			}
			if hasHint := strings.Contains(err.Error(), "hint:"); hasHint != tt.wantHint {
				t.Errorf("hint present = %v in %q", hasHint, err.Error())
			}
		})
	}
}
