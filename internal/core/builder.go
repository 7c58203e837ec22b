package core

import (
	"fmt"

	"vmconn/config"
	"vmconn/internal/capability"
	"vmconn/internal/metrics"
	"vmconn/internal/retry"
	"vmconn/internal/transport"
	"vmconn/tunnel"
	"vmconn/util"
)

// Build constructs the Mode for cfg.  cfg must have been validated and
// its tunnel spec applied.
func Build(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) (Mode, error) {
	address, err := endpointAddress(cfg)
	if err != nil {
		return nil, err
	}

	attach := &AttachMode{
		Dialer:        buildDialer(cfg, logger),
		Capability:    buildCapability(cfg, logger),
		Address:       address,
		DetachTimeout: cfg.DetachTimeout,
		Logger:        logger,
		Metrics:       collector,
	}
	if !cfg.Reconnect {
		return attach, nil
	}

	return &ReconnectMode{
		Attach: attach,
		Backoff: &retry.Backoff{
			InitialDelay: config.DefaultInitialBackoff,
			MaxDelay:     config.DefaultMaxReconnectBackoff,
			Multiplier:   2.0,
			MaxAttempts:  cfg.MaxRetries,
			Jitter:       true,
		},
		Breaker: retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
			MaxFailures:  config.DefaultBreakerFailures,
			ResetTimeout: config.DefaultBreakerReset,
			OnStateChange: func(from, to retry.BreakerState) {
				logger.Verbose("reconnect circuit %s -> %s", from, to)
			},
		}),
		Logger:  logger,
		Metrics: collector,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// endpointAddress is what the dialer receives.  Through a tunnel the
// host is resolved on the far side, so -n only applies to direct links.
func endpointAddress(cfg *config.Config) (string, error) {
	switch {
	case cfg.URL != "":
		return cfg.URL, nil
	case cfg.TunnelEnabled:
		return util.FormatAddr(cfg.Host, cfg.Port), nil
	default:
		addr, err := util.ResolveAddr(cfg.Host, cfg.Port, cfg.NoDNS)
		if err != nil {
			return "", fmt.Errorf("endpoint: %w", err)
		}
		return addr, nil
	}
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	var ssh *transport.SSHDialer
	if cfg.TunnelEnabled {
		ssh = transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
		}, logger)
	}

	if cfg.URL != "" {
		ws := &transport.WSDialer{Timeout: cfg.Timeout, PingInterval: cfg.PingInterval}
		if ssh != nil {
			ws.Via = ssh
		}
		return ws
	}
	if ssh != nil {
		return ssh
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout, LocalPort: cfg.LocalPort}
}

// buildCapability selects what runs while attached.
func buildCapability(cfg *config.Config, logger *util.Logger) capability.Capability {
	switch {
	case cfg.Execute != "" || cfg.Command != "":
		return &capability.Exec{Program: cfg.Execute, Command: cfg.Command, Logger: logger}
	case cfg.Relay:
		return &capability.Relay{Logger: logger}
	default:
		return capability.Watch{}
	}
}
