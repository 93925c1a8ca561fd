// ABOUTME: Listener setup for the admin server
// ABOUTME: Plain TCP by default, a tsnet node with optional TLS or Funnel when Tailscale is enabled

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/tsnet"

	"github.com/lanternops/agentadmin/internal/config"
)

// setupListener returns the listener to serve on plus a cleanup function.
// With Tailscale disabled this is a plain TCP listener on the configured
// address; otherwise a tsnet node is brought up first.
func setupListener(ctx context.Context, cfg *config.Config, logger *slog.Logger) (net.Listener, func(), error) {
	if !cfg.Tailscale.Enabled {
		ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on %s: %w", cfg.Server.HTTPAddr, err)
		}
		return ln, func() {}, nil
	}
	return setupTailscaleListener(ctx, cfg.Tailscale, logger)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "agentadmin", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener brings up a tsnet node and returns a listener on it.
func setupTailscaleListener(ctx context.Context, tsCfg config.TailscaleConfig, logger *slog.Logger) (net.Listener, func(), error) {
	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	ts := &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}
	cleanup := func() { _ = ts.Close() }

	logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := ts.Up(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = strings.TrimSuffix(status.Self.DNSName, ".")
	}
	logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	switch {
	case tsCfg.Funnel:
		logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := ts.ListenFunnel("tcp", ":443")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, cleanup, nil
	case tsCfg.CertFile != "" && tsCfg.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(tsCfg.CertFile, tsCfg.KeyFile)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("loading tailscale TLS cert: %w", err)
		}
		ln, err := ts.Listen("tcp", ":443")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		logger.Info("enabling HTTPS with configured certs on :443")
		return tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}), cleanup, nil
	default:
		ln, err := ts.Listen("tcp", ":80")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, cleanup, nil
	}
}
