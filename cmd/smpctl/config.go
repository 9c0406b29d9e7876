package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/smpctl/internal/transport"
)

type fileConfig struct {
	Addr      string `toml:"addr"`
	Scheme    string `toml:"scheme"`
	MTU       int    `toml:"mtu"`
	Timeout   string `toml:"timeout"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

type clientConfig struct {
	Addr    string
	Scheme  transport.Scheme
	MTU     int
	Timeout time.Duration
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Addr:    "127.0.0.1:1337",
		Scheme:  transport.SchemeUDP,
		Timeout: 10 * time.Second,
	}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		addr := strings.TrimSpace(raw.Addr)
		if addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("scheme") {
		scheme, err := parseScheme(raw.Scheme)
		if err != nil {
			return clientConfig{}, err
		}
		cfg.Scheme = scheme
	}

	if meta.IsDefined("mtu") {
		if raw.MTU < transport.MTUMin || raw.MTU > transport.MTUMax {
			return clientConfig{}, fmt.Errorf("mtu %d out of range (%d-%d)", raw.MTU, transport.MTUMin, transport.MTUMax)
		}
		cfg.MTU = raw.MTU
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if meta.IsDefined("timeout_ms") {
		if raw.TimeoutMS <= 0 {
			return clientConfig{}, fmt.Errorf("timeout_ms must be positive, got %d", raw.TimeoutMS)
		}
		cfg.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}

	return cfg, nil
}

func parseScheme(raw string) (transport.Scheme, error) {
	switch transport.Scheme(strings.ToLower(strings.TrimSpace(raw))) {
	case transport.SchemeUDP:
		return transport.SchemeUDP, nil
	case transport.SchemeBLE:
		return transport.SchemeBLE, nil
	case transport.SchemeCoAP:
		return transport.SchemeCoAP, nil
	case transport.SchemeLoop:
		return transport.SchemeLoop, nil
	default:
		return "", fmt.Errorf("unknown scheme %q", raw)
	}
}
