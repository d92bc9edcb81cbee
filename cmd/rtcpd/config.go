package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/rtcpctl/internal/config"
)

type daemonConfig struct {
	Transport         config.TransportConfig
	StatusAddr        string
	CorsOrigins       []string
	KeepAliveInterval time.Duration
}

type fileConfig struct {
	ListenAddr        string   `toml:"listen_addr"`
	ListeningPorts    []uint16 `toml:"listening_ports"`
	CalculateCRC      bool     `toml:"calculate_crc"`
	CheckCRC          bool     `toml:"check_crc"`
	WANAddr           string   `toml:"wan_addr"`
	LogicalPorts      []uint16 `toml:"logical_ports"`
	StatusAddr        string   `toml:"status_addr"`
	CorsOrigins       []string `toml:"cors_origins"`
	KeepAliveInterval string   `toml:"keep_alive_interval"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Transport:         config.Default(),
		StatusAddr:        ":9464",
		KeepAliveInterval: 10 * time.Second,
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load rtcpd config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.Transport.ListenAddr = raw.ListenAddr
	}
	if meta.IsDefined("listening_ports") {
		cfg.Transport.ListeningPorts = raw.ListeningPorts
	}
	if meta.IsDefined("calculate_crc") {
		cfg.Transport.CalculateCRC = raw.CalculateCRC
	}
	if meta.IsDefined("check_crc") {
		cfg.Transport.CheckCRC = raw.CheckCRC
	}
	if meta.IsDefined("wan_addr") {
		cfg.Transport.WANAddr = raw.WANAddr
	}
	if meta.IsDefined("logical_ports") {
		cfg.Transport.LogicalPorts = raw.LogicalPorts
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = raw.StatusAddr
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("keep_alive_interval") {
		d, err := time.ParseDuration(raw.KeepAliveInterval)
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse keep_alive_interval: %w", err)
		}
		cfg.KeepAliveInterval = d
	}

	if err := config.Validate(&cfg.Transport); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}
