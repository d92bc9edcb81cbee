package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// TransportConfig is the TCP transport descriptor consumed by the control
// manager and the transport itself.
type TransportConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	ListeningPorts []uint16 `toml:"listening_ports"`
	CalculateCRC   bool     `toml:"calculate_crc"`
	CheckCRC       bool     `toml:"check_crc"`
	WANAddr        string   `toml:"wan_addr"`
	LogicalPorts   []uint16 `toml:"logical_ports"`

	wan [4]byte
}

// WAN returns the parsed IPv4 WAN address bytes, all zero when unset.
func (c *TransportConfig) WAN() [4]byte { return c.wan }

func Default() TransportConfig {
	return TransportConfig{
		CalculateCRC: true,
		CheckCRC:     true,
	}
}

// Load reads and validates a TOML transport descriptor.
func Load(path string) (TransportConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return TransportConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return TransportConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return TransportConfig{}, err
	}
	return cfg, nil
}

// Validate checks field consistency and parses the WAN address.
func Validate(cfg *TransportConfig) error {
	for i, port := range cfg.ListeningPorts {
		if port == 0 {
			return fmt.Errorf("listening_ports[%d] must be non-zero", i)
		}
	}
	for i, port := range cfg.LogicalPorts {
		if port == 0 {
			return fmt.Errorf("logical_ports[%d] must be non-zero", i)
		}
	}
	wan := strings.TrimSpace(cfg.WANAddr)
	if wan == "" {
		cfg.wan = [4]byte{}
		return nil
	}
	parts := strings.Split(wan, ".")
	if len(parts) != 4 {
		return fmt.Errorf("wan_addr %q is not a dotted quad", cfg.WANAddr)
	}
	for i, part := range parts {
		b, err := strconv.Atoi(part)
		if err != nil || b < 0 || b > 255 {
			return fmt.Errorf("wan_addr %q is not a dotted quad", cfg.WANAddr)
		}
		cfg.wan[i] = byte(b)
	}
	return nil
}
