package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transport.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":5100"
listening_ports = [5100]
calculate_crc = true
check_crc = false
wan_addr = "80.80.99.45"
logical_ports = [7400, 7410]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":5100" || len(cfg.ListeningPorts) != 1 || cfg.ListeningPorts[0] != 5100 {
		t.Fatalf("listen fields wrong: %+v", cfg)
	}
	if !cfg.CalculateCRC || cfg.CheckCRC {
		t.Fatalf("crc fields wrong: %+v", cfg)
	}
	if cfg.WAN() != [4]byte{80, 80, 99, 45} {
		t.Fatalf("wan = %v", cfg.WAN())
	}
	if len(cfg.LogicalPorts) != 2 {
		t.Fatalf("logical ports = %v", cfg.LogicalPorts)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.CalculateCRC || !cfg.CheckCRC {
		t.Fatalf("crc defaults wrong: %+v", cfg)
	}
	if cfg.WAN() != [4]byte{} {
		t.Fatalf("wan default not zero: %v", cfg.WAN())
	}
}

func TestLoadRejectsBadWAN(t *testing.T) {
	if _, err := Load(writeConfig(t, `wan_addr = "not-an-ip"`)); err == nil {
		t.Fatalf("bad wan_addr accepted")
	}
	if _, err := Load(writeConfig(t, `wan_addr = "1.2.3.999"`)); err == nil {
		t.Fatalf("out-of-range octet accepted")
	}
}

func TestLoadRejectsZeroPorts(t *testing.T) {
	if _, err := Load(writeConfig(t, `listening_ports = [0]`)); err == nil {
		t.Fatalf("zero listening port accepted")
	}
	if _, err := Load(writeConfig(t, `logical_ports = [0]`)); err == nil {
		t.Fatalf("zero logical port accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
