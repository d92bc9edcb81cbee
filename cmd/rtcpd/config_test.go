package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rtcpd.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDaemonConfigDefaults(t *testing.T) {
	cfg, err := loadDaemonConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StatusAddr != ":9464" {
		t.Fatalf("status addr = %q", cfg.StatusAddr)
	}
	if cfg.KeepAliveInterval != 10*time.Second {
		t.Fatalf("keep-alive interval = %v", cfg.KeepAliveInterval)
	}
	if !cfg.Transport.CalculateCRC {
		t.Fatalf("crc default wrong")
	}
}

func TestLoadDaemonConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":5200"
listening_ports = [5200]
calculate_crc = false
logical_ports = [7400]
status_addr = ":9999"
keep_alive_interval = "2s"
`)
	cfg, err := loadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.ListenAddr != ":5200" {
		t.Fatalf("listen addr = %q", cfg.Transport.ListenAddr)
	}
	if cfg.Transport.CalculateCRC {
		t.Fatalf("calculate_crc override ignored")
	}
	if cfg.StatusAddr != ":9999" {
		t.Fatalf("status addr = %q", cfg.StatusAddr)
	}
	if cfg.KeepAliveInterval != 2*time.Second {
		t.Fatalf("keep-alive interval = %v", cfg.KeepAliveInterval)
	}
}

func TestLoadDaemonConfigUndefinedKeysKeepDefaults(t *testing.T) {
	cfg, err := loadDaemonConfig(writeConfig(t, `listen_addr = ":5300"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Transport.CalculateCRC || !cfg.Transport.CheckCRC {
		t.Fatalf("undefined keys overwrote defaults: %+v", cfg.Transport)
	}
}

func TestLoadDaemonConfigBadDuration(t *testing.T) {
	if _, err := loadDaemonConfig(writeConfig(t, `keep_alive_interval = "soon"`)); err == nil {
		t.Fatalf("bad duration accepted")
	}
}
