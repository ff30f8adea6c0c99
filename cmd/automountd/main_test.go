package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/infrastructure/config"
	"github.com/nerrad567/automountd/internal/infrastructure/logging"
	"github.com/nerrad567/automountd/internal/journal"
	"github.com/nerrad567/automountd/internal/metrics"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-version"}, &out); err != nil {
		t.Fatalf("run(-version) error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "automountd dev") {
		t.Errorf("version output = %q, want prefix %q", out.String(), "automountd dev")
	}
}

func TestRun_BadFlags(t *testing.T) {
	tests := [][]string{
		{"-nonsense"},
		{"extra-arg"},
	}
	for _, args := range tests {
		if err := run(context.Background(), args, &bytes.Buffer{}); err == nil {
			t.Errorf("run(%v) succeeded, want error", args)
		}
	}
}

// TestRun_InvalidConfig verifies run fails before touching the system when
// the configuration is unusable.
func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		args    []string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			content: "paths: [not, a, map",
			wantErr: "parsing config file",
		},
		{
			name:    "relative working directory",
			content: "paths:\n  working_directory: relative/dir\n",
			wantErr: "working_directory",
		},
		{
			name:    "relative workdir flag",
			content: "api:\n  enabled: false\n",
			args:    []string{"-workdir", "mounts"},
			wantErr: "working_directory",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "config"+string(rune('a'+i))+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("writing config: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			args := append([]string{"-config", path}, tt.args...)
			err := run(ctx, args, &bytes.Buffer{})
			if err == nil {
				t.Fatal("run() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("AUTOMOUNTD_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("AUTOMOUNTD_CONFIG", "/etc/automountd.yaml")
	if got := getConfigPath(); got != "/etc/automountd.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/automountd.yaml", got)
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv("AUTOMOUNTD_CONFIG", "/from/env.yaml")

	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != "/from/env.yaml" {
		t.Errorf("configPath = %q, want the environment value", opts.configPath)
	}

	opts, err = parseFlags([]string{"-config", "/from/flag.yaml", "-workdir", "/srv/mounts"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if opts.configPath != "/from/flag.yaml" {
		t.Errorf("configPath = %q, want the flag value", opts.configPath)
	}
	if opts.workdir != "/srv/mounts" {
		t.Errorf("workdir = %q, want /srv/mounts", opts.workdir)
	}
}

func TestLoadConfig_WorkdirOverride(t *testing.T) {
	cfg, err := loadConfig(options{
		configPath: filepath.Join(t.TempDir(), "missing.yaml"),
		workdir:    "/srv/automount",
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Paths.WorkingDirectory != "/srv/automount" {
		t.Errorf("WorkingDirectory = %q, want /srv/automount", cfg.Paths.WorkingDirectory)
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func TestStartSinks_AllDisabled(t *testing.T) {
	s := startSinks(context.Background(), &config.Config{}, testLogger())
	defer s.Close()

	if got := s.notifySinks(); len(got) != 0 {
		t.Errorf("notifySinks() = %d sinks, want 0", len(got))
	}
	if s.journalRepo() != nil {
		t.Error("journalRepo() != nil with the journal disabled")
	}
	if got := s.healthChecks(); len(got) != 0 {
		t.Errorf("healthChecks() = %v, want none", got)
	}
}

func TestStartSinks_Journal(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Enabled:     true,
			Path:        filepath.Join(t.TempDir(), "journal.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
	ctx := context.Background()
	s := startSinks(ctx, cfg, testLogger())
	defer s.Close()

	repo := s.journalRepo()
	if repo == nil {
		t.Fatal("journalRepo() = nil, want the SQLite journal")
	}
	if _, ok := s.healthChecks()["database"]; !ok {
		t.Error("healthChecks() missing database")
	}
	if got := len(s.notifySinks()); got != 1 {
		t.Errorf("notifySinks() = %d, want 1", got)
	}

	if err := repo.Append(ctx, &journal.Event{Kind: journal.DeviceAdded, DeviceID: 1, Devlink: "/dev/disk/by-id/usb-X"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	res, err := repo.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Total = %d, want 1", res.Total)
	}
}

func TestStartSinks_UnreachableMQTTIsSkipped(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Enabled:     true,
			Broker:      config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1, ClientID: "automountd-test"},
			QoS:         1,
			TopicPrefix: "automountd",
		},
	}
	s := startSinks(context.Background(), cfg, testLogger())
	defer s.Close()

	if s.mqtt != nil {
		t.Error("mqtt client set for an unreachable broker")
	}
	if got := len(s.notifySinks()); got != 0 {
		t.Errorf("notifySinks() = %d, want 0", got)
	}
}

func TestRegistryObservers_WithoutInflux(t *testing.T) {
	o := registryObservers{prom: metrics.New(nil)}
	o.MountResult(true)
	o.UnmountResult(false)
	o.ObserveRegistry(device.Stats{Devices: 1})
}
