package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wqserver.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/wqserver.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}

	expected := Default()
	if cfg.DatabasePath != expected.DatabasePath {
		t.Errorf("expected database_path %q, got %q", expected.DatabasePath, cfg.DatabasePath)
	}
}

func TestLoadFileEmptyPath(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("LoadFile(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadFileValidTOML(t *testing.T) {
	content := `
log_level = "debug"
database_path = "custom.json"
dictionary_path = "/usr/share/dict/words"
read_buffer_size = 1024

[translator]
base_url = "http://translate.example.com"
timeout = "2s"

[registration]
address = ":7000"

[metrics]
enabled = true
address = ":9200"
path = "/metrics"
`

	path := createTempConfig(t, content)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", cfg.LogLevel)
	}
	if cfg.DatabasePath != "custom.json" {
		t.Errorf("database_path = %q, want 'custom.json'", cfg.DatabasePath)
	}
	if cfg.DictionaryPath != "/usr/share/dict/words" {
		t.Errorf("dictionary_path = %q, want '/usr/share/dict/words'", cfg.DictionaryPath)
	}
	if cfg.ReadBufferSize != 1024 {
		t.Errorf("read_buffer_size = %d, want 1024", cfg.ReadBufferSize)
	}
	if cfg.Translator.BaseURL != "http://translate.example.com" {
		t.Errorf("translator.base_url = %q, want 'http://translate.example.com'", cfg.Translator.BaseURL)
	}
	if cfg.Translator.TimeoutRaw != "2s" {
		t.Errorf("translator.timeout = %q, want '2s'", cfg.Translator.TimeoutRaw)
	}
	if cfg.Registration.Address != ":7000" {
		t.Errorf("registration.address = %q, want ':7000'", cfg.Registration.Address)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics.enabled = false, want true")
	}
	if cfg.Metrics.Address != ":9200" {
		t.Errorf("metrics.address = %q, want ':9200'", cfg.Metrics.Address)
	}
}

func TestLoadFileInvalidTOML(t *testing.T) {
	content := `
log_level = "debug
not valid toml at all [[[
`

	path := createTempConfig(t, content)

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestLoadFilePartial(t *testing.T) {
	content := `
log_level = "warn"
`

	path := createTempConfig(t, content)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want 'warn'", cfg.LogLevel)
	}

	defaults := Default()
	if cfg.DatabasePath != defaults.DatabasePath {
		t.Errorf("database_path = %q, want default %q", cfg.DatabasePath, defaults.DatabasePath)
	}
	if cfg.Registration.Address != defaults.Registration.Address {
		t.Errorf("registration.address = %q, want default %q", cfg.Registration.Address, defaults.Registration.Address)
	}
}

func TestParseArgsValid(t *testing.T) {
	argv := []string{"2000", "2001", "2", "15", "3", "8"}

	a, err := ParseArgs(argv)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if a.TCPPort != 2000 || a.UDPPort != 2001 {
		t.Errorf("ports = %d/%d, want 2000/2001", a.TCPPort, a.UDPPort)
	}
	if a.MatchMinutes != 2 || a.InvitationSeconds != 15 {
		t.Errorf("timing = %d/%d, want 2/15", a.MatchMinutes, a.InvitationSeconds)
	}
	if a.WordsPerMatch != 3 {
		t.Errorf("numWords = %d, want 3", a.WordsPerMatch)
	}
	if a.WorkerThreads != 8 {
		t.Errorf("workerThreads = %d, want 8", a.WorkerThreads)
	}
}

func TestParseArgsWithTrailingFlags(t *testing.T) {
	argv := []string{
		"2000", "2001", "2", "15", "3", "8",
		"-config", "/etc/wqserver.toml",
		"-metrics-addr", ":9300",
		"-dict", "/usr/share/dict/words",
	}

	a, err := ParseArgs(argv)
	if err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}

	if a.ConfigPath != "/etc/wqserver.toml" {
		t.Errorf("ConfigPath = %q, want '/etc/wqserver.toml'", a.ConfigPath)
	}
	if a.MetricsAddr != ":9300" {
		t.Errorf("MetricsAddr = %q, want ':9300'", a.MetricsAddr)
	}
	if a.DictPath != "/usr/share/dict/words" {
		t.Errorf("DictPath = %q, want '/usr/share/dict/words'", a.DictPath)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{name: "too few arguments", argv: []string{"2000", "2001", "2"}},
		{name: "non-numeric port", argv: []string{"abc", "2001", "2", "15", "3", "8"}},
		{name: "port too low", argv: []string{"80", "2001", "2", "15", "3", "8"}},
		{name: "worker threads too low", argv: []string{"2000", "2001", "2", "15", "3", "2"}},
		{name: "unrecognised flag", argv: []string{"2000", "2001", "2", "15", "3", "8", "-bogus", "x"}},
		{name: "dangling flag value", argv: []string{"2000", "2001", "2", "15", "3", "8", "-config"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.argv); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBuildLayersArgsOverFile(t *testing.T) {
	content := `
log_level = "debug"

[registration]
address = ":7000"
`
	path := createTempConfig(t, content)

	a := Args{
		TCPPort: 2000, UDPPort: 2001, MatchMinutes: 2,
		InvitationSeconds: 15, WordsPerMatch: 3, WorkerThreads: 8,
		ConfigPath: path,
	}

	cfg, err := Build(a)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if cfg.TCPPort != 2000 || cfg.WorkerThreads != 8 {
		t.Errorf("CLI fields not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want file value 'debug'", cfg.LogLevel)
	}
	if cfg.Registration.Address != ":7000" {
		t.Errorf("registration.address = %q, want file value ':7000'", cfg.Registration.Address)
	}
}

func TestBuildMetricsAddrOverride(t *testing.T) {
	a := Args{
		TCPPort: 2000, UDPPort: 2001, MatchMinutes: 2,
		InvitationSeconds: 15, WordsPerMatch: 3, WorkerThreads: 8,
		MetricsAddr: ":9999",
	}

	cfg, err := Build(a)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !cfg.Metrics.Enabled {
		t.Error("expected metrics to be enabled when -metrics-addr is given")
	}
	if cfg.Metrics.Address != ":9999" {
		t.Errorf("metrics.address = %q, want ':9999'", cfg.Metrics.Address)
	}
}
