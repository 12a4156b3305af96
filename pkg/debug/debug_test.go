package debug

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "auth", map[string]bool{"auth": true}},
		{"multiple", "auth,keys", map[string]bool{"auth": true, "keys": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " auth , keys ", map[string]bool{"auth": true, "keys": true}},
		{"uppercase normalized", "AUTH,Keys", map[string]bool{"auth": true, "keys": true}},
		{"empty segments", "auth,,keys", map[string]bool{"auth": true, "keys": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("auth,keys")

	if !Enabled("auth") {
		t.Error("auth should be enabled")
	}
	if Enabled("settings") {
		t.Error("settings should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled("anything") {
		t.Error("anything should be enabled via 'all'")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInit_JSONFormat(t *testing.T) {
	t.Setenv("LENS_DEBUG", "")
	t.Setenv("LENS_LOG_LEVEL", "")
	orig := slog.Default()
	defer slog.SetDefault(orig)

	var buf bytes.Buffer
	logger := Init(Options{Categories: "auth", Level: "DEBUG", Format: "json", Output: &buf})

	Log("auth", "guard evaluated", "state", "accepted")
	Log("keys", "not emitted")

	if logger != slog.Default() {
		t.Error("Init should install the returned logger as default")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["debug"] != "auth" || entry["state"] != "accepted" {
		t.Errorf("entry = %v", entry)
	}
}

func TestInit_EnvOverridesConfig(t *testing.T) {
	t.Setenv("LENS_DEBUG", "keys")
	t.Setenv("LENS_LOG_LEVEL", "ERROR")
	orig := slog.Default()
	defer slog.SetDefault(orig)

	var buf bytes.Buffer
	Init(Options{Categories: "auth", Level: "DEBUG", Output: &buf})

	if Enabled("auth") {
		t.Error("config category should be overridden by LENS_DEBUG")
	}
	if !Enabled("keys") {
		t.Error("keys should be enabled from LENS_DEBUG")
	}
	slog.Warn("dropped")
	if buf.Len() != 0 {
		t.Errorf("WARN should be dropped at ERROR level, got %q", buf.String())
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"abc":        "****",
		"s3cret-key": "s3********",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
