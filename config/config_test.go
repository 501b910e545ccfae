package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/mojo-wire/codec"
	"github.com/wippyai/mojo-wire/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	want := codec.Limits{MaxDepth: 100, MaxMessageSize: 4 << 20}
	if diff := cmp.Diff(want, cfg.Codec.Limits()); diff != "" {
		t.Errorf("limits (-want +got):\n%s", diff)
	}
	if cfg.Pipes.DefaultDataPipeCapacity != 64<<10 {
		t.Errorf("data pipe capacity = %d", cfg.Pipes.DefaultDataPipeCapacity)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
[codec]
max_message_size = "1MiB"
max_depth = 16

[pipes]
default_data_pipe_capacity = "4KiB"

[log]
level = "debug"
development = true
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := Config{
		Codec: CodecConfig{MaxMessageSize: 1 << 20, MaxDepth: 16, MaxHandles: DefaultMaxHandles},
		Pipes: PipesConfig{DefaultDataPipeCapacity: 4 << 10, MaxQueuedMessages: DefaultMaxQueuedMessages},
		Log:   LogConfig{Level: "debug", Development: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind errors.Kind
	}{
		{"bad toml", `[codec`, errors.KindInvalidData},
		{"bad size", "[codec]\nmax_message_size = \"lots\"", errors.KindInvalidData},
		{"unknown key", "[codec]\nmax_size = \"1MiB\"", errors.KindInvalidInput},
		{"negative depth", "[codec]\nmax_depth = -1", errors.KindInvalidInput},
		{"huge pipe", "[pipes]\ndefault_data_pipe_capacity = \"2GiB\"", errors.KindInvalidInput},
		{"bad level", "[log]\nlevel = \"loud\"", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("Parse() error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wire.toml")
	if err := os.WriteFile(path, []byte("[pipes]\nmax_queued_messages = 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipes.MaxQueuedMessages != 8 {
		t.Errorf("max_queued_messages = %d", cfg.Pipes.MaxQueuedMessages)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestSize_Text(t *testing.T) {
	var s Size
	if err := s.UnmarshalText([]byte(" 2MiB ")); err != nil {
		t.Fatal(err)
	}
	if s != 2<<20 {
		t.Fatalf("size = %d", s)
	}
	out, err := s.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "2MiB" {
		t.Errorf("MarshalText = %q", out)
	}
}

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		l, err := NewLogger(LogConfig{Level: "warn", Development: dev})
		if err != nil {
			t.Fatalf("NewLogger(dev=%v): %v", dev, err)
		}
		if l.Core().Enabled(-1) {
			t.Errorf("debug enabled at warn level (dev=%v)", dev)
		}
		_ = l.Sync()
	}

	if _, err := NewLogger(LogConfig{Level: "nope"}); err == nil {
		t.Fatal("expected error for bad level")
	}
}
