package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lukasbauer/captions/internal/captions"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		envKey   string
		envValue string
		defValue string
		want     string
	}{
		{
			name:     "env set",
			envKey:   "TEST_ENV_VAR",
			envValue: "custom_value",
			defValue: "default",
			want:     "custom_value",
		},
		{
			name:     "env not set",
			envKey:   "TEST_ENV_VAR_NOTSET",
			envValue: "",
			defValue: "default",
			want:     "default",
		},
		{
			name:     "empty default",
			envKey:   "TEST_ENV_VAR_EMPTY",
			envValue: "",
			defValue: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}

			got := getenv(tt.envKey, tt.defValue)
			if got != tt.want {
				t.Errorf("getenv(%q, %q) = %q, want %q", tt.envKey, tt.defValue, got, tt.want)
			}
		})
	}
}

func TestGetenvBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		want     bool
	}{
		{name: "unset uses default", envValue: "", def: true, want: true},
		{name: "true", envValue: "true", def: false, want: true},
		{name: "one", envValue: "1", def: false, want: true},
		{name: "false", envValue: "false", def: true, want: false},
		{name: "garbage uses default", envValue: "maybe", def: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.envValue)
			if got := getenvBool("TEST_BOOL_VAR", tt.def); got != tt.want {
				t.Errorf("getenvBool = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetenvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{name: "unset uses default", envValue: "", want: time.Hour},
		{name: "valid", envValue: "15m", want: 15 * time.Minute},
		{name: "invalid uses default", envValue: "soon", want: time.Hour},
		{name: "negative uses default", envValue: "-5m", want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION_VAR", tt.envValue)
			if got := getenvDuration("TEST_DURATION_VAR", time.Hour); got != tt.want {
				t.Errorf("getenvDuration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BASE_URL", "https://captions.example.com/")
	t.Setenv("DAILY_DOMAIN", "acme")
	t.Setenv("DAILY_ROOM", "standup")
	t.Setenv("TOGGLE_PLACEMENT", "overlay")
	t.Setenv("IS_OWNER", "false")
	t.Setenv("TOKEN_ENDPOINT", "")

	cfg := LoadConfigFromEnv()

	if cfg.BaseURL != "https://captions.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.RoomURL() != "https://acme.daily.co/standup" {
		t.Errorf("RoomURL() = %q", cfg.RoomURL())
	}
	if cfg.Placement != captions.PlacementOverlay {
		t.Errorf("Placement = %q, want overlay", cfg.Placement)
	}
	if cfg.IsOwner {
		t.Error("IsOwner should be false")
	}
	if cfg.TokenEndpoint != "https://captions.example.com/api/token" {
		t.Errorf("TokenEndpoint = %q, want default under BASE_URL", cfg.TokenEndpoint)
	}
	if cfg.Display.TrayButtons.Start.IconPath != "https://captions.example.com/subtitles.svg" {
		t.Errorf("start icon = %q", cfg.Display.TrayButtons.Start.IconPath)
	}
	if !cfg.Display.ShowLeaveButton || cfg.Display.IframeStyle["position"] != "fixed" {
		t.Errorf("display defaults = %+v", cfg.Display)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadConfigBadPlacementFailsValidation(t *testing.T) {
	t.Setenv("DAILY_DOMAIN", "acme")
	t.Setenv("DAILY_ROOM", "standup")
	t.Setenv("TOGGLE_PLACEMENT", "sidebar")

	cfg := LoadConfigFromEnv()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "TOGGLE_PLACEMENT") {
		t.Errorf("Validate() = %v, want TOGGLE_PLACEMENT error", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Placement:      captions.PlacementTray,
		TokenEndpoint:  "http://localhost/api/token",
		CallFrameWSURL: "ws://localhost/frame",
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail without domain and room")
	}
	for _, key := range []string{"DAILY_DOMAIN", "DAILY_ROOM"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should mention %s", err, key)
		}
	}
}

func TestApplyConfigFile(t *testing.T) {
	cfg := Config{Display: DisplayConfig{
		ShowLeaveButton: true,
		UnknownSpeaker:  captions.DefaultUnknownSpeaker,
		TrayButtons:     captions.DefaultTrayButtons("https://captions.example.com"),
	}}

	path := filepath.Join(t.TempDir(), "captions.toml")
	content := `
show_leave_button = false
unknown_speaker = "Someone"

[iframe_style]
width = "50%"

[tray_buttons.start]
label = "CC"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := cfg.ApplyConfigFile(path); err != nil {
		t.Fatalf("ApplyConfigFile failed: %v", err)
	}

	if cfg.Display.ShowLeaveButton {
		t.Error("show_leave_button should be overridden")
	}
	if cfg.Display.UnknownSpeaker != "Someone" {
		t.Errorf("UnknownSpeaker = %q", cfg.Display.UnknownSpeaker)
	}
	if cfg.Display.IframeStyle["width"] != "50%" {
		t.Errorf("IframeStyle = %v", cfg.Display.IframeStyle)
	}
	if cfg.Display.TrayButtons.Start.Label != "CC" {
		t.Errorf("start label = %q, want CC", cfg.Display.TrayButtons.Start.Label)
	}
	// Keys absent from the file keep their values
	if cfg.Display.TrayButtons.Stop.Label != "Stop CC" {
		t.Errorf("stop label = %q, want Stop CC", cfg.Display.TrayButtons.Stop.Label)
	}
}

func TestApplyConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.toml")
	if err := os.WriteFile(unknown, []byte(`colour = "red"`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.toml")},
		{name: "unknown key", path: unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			if err := cfg.ApplyConfigFile(tt.path); err == nil {
				t.Error("ApplyConfigFile should fail")
			}
		})
	}

	cfg := Config{}
	if err := cfg.ApplyConfigFile(""); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
}
