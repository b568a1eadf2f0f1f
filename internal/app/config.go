package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/lukasbauer/captions/internal/callframe"
	"github.com/lukasbauer/captions/internal/captions"
)

type Config struct {
	HTTPAddr string
	BaseURL  string // public URL of this service, also hosts the tray icon

	// Call service
	DailyDomain   string
	DailyRoom     string
	DailyAPIKey   string // signs tokens for POST /api/token
	DailyDomainID string
	TokenEndpoint string // where the session fetches its own meeting token
	TokenExpiry   time.Duration
	IsOwner       bool

	// Call frame host (WebSocket)
	CallFrameWSURL string

	// Captions UI
	Placement      captions.Placement
	AutoJoin       bool
	Display        DisplayConfig
	CaptionsConfig string // optional TOML file overriding Display

	// Ambient
	DatabaseURL       string
	SentryDSN         string
	LogLevel          string
	LogFormat         string
	DiscordWebhookURL string
}

// DisplayConfig holds the call frame display settings. It can be overridden
// from a TOML file.
type DisplayConfig struct {
	ShowLeaveButton bool                 `toml:"show_leave_button"`
	IframeStyle     map[string]string    `toml:"iframe_style"`
	UnknownSpeaker  string               `toml:"unknown_speaker"`
	TrayButtons     captions.TrayButtons `toml:"tray_buttons"`
}

func LoadConfigFromEnv() Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	baseURL := strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/")

	// Unknown placements are kept as-is and rejected by Validate
	placement := captions.Placement(getenv("TOGGLE_PLACEMENT", string(captions.PlacementTray)))
	if p, err := captions.ParsePlacement(string(placement)); err == nil {
		placement = p
	}

	cfg := Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		BaseURL:  baseURL,

		// Call service
		DailyDomain:   getenv("DAILY_DOMAIN", ""),
		DailyRoom:     getenv("DAILY_ROOM", ""),
		DailyAPIKey:   os.Getenv("DAILY_API_KEY"), // Required for /api/token - no fallback
		DailyDomainID: getenv("DAILY_DOMAIN_ID", ""),
		TokenEndpoint: getenv("TOKEN_ENDPOINT", baseURL+"/api/token"),
		TokenExpiry:   getenvDuration("TOKEN_EXPIRY", time.Hour),
		IsOwner:       getenvBool("IS_OWNER", true),

		// Call frame host
		CallFrameWSURL: getenv("CALL_FRAME_WS_URL", "ws://localhost:9222/frame"),

		// Captions UI
		Placement: placement,
		AutoJoin:  getenvBool("AUTO_JOIN", true),
		Display: DisplayConfig{
			ShowLeaveButton: true,
			IframeStyle:     callframe.FullViewportStyle(),
			UnknownSpeaker:  captions.DefaultUnknownSpeaker,
			TrayButtons:     captions.DefaultTrayButtons(baseURL),
		},
		CaptionsConfig: getenv("CAPTIONS_CONFIG", ""),

		// Ambient
		DatabaseURL:       getenv("DATABASE_URL", ""),
		SentryDSN:         getenv("SENTRY_DSN", ""),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
	}
	return cfg
}

// ApplyConfigFile overlays the display settings from a TOML file. Keys absent
// from the file keep their current values.
func (c *Config) ApplyConfigFile(path string) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, &c.Display)
	if err != nil {
		return fmt.Errorf("read captions config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("captions config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Validate reports settings the service cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.DailyDomain == "" {
		errs = append(errs, errors.New("DAILY_DOMAIN is required"))
	}
	if c.DailyRoom == "" {
		errs = append(errs, errors.New("DAILY_ROOM is required"))
	}
	if _, err := captions.ParsePlacement(string(c.Placement)); err != nil {
		errs = append(errs, fmt.Errorf("TOGGLE_PLACEMENT: %w", err))
	}
	if c.TokenEndpoint == "" {
		errs = append(errs, errors.New("TOKEN_ENDPOINT is required"))
	}
	if c.CallFrameWSURL == "" {
		errs = append(errs, errors.New("CALL_FRAME_WS_URL is required"))
	}
	return errors.Join(errs...)
}

// RoomURL is the call service URL of the configured room.
func (c Config) RoomURL() string {
	return fmt.Sprintf("https://%s.daily.co/%s", c.DailyDomain, c.DailyRoom)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(k, def.String()))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
