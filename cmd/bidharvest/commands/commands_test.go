package commands

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

const sampleConfig = `
portal: cityportal
login_url: https://bids.city.test/login
listing_root_url: https://bids.city.test/home
settle_timeout: 5s
settle_delay: 250ms
timezone: America/Chicago
keywords: [bid, rfp]
`

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	return v
}

// --- Config ---

func TestLoadConfig_FromYAML(t *testing.T) {
	cfg, err := loadConfig(newViper(t, sampleConfig))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Portal != "cityportal" {
		t.Errorf("expected cityportal, got %q", cfg.Portal)
	}
	if cfg.SettleTimeout != 5*time.Second || cfg.SettleDelay != 250*time.Millisecond {
		t.Errorf("expected durations from file, got %v / %v", cfg.SettleTimeout, cfg.SettleDelay)
	}
	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("expected default navigation timeout, got %v", cfg.NavigationTimeout)
	}
	if !cfg.Headless || !cfg.RequireLogin {
		t.Errorf("expected defaults to survive, got headless=%v require_login=%v", cfg.Headless, cfg.RequireLogin)
	}
	if len(cfg.Keywords) != 2 {
		t.Errorf("expected 2 keywords, got %v", cfg.Keywords)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BIDHARVEST_PORTAL", "fromenv")
	t.Setenv("BIDHARVEST_HEADLESS", "false")
	v := newViper(t, sampleConfig)
	v.SetEnvPrefix("BIDHARVEST")
	v.AutomaticEnv()

	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Portal != "fromenv" || cfg.Headless {
		t.Errorf("expected env overrides, got portal=%q headless=%v", cfg.Portal, cfg.Headless)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(newViper(t, "portal: x\n"))
	if !errors.Is(err, harvest.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without listing URLs, got %v", err)
	}
}

// --- Credentials ---

func TestLoadCredentials(t *testing.T) {
	v := viper.New()
	v.SetEnvPrefix("BIDHARVEST")
	v.AutomaticEnv()

	if c := loadCredentials(v); c != nil {
		t.Errorf("expected nil credentials, got %v", c)
	}

	t.Setenv("BIDHARVEST_USERNAME", " vendor ")
	t.Setenv("BIDHARVEST_PASSWORD", "s3cret")
	c := loadCredentials(v)
	if c == nil || c.Username != "vendor" || c.Password != "s3cret" {
		t.Fatalf("unexpected credentials")
	}
	if !c.Valid() {
		t.Error("expected valid credentials")
	}
}

// --- Exit codes ---

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{harvest.ErrMissingCredentials, exitFatal},
		{errors.Join(harvest.ErrBrowserLaunch, errors.New("no chrome")), exitFatal},
		{&harvest.RejectedError{Reason: "bad password"}, exitAuthFailed},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
