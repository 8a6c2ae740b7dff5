package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

// setDefaults registers every harvest.Config key so that environment
// variables and Unmarshal see them.
func setDefaults(v *viper.Viper) {
	d := harvest.DefaultConfig()
	v.SetDefault("portal", d.Portal)
	v.SetDefault("login_url", d.LoginURL)
	v.SetDefault("listing_root_url", d.ListingRootURL)
	v.SetDefault("listing_search_url", d.ListingSearchURL)
	v.SetDefault("listing_list_url", d.ListingListURL)
	v.SetDefault("authenticated_pattern", d.AuthenticatedPattern)
	v.SetDefault("login_pattern", d.LoginPattern)
	v.SetDefault("require_login", d.RequireLogin)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("stealth", d.Stealth)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("viewport_width", d.ViewportWidth)
	v.SetDefault("viewport_height", d.ViewportHeight)
	v.SetDefault("chrome_path", d.ChromePath)
	v.SetDefault("navigation_timeout", d.NavigationTimeout)
	v.SetDefault("element_timeout", d.ElementTimeout)
	v.SetDefault("settle_timeout", d.SettleTimeout)
	v.SetDefault("submit_settle_timeout", d.SubmitSettleTimeout)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("keywords", d.Keywords)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("debug_dir", d.DebugDir)
	v.SetDefault("enrich_details", d.EnrichDetails)
}

// loadConfig builds and validates a harvest.Config from viper.
func loadConfig(v *viper.Viper) (harvest.Config, error) {
	cfg := harvest.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", harvest.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadCredentials reads the credential pair from the environment. It returns
// nil when neither half is set.
func loadCredentials(v *viper.Viper) *harvest.Credentials {
	user := strings.TrimSpace(v.GetString("username"))
	pass := v.GetString("password")
	if user == "" && pass == "" {
		return nil
	}
	return &harvest.Credentials{Username: user, Password: pass}
}
