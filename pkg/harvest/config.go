package harvest

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/bidharvest/internal/auth"
	"github.com/jmylchreest/bidharvest/internal/browser"
)

// Config describes one portal and how to drive it. Keys match the config file
// and BIDHARVEST_* environment variables.
type Config struct {
	Portal string `mapstructure:"portal" yaml:"portal" validate:"required"`

	LoginURL         string `mapstructure:"login_url" yaml:"login_url" validate:"omitempty,url"`
	ListingRootURL   string `mapstructure:"listing_root_url" yaml:"listing_root_url" validate:"omitempty,url"`
	ListingSearchURL string `mapstructure:"listing_search_url" yaml:"listing_search_url" validate:"omitempty,url"`
	ListingListURL   string `mapstructure:"listing_list_url" yaml:"listing_list_url" validate:"omitempty,url"`

	// AuthenticatedPattern and LoginPattern are regular expressions matched
	// against the post-login URL.
	AuthenticatedPattern string `mapstructure:"authenticated_pattern" yaml:"authenticated_pattern"`
	LoginPattern         string `mapstructure:"login_pattern" yaml:"login_pattern"`
	// RequireLogin makes a missing credential pair a fatal error instead of
	// an anonymous run.
	RequireLogin bool `mapstructure:"require_login" yaml:"require_login"`

	Headless       bool   `mapstructure:"headless" yaml:"headless"`
	Stealth        bool   `mapstructure:"stealth" yaml:"stealth"`
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width" yaml:"viewport_width" validate:"gte=320,lte=7680"`
	ViewportHeight int    `mapstructure:"viewport_height" yaml:"viewport_height" validate:"gte=240,lte=4320"`
	ChromePath     string `mapstructure:"chrome_path" yaml:"chrome_path"`

	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
	ElementTimeout      time.Duration `mapstructure:"element_timeout" yaml:"element_timeout" validate:"gt=0"`
	SettleTimeout       time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout" validate:"gt=0"`
	SubmitSettleTimeout time.Duration `mapstructure:"submit_settle_timeout" yaml:"submit_settle_timeout" validate:"gt=0"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay" validate:"gte=0"`

	// Keywords replaces the default bid vocabulary when set.
	Keywords []string `mapstructure:"keywords" yaml:"keywords" validate:"dive,required"`
	// Timezone is the IANA zone listing dates are read in. Empty means local.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	DebugDir      string `mapstructure:"debug_dir" yaml:"debug_dir"`
	EnrichDetails bool   `mapstructure:"enrich_details" yaml:"enrich_details"`
}

// DefaultConfig returns sensible defaults. Portal URLs have no default.
func DefaultConfig() Config {
	bc := browser.DefaultConfig()
	return Config{
		Portal:              "vendorportal",
		RequireLogin:        true,
		Headless:            true,
		Stealth:             true,
		UserAgent:           bc.UserAgent,
		ViewportWidth:       bc.ViewportWidth,
		ViewportHeight:      bc.ViewportHeight,
		NavigationTimeout:   30 * time.Second,
		ElementTimeout:      10 * time.Second,
		SettleTimeout:       15 * time.Second,
		SubmitSettleTimeout: 20 * time.Second,
		SettleDelay:         1500 * time.Millisecond,
		DebugDir:            "debug",
	}
}

var validate = validator.New()

// compiled holds the parts of Config that need parsing.
type compiled struct {
	authenticated *regexp.Regexp
	login         *regexp.Regexp
	loc           *time.Location
}

// Validate checks field constraints, patterns and the timezone.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}

func (c Config) compile() (compiled, error) {
	out := compiled{
		authenticated: auth.DefaultAuthenticatedURL,
		login:         auth.DefaultLoginURL,
		loc:           time.Local,
	}
	if err := validate.Struct(c); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ListingRootURL == "" && c.ListingSearchURL == "" && c.ListingListURL == "" {
		return out, fmt.Errorf("%w: one of listing_root_url, listing_search_url or listing_list_url is required", ErrInvalidConfig)
	}
	if c.AuthenticatedPattern != "" {
		re, err := regexp.Compile(c.AuthenticatedPattern)
		if err != nil {
			return out, fmt.Errorf("%w: authenticated_pattern: %v", ErrInvalidConfig, err)
		}
		out.authenticated = re
	}
	if c.LoginPattern != "" {
		re, err := regexp.Compile(c.LoginPattern)
		if err != nil {
			return out, fmt.Errorf("%w: login_pattern: %v", ErrInvalidConfig, err)
		}
		out.login = re
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return out, fmt.Errorf("%w: timezone: %v", ErrInvalidConfig, err)
		}
		out.loc = loc
	}
	return out, nil
}

func (c Config) browserConfig() browser.Config {
	return browser.Config{
		Headless:          c.Headless,
		Stealth:           c.Stealth,
		UserAgent:         c.UserAgent,
		ViewportWidth:     c.ViewportWidth,
		ViewportHeight:    c.ViewportHeight,
		ExecPath:          c.ChromePath,
		NavigationTimeout: c.NavigationTimeout,
		ElementTimeout:    c.ElementTimeout,
	}
}
