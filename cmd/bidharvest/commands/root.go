// Package commands implements the CLI commands for bidharvest.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/bidharvest/internal/logger"
	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

// Exit codes by failure class.
const (
	exitOK         = 0
	exitFatal      = 1
	exitAuthFailed = 3
)

var rootCmd = &cobra.Command{
	Use:   "bidharvest",
	Short: "Extract open bids from a procurement vendor portal",
	Long: `bidharvest logs into a procurement vendor portal with a headless browser,
walks the paginated bid listing and emits every open bid it finds.

Credentials are read from BIDHARVEST_USERNAME and BIDHARVEST_PASSWORD.
Everything else can be set in $HOME/.bidharvest.yaml, ./.bidharvest.yaml,
BIDHARVEST_* environment variables or flags.

Examples:
  # One run, table on stdout
  bidharvest scrape --format table

  # One run into SQLite, with failure screenshots
  bidharvest scrape --store sqlite://bids.db --screenshots

  # Every six hours into Postgres, with metrics on :9090
  bidharvest serve --schedule "@every 6h" \
      --store postgres://harvest@localhost/bids --metrics-addr :9090`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("log_json"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.bidharvest.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log_json", flags.Lookup("log-json"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".bidharvest")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BIDHARVEST")
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logError("reading config: %v", err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// ExitCode maps an error from Execute to a process exit status.
func ExitCode(err error) int {
	switch harvest.Classify(err) {
	case harvest.ClassNone:
		return exitOK
	case harvest.ClassAuthentication:
		return exitAuthFailed
	}
	return exitFatal
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
