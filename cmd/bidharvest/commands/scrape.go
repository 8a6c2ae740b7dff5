package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/bidharvest/internal/output"
	"github.com/jmylchreest/bidharvest/internal/store"
	"github.com/jmylchreest/bidharvest/pkg/harvest"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one extraction and print the bids",
	Long: `Log into the portal, walk the bid listing and print every open bid.

Examples:
  # JSON on stdout
  bidharvest scrape

  # JSON lines into a file, also upserted into SQLite
  bidharvest scrape --format jsonl -o bids.jsonl --store sqlite://bids.db

  # Visible browser with screenshots written to ./debug
  bidharvest scrape --headless=false --screenshots`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addHarvestFlags(scrapeCmd)

	flags := scrapeCmd.Flags()
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml, table")
}

// addHarvestFlags registers the flags shared by scrape and serve.
func addHarvestFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("portal", "", "portal name stored with every bid")
	flags.String("login-url", "", "login page URL")
	flags.String("listing-url", "", "page that links to the bid listing")
	flags.Bool("headless", true, "run the browser without a window")
	flags.Bool("screenshots", false, "write screenshots at failures and checkpoints")
	flags.String("debug-dir", "", "directory for screenshots")
	flags.Bool("enrich", false, "fetch each bid's detail page for attachments")
	flags.String("store", "", "upsert bids into postgres://... or sqlite://path")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		_ = viper.BindPFlag("portal", flags.Lookup("portal"))
		_ = viper.BindPFlag("login_url", flags.Lookup("login-url"))
		_ = viper.BindPFlag("listing_root_url", flags.Lookup("listing-url"))
		_ = viper.BindPFlag("headless", flags.Lookup("headless"))
		_ = viper.BindPFlag("screenshots", flags.Lookup("screenshots"))
		_ = viper.BindPFlag("debug_dir", flags.Lookup("debug-dir"))
		_ = viper.BindPFlag("enrich_details", flags.Lookup("enrich"))
		_ = viper.BindPFlag("store", flags.Lookup("store"))
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(mustGetString(cmd, "format"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := harvest.New(cfg)
	if err != nil {
		return err
	}
	res, err := h.Run(ctx, harvest.Options{
		Credentials: loadCredentials(viper.GetViper()),
		Debug:       viper.GetBool("screenshots"),
	})
	if err != nil {
		return err
	}
	logSummary(res)

	out, closeOut, err := openOutput(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	defer closeOut()

	w, err := output.NewWriter(out, format)
	if err != nil {
		return err
	}
	if err := w.WriteAll(res.Bids); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if dsn := viper.GetString("store"); dsn != "" {
		if _, err := persist(ctx, dsn, res); err != nil {
			return err
		}
	}
	return nil
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path) //#nosec G304 -- CLI tool writes to user-specified output file
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// persist upserts the run's bids into the store named by dsn.
func persist(ctx context.Context, dsn string, res *harvest.Result) (store.Result, error) {
	s, err := store.Open(ctx, dsn)
	if err != nil {
		return store.Result{}, fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	r, err := s.Upsert(ctx, res.Bids)
	if err != nil {
		return r, fmt.Errorf("store bids: %w", err)
	}
	logInfo("Stored %s new and %s updated bids", humanize.Comma(int64(r.Inserted)), humanize.Comma(int64(r.Updated)))
	return r, nil
}

func logSummary(res *harvest.Result) {
	s := res.Stats
	logInfo("Found %s bids on %d pages in %s (%s expired, %s not bids, %s blank, %d row errors)",
		humanize.Comma(int64(len(res.Bids))),
		s.Pages,
		res.Duration.Round(time.Second),
		humanize.Comma(int64(s.Expired)),
		humanize.Comma(int64(s.Irrelevant)),
		humanize.Comma(int64(s.RowsSkipped)),
		s.RowErrors,
	)
	if s.Truncated {
		logInfo("Stopped at the page limit; more pages were offered")
	}
	if s.PageErrors > 0 {
		logInfo("Listing ended early: %s", s.StopReason)
	}
}
