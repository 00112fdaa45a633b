package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/phenodash/internal/config"
	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/logging"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Source flags (override config if set)
	flagSource         string
	flagSheet          string
	flagHTTPTimeoutSec int
	flagMissingColumns string

	// Loaded configuration
	cfg    *cfgpkg.Global
	cfgErr error
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("⚠")
	errMark  = color.New(color.FgRed).Sprint("✗")
)

var rootCmd = &cobra.Command{
	Use:   "phenodash",
	Short: "Phenodash: clean PhytoOracle phenotype exports and serve growth-curve dashboards",
	Long: `Phenodash loads a PhytoOracle level-4 phenotype table (CSV or XLSX, local, HTTP or S3),
runs the cleaning pipeline (per-plot medians, treatment labels, MAD-median outlier removal,
hybrid exclusion, height derivation) and publishes the result as LOWESS growth-curve figures,
a dashboard page and tabular exports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errMark, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.phenodash/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", "", "phenotype table locator: path, file://, http(s):// or s3:// (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagSheet, "sheet", "", "worksheet to read from .xlsx sources (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "source fetch timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagMissingColumns, "missing-columns", "", "missing column policy: skip | fail (overrides config)")
}

func loadConfig() {
	if err := logging.Init(debug); err != nil {
		fmt.Fprintf(os.Stderr, "%s Warning: failed to init logging: %v\n", warnMark, err)
	}
	if err := cfgpkg.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "%s Warning: %v\n", warnMark, err)
	}
	cfg, cfgErr = nil, nil
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config report it via currentConfig.
		cfgErr = err
		fmt.Fprintf(os.Stderr, "%s Warning: failed to load config: %v\n", warnMark, err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("source") && flagSource != "" {
		cfg.Source = flagSource
	}
	if f.Changed("sheet") {
		cfg.Sheet = flagSheet
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("missing-columns") && flagMissingColumns != "" {
		cfg.MissingColumnPolicy = flagMissingColumns
	}
}

func currentConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	if cfgErr != nil {
		return nil, cfgErr
	}
	return nil, errors.New("configuration not loaded")
}

// newLoader builds a dataset loader for every supported locator scheme.
func newLoader(c *cfgpkg.Global) *dataset.Loader {
	s3f := dataset.NewS3Fetcher(dataset.S3Config{
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		PathStyle:       c.S3PathStyle,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		Anonymous:       c.S3Anonymous,
	})
	l := dataset.NewLoader(c.HTTPTimeout(), s3f)
	l.Sheet = c.Sheet
	return l
}

func pipelineOptions(c *cfgpkg.Global) (pipeline.Options, error) {
	policy, err := pipeline.ParsePolicy(c.MissingColumnPolicy)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{MissingColumns: policy}, nil
}

// sourceArg picks the positional source if given, else the configured one.
func sourceArg(c *cfgpkg.Global, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if c.Source == "" {
		return "", errors.New("no source given (pass one or set source in config)")
	}
	return c.Source, nil
}
