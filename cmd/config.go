package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/phenodash/internal/config"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Phenodash configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "source: %s\n", cfg.Source)
		if cfg.Sheet != "" {
			fmt.Fprintf(out, "sheet: %s\n", cfg.Sheet)
		}
		fmt.Fprintf(out, "missing_column_policy: %s\n", cfg.MissingColumnPolicy)
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "listen_addr: %s\n", cfg.ListenAddr)
		fmt.Fprintf(out, "gallery_dir: %s\n", cfg.GalleryDir)
		fmt.Fprintf(out, "refresh_interval_sec: %d\n", cfg.RefreshIntervalSec)
		fmt.Fprintf(out, "lowess_frac: %.3f\n", cfg.LowessFrac)
		fmt.Fprintf(out, "default_genotype: %s\n", cfg.DefaultGenotype)
		fmt.Fprintf(out, "genotypes: %s\n", strings.Join(cfg.Genotypes, ","))
		fmt.Fprintf(out, "s3_region: %s\n", cfg.S3Region)
		if cfg.S3Endpoint != "" {
			fmt.Fprintf(out, "s3_endpoint: %s\n", cfg.S3Endpoint)
		}
		fmt.Fprintf(out, "s3_path_style: %t\n", cfg.S3PathStyle)
		fmt.Fprintf(out, "s3_anonymous: %t\n", cfg.S3Anonymous)
		if cfg.S3AccessKeyID != "" {
			fmt.Fprintf(out, "s3_access_key_id: %s\n", cfg.S3AccessKeyID)
		}
		if cfg.S3SecretAccessKey != "" {
			fmt.Fprintf(out, "s3_secret_access_key: %s\n", mask(cfg.S3SecretAccessKey))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "source":
			cfg.Source = val
		case "sheet":
			cfg.Sheet = val
		case "missing_column_policy":
			p, err := pipeline.ParsePolicy(val)
			if err != nil {
				return err
			}
			cfg.MissingColumnPolicy = string(p)
		case "http_timeout_sec":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for http_timeout_sec: %v", val)
			}
			cfg.HTTPTimeoutSec = i
		case "listen_addr":
			cfg.ListenAddr = val
		case "gallery_dir":
			cfg.GalleryDir = val
		case "refresh_interval_sec":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for refresh_interval_sec: %v", val)
			}
			cfg.RefreshIntervalSec = i
		case "lowess_frac":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f <= 0 || f > 1 {
				return fmt.Errorf("invalid lowess_frac: %v (use a value in (0, 1])", val)
			}
			cfg.LowessFrac = f
		case "default_genotype":
			cfg.DefaultGenotype = val
		case "genotypes":
			var gs []string
			for _, g := range strings.Split(val, ",") {
				if g = strings.TrimSpace(g); g != "" {
					gs = append(gs, g)
				}
			}
			if len(gs) == 0 {
				return fmt.Errorf("genotypes must list at least one name")
			}
			cfg.Genotypes = gs
		case "s3_region":
			cfg.S3Region = val
		case "s3_endpoint":
			cfg.S3Endpoint = val
		case "s3_path_style", "s3_anonymous":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid bool for %s: %w", key, err)
			}
			if key == "s3_path_style" {
				cfg.S3PathStyle = b
			} else {
				cfg.S3Anonymous = b
			}
		case "s3_access_key_id":
			cfg.S3AccessKeyID = val
		case "s3_secret_access_key":
			cfg.S3SecretAccessKey = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
