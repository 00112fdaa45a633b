package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/phenodash/internal/chart"
	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
	"github.com/KaramelBytes/phenodash/internal/utils"
)

var (
	figOutDir   string
	figGenotype string
	figNames    []string
	figFrac     float64
	figWidth    int
	figHeight   int
)

var figuresCmd = &cobra.Command{
	Use:   "figures [source]",
	Short: "Render the growth-curve figures as Plotly JSON files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		src, err := sourceArg(c, args)
		if err != nil {
			return err
		}
		popt, err := pipelineOptions(c)
		if err != nil {
			return err
		}
		specs := chart.Catalog()
		if len(figNames) > 0 {
			specs = specs[:0]
			for _, n := range figNames {
				s, ok := chart.Lookup(n)
				if !ok {
					return fmt.Errorf("unknown figure %q", n)
				}
				specs = append(specs, s)
			}
		}
		frac := figFrac
		if !cmd.Flags().Changed("frac") {
			frac = c.LowessFrac
		}

		res, err := pipeline.Run(cmd.Context(), newLoader(c), src, popt)
		if err != nil {
			return err
		}
		if err := utils.EnsureDir(figOutDir); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, spec := range specs {
			fig, err := chart.Build(res.Table, spec, chart.Options{
				Genotype: figGenotype,
				Frac:     frac,
				Width:    figWidth,
				Height:   figHeight,
			})
			var mce *dataset.MissingColumnError
			if errors.As(err, &mce) {
				fmt.Fprintf(out, "%s Skipping %s: %v\n", warnMark, spec.Name, err)
				continue
			}
			if err != nil {
				return err
			}
			b, err := utils.PrettyJSON(fig)
			if err != nil {
				return err
			}
			name := spec.Name
			if figGenotype != "" {
				name += "." + figGenotype
			}
			path := filepath.Join(figOutDir, name+".json")
			if err := utils.SafeWriteFile(path, b); err != nil {
				return fmt.Errorf("write figure: %w", err)
			}
			fmt.Fprintf(out, "%s Wrote %s (%d traces, %d points)\n", okMark, path, len(fig.Data), fig.Points())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(figuresCmd)
	figuresCmd.Flags().StringVar(&figOutDir, "out-dir", "figures", "directory for figure JSON files")
	figuresCmd.Flags().StringVarP(&figGenotype, "genotype", "g", "", "restrict figures to one genotype")
	figuresCmd.Flags().StringSliceVar(&figNames, "name", nil, "figures to render (default all): bounding_area, canopy_temperature, fvfm, height")
	figuresCmd.Flags().Float64Var(&figFrac, "frac", chart.DefaultFrac, "LOWESS span as a fraction of points (overrides config)")
	figuresCmd.Flags().IntVar(&figWidth, "width", chart.DefaultWidth, "figure width in pixels")
	figuresCmd.Flags().IntVar(&figHeight, "height", chart.DefaultHeight, "figure height in pixels")
}
