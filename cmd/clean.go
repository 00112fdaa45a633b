package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/phenodash/internal/analysis"
	"github.com/KaramelBytes/phenodash/internal/export"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
	"github.com/KaramelBytes/phenodash/internal/utils"
)

var (
	clOutputPath  string
	clFormat      string
	clSummaryPath string
	clSampleRows  int
	clCorr        bool
	clQuiet       bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean [source]",
	Short: "Run the cleaning pipeline and export the table or print a summary",
	Long: `Run the cleaning pipeline over a phenotype table.

With --output the cleaned table is written as CSV, JSON, XLSX or SQLite (by --format
or the file extension). With --summary a Markdown run report is written. With neither,
the report is printed.`,
	Args: cobra.MaximumNArgs(1),
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
		var format export.Format
		if clOutputPath != "" {
			if clFormat != "" {
				format, err = export.ParseFormat(clFormat)
			} else {
				format, err = export.FormatFromPath(clOutputPath)
			}
			if err != nil {
				return err
			}
		}

		res, err := pipeline.Run(cmd.Context(), newLoader(c), src, popt)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !clQuiet {
			for _, m := range res.Missing {
				fmt.Fprintf(out, "%s Column %q not found; dependent stages skipped\n", warnMark, m)
			}
		}

		written := false
		if clOutputPath != "" {
			if err := export.WriteFile(cmd.Context(), clOutputPath, format, res.Table); err != nil {
				return err
			}
			if !clQuiet {
				fmt.Fprintf(out, "%s Wrote %d rows (%s) to %s\n", okMark, res.Table.Len(), format, clOutputPath)
			}
			written = true
		}

		opt := analysis.DefaultOptions()
		opt.SampleRows = clSampleRows
		opt.Correlations = clCorr
		md := analysis.Summarize(res, opt).Markdown()
		if clSummaryPath != "" {
			if err := utils.SafeWriteFile(clSummaryPath, []byte(md)); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			if !clQuiet {
				fmt.Fprintf(out, "%s Wrote summary to %s\n", okMark, clSummaryPath)
			}
			written = true
		}
		if !written {
			fmt.Fprintln(out, md)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringVarP(&clOutputPath, "output", "o", "", "write the cleaned table to this path")
	cleanCmd.Flags().StringVarP(&clFormat, "format", "f", "", "table format: csv | json | xlsx | sqlite (default from --output extension)")
	cleanCmd.Flags().StringVar(&clSummaryPath, "summary", "", "write the Markdown run report to this path")
	cleanCmd.Flags().IntVar(&clSampleRows, "sample-rows", 5, "number of sample rows in the report (0 disables)")
	cleanCmd.Flags().BoolVar(&clCorr, "correlations", true, "include Pearson correlations in the report")
	cleanCmd.Flags().BoolVarP(&clQuiet, "quiet", "q", false, "suppress non-essential output")
}
