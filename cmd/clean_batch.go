package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/phenodash/internal/analysis"
	"github.com/KaramelBytes/phenodash/internal/export"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
	"github.com/KaramelBytes/phenodash/internal/utils"
)

var (
	cbOutDir     string
	cbFormat     string
	cbSampleRows int
	cbCorr       bool
	cbJobs       int
	cbQuiet      bool
)

type batchJob struct {
	source  string
	summary string
	table   string
}

var cleanBatchCmd = &cobra.Command{
	Use:   "clean-batch <sources...>",
	Short: "Clean multiple phenotype tables, writing one report (and optionally one table) per source",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		popt, err := pipelineOptions(c)
		if err != nil {
			return err
		}
		var format export.Format
		if cbFormat != "" {
			if format, err = export.ParseFormat(cbFormat); err != nil {
				return err
			}
		}
		sources := expandSources(args)
		if len(sources) == 0 {
			return fmt.Errorf("no input sources matched")
		}
		if err := utils.EnsureDir(cbOutDir); err != nil {
			return err
		}
		jobs := planBatch(sources, cbOutDir, format)

		opt := analysis.DefaultOptions()
		opt.SampleRows = cbSampleRows
		opt.Correlations = cbCorr
		loader := newLoader(c)
		out := cmd.OutOrStdout()
		var outMu sync.Mutex
		printf := func(msg string, a ...any) {
			if cbQuiet {
				return
			}
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(out, msg, a...)
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		if cbJobs > 0 {
			g.SetLimit(cbJobs)
		}
		total := len(jobs)
		for i, job := range jobs {
			g.Go(func() error {
				printf("[%d/%d] Processing %s...\n", i+1, total, job.source)
				res, err := pipeline.Run(ctx, loader, job.source, popt)
				if err != nil {
					return fmt.Errorf("%s: %w", job.source, err)
				}
				md := analysis.Summarize(res, opt).Markdown()
				if err := utils.SafeWriteFile(job.summary, []byte(md)); err != nil {
					return fmt.Errorf("write summary: %w", err)
				}
				printf("%s Wrote %s\n", okMark, filepath.Base(job.summary))
				if job.table != "" {
					if err := export.WriteFile(ctx, job.table, format, res.Table); err != nil {
						return fmt.Errorf("%s: %w", job.source, err)
					}
					printf("%s Wrote %d rows to %s\n", okMark, res.Table.Len(), filepath.Base(job.table))
				}
				return nil
			})
		}
		return g.Wait()
	},
}

// expandSources globs local patterns and keeps remote locators as given.
// Duplicates are dropped and the result is sorted.
func expandSources(args []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		var matches []string
		if strings.Contains(arg, "://") {
			matches = []string{arg}
		} else {
			matches, _ = filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if _, err := os.Stat(arg); err == nil {
					matches = []string{arg}
				}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// planBatch assigns output files before any job runs so colliding base
// names get stable __N suffixes and existing files are never overwritten.
func planBatch(sources []string, outDir string, format export.Format) []batchJob {
	taken := map[string]struct{}{}
	free := func(p string) bool {
		if _, ok := taken[p]; ok {
			return false
		}
		_, err := os.Stat(p)
		return os.IsNotExist(err)
	}
	jobs := make([]batchJob, 0, len(sources))
	for _, src := range sources {
		base := baseName(src)
		paths := func(stem string) batchJob {
			job := batchJob{source: src, summary: filepath.Join(outDir, stem+".summary.md")}
			if format != "" {
				job.table = filepath.Join(outDir, stem+".cleaned."+string(format))
			}
			return job
		}
		job := paths(base)
		// Both outputs of a job share the stem, so it is usable only when neither exists.
		for idx := 2; !free(job.summary) || (job.table != "" && !free(job.table)); idx++ {
			job = paths(fmt.Sprintf("%s__%d", base, idx))
		}
		taken[job.summary] = struct{}{}
		if job.table != "" {
			taken[job.table] = struct{}{}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func baseName(locator string) string {
	var b string
	if strings.Contains(locator, "://") {
		b = path.Base(locator)
	} else {
		b = filepath.Base(locator)
	}
	b = strings.TrimSuffix(b, filepath.Ext(b))
	if b == "" || b == "." || b == "/" {
		return "source"
	}
	return b
}

func init() {
	rootCmd.AddCommand(cleanBatchCmd)
	cleanBatchCmd.Flags().StringVar(&cbOutDir, "out-dir", ".", "directory for reports and tables")
	cleanBatchCmd.Flags().StringVarP(&cbFormat, "format", "f", "", "also write each cleaned table: csv | json | xlsx | sqlite")
	cleanBatchCmd.Flags().IntVar(&cbSampleRows, "sample-rows", 5, "number of sample rows per report (0 disables)")
	cleanBatchCmd.Flags().BoolVar(&cbCorr, "correlations", true, "include Pearson correlations in reports")
	cleanBatchCmd.Flags().IntVarP(&cbJobs, "jobs", "j", 4, "sources processed concurrently (0 = unlimited)")
	cleanBatchCmd.Flags().BoolVar(&cbQuiet, "quiet", false, "suppress progress and non-essential output")
}
