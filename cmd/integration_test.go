package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags clears values and Changed state that persist across Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execCmd(args ...string) (string, error) {
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

// isolate points HOME at a temp dir so no user config leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// writeLevel4 writes a small level-4 export: two lettuce genotypes and one
// hybrid over three days, each in treatment 1, treatment 3 and border.
func writeLevel4(t *testing.T, path string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("genotype,treatment,date,FV/FM,bounding_area_m2,oriented_bounding_box,median,max_z,min_z\n")
	for i, g := range []string{"Aido", "Iceberg", "GRxI_1"} {
		for day := 1; day <= 3; day++ {
			for _, tr := range []string{"treatment 1", "treatment 3", "border"} {
				v := float64(day) / 10
				fmt.Fprintf(&b, "%s,%s,2020-02-%02d,0.8,%g,%g,30,%g,0.5\n", g, tr, day, v+float64(i)/100, 2*v, 1+v)
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestCLI_CleanExportsTable(t *testing.T) {
	home := isolate(t)
	src := filepath.Join(home, "level4.csv")
	writeLevel4(t, src)
	outPath := filepath.Join(home, "out", "cleaned.csv")

	out := runCmd(t, "clean", src, "-o", outPath, "--quiet")
	if out != "" {
		t.Fatalf("expected no output with --quiet, got %q", out)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	// 2 genotypes x 3 days x 2 kept treatments.
	if len(recs) != 13 {
		t.Fatalf("expected header + 12 rows, got %d records", len(recs))
	}
	header := strings.Join(recs[0], ",")
	if !strings.HasPrefix(header, "genotype,treatment,date,") || !strings.HasSuffix(header, ",height") {
		t.Fatalf("unexpected header %q", header)
	}
	for _, r := range recs[1:] {
		if strings.Contains(r[0], "GRxI") {
			t.Fatalf("hybrid row survived: %v", r)
		}
		if r[1] != "Well Watered" && r[1] != "Water Limited" {
			t.Fatalf("unexpected treatment label %q", r[1])
		}
	}
	if recs[1][0] != "Aido" || recs[1][1] != "Water Limited" || recs[1][2] != "2020-02-01" {
		t.Fatalf("rows not sorted by key: %v", recs[1])
	}
}

func TestCLI_CleanPrintsReport(t *testing.T) {
	home := isolate(t)
	src := filepath.Join(home, "level4.csv")
	writeLevel4(t, src)

	out := runCmd(t, "--source", src, "clean", "--sample-rows", "0")
	for _, section := range []string{"[DATASET SUMMARY]", "[PIPELINE]", "[GROUP-BY TREATMENT]", "Rows: 12 (raw 27)"} {
		if !strings.Contains(out, section) {
			t.Fatalf("report missing %q:\n%s", section, out)
		}
	}
	if strings.Contains(out, "[HEAD AND SAMPLE ROWS]") {
		t.Fatalf("expected no sample rows")
	}
}

func TestCLI_CleanMissingColumnPolicy(t *testing.T) {
	home := isolate(t)
	src := filepath.Join(home, "partial.csv")
	body := "genotype,treatment,date,FV/FM\nAido,treatment 1,2020-02-01,0.8\nAido,treatment 1,2020-02-02,0.81\n"
	if err := os.WriteFile(src, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := runCmd(t, "clean", src, "--sample-rows", "0")
	if !strings.Contains(out, `Column "bounding_area_m2" not found`) {
		t.Fatalf("expected a skip warning, got:\n%s", out)
	}
	if _, err := execCmd("--missing-columns", "fail", "clean", src); err == nil {
		t.Fatalf("expected fail policy to abort")
	}
	if _, err := execCmd("--missing-columns", "maybe", "clean", src); err == nil {
		t.Fatalf("expected invalid policy error")
	}
}

func TestCLI_FiguresWritesPlotlyJSON(t *testing.T) {
	home := isolate(t)
	src := filepath.Join(home, "level4.csv")
	writeLevel4(t, src)
	outDir := filepath.Join(home, "figs")

	runCmd(t, "figures", src, "--out-dir", outDir, "--genotype", "Iceberg")
	for _, name := range []string{"bounding_area", "canopy_temperature", "fvfm", "height"} {
		b, err := os.ReadFile(filepath.Join(outDir, name+".Iceberg.json"))
		if err != nil {
			t.Fatalf("missing figure %s: %v", name, err)
		}
		var fig struct {
			Data []struct {
				Name string `json:"name"`
				Mode string `json:"mode"`
			} `json:"data"`
		}
		if err := json.Unmarshal(b, &fig); err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		// markers and LOWESS line per treatment facet.
		if len(fig.Data) != 4 {
			t.Fatalf("%s: expected 4 traces, got %d", name, len(fig.Data))
		}
		for _, tr := range fig.Data {
			if tr.Name != "Iceberg" {
				t.Fatalf("%s: unexpected trace %q", name, tr.Name)
			}
		}
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home := isolate(t)

	runCmd(t, "config", "set", "lowess_frac", "0.5")
	runCmd(t, "config", "set", "s3_secret_access_key", "supersecretvalue")
	runCmd(t, "config", "set", "genotypes", "Aido, Xanadu")
	if _, err := os.Stat(filepath.Join(home, ".phenodash", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	if _, err := execCmd("config", "set", "lowess_frac", "2"); err == nil {
		t.Fatalf("expected lowess_frac validation error")
	}
	if _, err := execCmd("config", "set", "nope", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}

	out := runCmd(t, "config", "show")
	for _, want := range []string{"lowess_frac: 0.500", "genotypes: Aido,Xanadu", "s3_secret_access_key: sup****lue"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "supersecretvalue") {
		t.Fatalf("secret printed in clear")
	}
}

func TestCLI_GalleryReportsMissing(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, "GIFs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Aido_38_soil_segmentation_1.gif"), []byte("GIF89a"), 0o644); err != nil {
		t.Fatalf("write gif: %v", err)
	}
	out := runCmd(t, "gallery", "--dir", dir)
	if !strings.Contains(out, "Early Season") || !strings.Contains(out, "8 gallery file(s) missing") {
		t.Fatalf("unexpected gallery output:\n%s", out)
	}
}
