package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/phenodash/internal/gallery"
)

var galleryDir string

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Check the segmentation GIF gallery for missing files",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := galleryDir
		if !cmd.Flags().Changed("dir") {
			c, err := currentConfig()
			if err != nil {
				return err
			}
			dir = c.GalleryDir
		}
		out := cmd.OutOrStdout()
		for _, col := range gallery.Catalog(dir) {
			fmt.Fprintln(out, col.Stage.Name)
			for _, it := range col.Items {
				mark := okMark
				if !it.Available {
					mark = warnMark
				}
				fmt.Fprintf(out, "  %s %s\n", mark, it.File)
			}
		}
		if missing := gallery.Missing(dir); len(missing) > 0 {
			fmt.Fprintf(out, "%s %d gallery file(s) missing in %s\n", warnMark, len(missing), dir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.Flags().StringVar(&galleryDir, "dir", "", "gallery directory (overrides config gallery_dir)")
}
