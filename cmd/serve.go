package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/phenodash/internal/logging"
	"github.com/KaramelBytes/phenodash/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	srvListen  string
	srvRefresh time.Duration
	srvGallery string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the phenotype dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		popt, err := pipelineOptions(c)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("listen") {
			c.ListenAddr = srvListen
		}
		refresh := c.RefreshInterval()
		if f.Changed("refresh") {
			refresh = srvRefresh
		}
		if f.Changed("gallery-dir") {
			c.GalleryDir = srvGallery
		}

		srv, err := server.New(server.Config{
			Source:          c.Source,
			Options:         popt,
			RefreshInterval: refresh,
			GalleryDir:      c.GalleryDir,
			Genotypes:       c.Genotypes,
			DefaultGenotype: c.DefaultGenotype,
			LowessFrac:      c.LowessFrac,
		}, newLoader(c))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// A failed first load leaves the page up; POST /api/refresh or the refresh loop retries.
		if _, err := srv.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s Warning: initial load failed: %v\n", warnMark, err)
		}

		httpSrv := &http.Server{
			Addr:              c.ListenAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logging.Infow("dashboard listening", "addr", c.ListenAddr, "source", c.Source, "refresh", refresh.String())
			fmt.Fprintf(cmd.OutOrStdout(), "%s Serving dashboard on http://%s\n", okMark, c.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return srv.RefreshLoop(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			logging.Infow("dashboard shutting down")
			return httpSrv.Shutdown(sctx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvListen, "listen", "", "listen address (overrides config listen_addr)")
	serveCmd.Flags().DurationVar(&srvRefresh, "refresh", 0, "reload the source this often, e.g. 15m; 0 disables (overrides config)")
	serveCmd.Flags().StringVar(&srvGallery, "gallery-dir", "", "directory holding the segmentation GIFs (overrides config)")
}
