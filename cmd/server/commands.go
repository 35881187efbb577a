package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dfryer1193/cropfeed/feed/application"
	"github.com/dfryer1193/cropfeed/internal/config"
	"github.com/dfryer1193/cropfeed/internal/middleware"
	"github.com/dfryer1193/cropfeed/internal/rest"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "cropfeed",
		Short:         "Crop listing marketplace feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			cfg.Logging.SetupLogging()
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newFeedCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	comps, err := buildComponents(ctx, cfg, buildOptions{notifications: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to release resources")
		}
	}()

	router := gin.New()
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.CustomRecovery(middleware.HandlePanics()))
	rest.NewApi(router, comps.restDependencies(cfg))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msgf("Starting server on port :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}

type feedOptions struct {
	clear       bool
	asJSON      bool
	pruneImages bool
	rootOpt     *rootOptions
}

func newFeedCmd(opts *rootOptions) *cobra.Command {
	f := &feedOptions{rootOpt: opts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the rendered feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&f.clear, "clear", false, "Delete every stored post")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the feed view as JSON")
	cmd.Flags().BoolVar(&f.pruneImages, "prune-images", false, "Delete stored photos no post refers to")
	return cmd
}

func (f *feedOptions) run(ctx context.Context, out io.Writer) error {
	comps, err := buildComponents(ctx, f.rootOpt.cfg, buildOptions{})
	if err != nil {
		return err
	}
	defer comps.Close()

	if f.clear {
		if err := comps.store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Feed cleared")
		return nil
	}

	if f.pruneImages {
		removed, err := application.PruneImages(ctx, comps.store, comps.images)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d unused images\n", len(removed))
		return nil
	}

	view := comps.feed.LoadAndRender(ctx)
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	printFeed(out, view)
	return nil
}

func printFeed(out io.Writer, view application.FeedView) {
	if view.Empty {
		fmt.Fprintf(out, "%s %s\n%s\n", view.EmptyState.Icon, view.EmptyState.Heading, view.EmptyState.Text)
		return
	}

	for _, card := range view.Cards {
		fmt.Fprintf(out, "[%d] %s | %s | %s | %s | Available: %s\n",
			card.ID, card.Title, card.RelativeTime, card.PriceText, card.Location, card.Available)
	}
}
