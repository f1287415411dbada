package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
	"github.com/Another0Noob/boxd-recommend/web"
	"github.com/Another0Noob/boxd-recommend/web/backend"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the collect and recommend job API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	log := logging.Component("serve")

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	fetcher, closeCache, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	// Without a catalog the server still collects; recommend jobs are refused.
	var eng *recommend.Engine
	if _, statErr := os.Stat(cfg.Recommend.Catalog); statErr == nil {
		var size int
		eng, size, err = loadEngine(cfg, cfg.Recommend.Catalog, cfg.Recommend.Fuzzy)
		if err != nil {
			return err
		}
		log.Info().Str("catalog", cfg.Recommend.Catalog).Int("titles", size).Msg("catalog loaded")
	} else {
		log.Warn().Str("catalog", cfg.Recommend.Catalog).Msg("catalog not found, recommend jobs disabled")
	}

	api := backend.NewJobAPI(backend.Deps{
		Fetcher:           fetcher,
		Collector:         collectorConfig(cfg),
		DatasetPath:       cfg.Collector.Dataset,
		Engine:            eng,
		Count:             cfg.Recommend.Count,
		DiversityFraction: cfg.Recommend.DiversityFraction,
	}, backend.Options{
		SessionTTL:      cfg.Server.SessionTTL,
		CleanupInterval: cfg.Server.CleanupInterval,
	})
	api.Start(ctx)

	fmt.Printf("--- Serving on %s ---\n", addr)
	return web.RunServer(ctx, addr, web.NewRouter(api), cfg.Server.ShutdownTimeout)
}
