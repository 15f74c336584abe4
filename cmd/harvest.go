package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmatlas/lattes-harvester/internal/discovery"
	"github.com/fmatlas/lattes-harvester/internal/enrich"
	"github.com/fmatlas/lattes-harvester/internal/lattes"
	"github.com/fmatlas/lattes-harvester/internal/model"
)

var (
	harvestDiscoveryOnly bool
	harvestMaxPages      int
	harvestWorkers       int
)

var harvestCmd = &cobra.Command{
	Use:   "harvest <search term> [search term...]",
	Short: "Discover and enrich researchers for the given search terms",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("harvest"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		session, err := lattes.NewSession(cfg.SessionConfig())
		if err != nil {
			return err
		}

		discCfg := cfg.DiscoveryConfig()
		if harvestMaxPages > 0 {
			discCfg.MaxPages = harvestMaxPages
		}
		disc := discovery.New(session, discCfg)

		// Duplicate external ids across terms are left in place: the
		// store merge unions their search terms.
		var stubs []model.EntityStub
		for _, term := range args {
			found, err := disc.Discover(ctx, term)
			if err != nil {
				zap.L().Error("harvest: discovery failed",
					zap.String("term", term),
					zap.Error(err),
				)
				continue
			}
			zap.L().Info("harvest: term discovered",
				zap.String("term", term),
				zap.Int("stubs", len(found)),
			)
			stubs = append(stubs, found...)
		}

		enrichCfg := cfg.EnrichConfig()
		if harvestDiscoveryOnly {
			enrichCfg.GetDetails = false
		}
		if harvestWorkers > 0 {
			enrichCfg.Workers = harvestWorkers
		}

		summary, err := enrich.New(session, lattes.NewChain(), st, enrichCfg).Enrich(ctx, stubs)
		if err != nil {
			zap.L().Error("harvest: run finished with persistence errors", zap.Error(err))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			return encErr
		}
		return err
	},
}

func init() {
	harvestCmd.Flags().BoolVar(&harvestDiscoveryOnly, "discovery-only", false, "persist bare stubs without fetching profile details")
	harvestCmd.Flags().IntVar(&harvestMaxPages, "max-pages", 0, "cap result pages per term (default from config)")
	harvestCmd.Flags().IntVar(&harvestWorkers, "workers", 0, "concurrent enrichment workers (default from config)")
	rootCmd.AddCommand(harvestCmd)
}
