package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fmatlas/lattes-harvester/internal/discovery"
	"github.com/fmatlas/lattes-harvester/internal/lattes"
	"github.com/fmatlas/lattes-harvester/internal/model"
)

var discoverMaxPages int

var discoverCmd = &cobra.Command{
	Use:   "discover <search term> [search term...]",
	Short: "List the researchers a search term matches, without persisting",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		session, err := lattes.NewSession(cfg.SessionConfig())
		if err != nil {
			return err
		}

		discCfg := cfg.DiscoveryConfig()
		if discoverMaxPages > 0 {
			discCfg.MaxPages = discoverMaxPages
		}
		disc := discovery.New(session, discCfg)

		var stubs []model.EntityStub
		for _, term := range args {
			found, err := disc.Discover(ctx, term)
			if err != nil {
				return err
			}
			stubs = append(stubs, found...)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stubs)
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverMaxPages, "max-pages", 0, "cap result pages per term (default from config)")
	rootCmd.AddCommand(discoverCmd)
}
