package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmatlas/lattes-harvester/internal/export"
	"github.com/fmatlas/lattes-harvester/internal/store"
)

var (
	exportFormat      string
	exportOutput      string
	exportTerm        string
	exportInstitution string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export harvested researchers to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		output := exportOutput
		if output == "" {
			output = "researchers." + string(format)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		researchers, err := st.ListResearchers(ctx, store.Filter{
			SearchTerm:  exportTerm,
			Institution: exportInstitution,
		})
		if err != nil {
			return err
		}
		for i := range researchers {
			researchers[i].Projects, err = st.ListProjects(ctx, researchers[i].ExternalID)
			if err != nil {
				return err
			}
		}

		if err := export.WriteFile(output, format, researchers); err != nil {
			return err
		}
		zap.L().Info("export: written",
			zap.String("path", output),
			zap.Int("researchers", len(researchers)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, csv, or xlsx")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output path (default researchers.<format>)")
	exportCmd.Flags().StringVar(&exportTerm, "term", "", "only researchers discovered under this search term")
	exportCmd.Flags().StringVar(&exportInstitution, "institution", "", "only researchers at institutions matching this substring")
	rootCmd.AddCommand(exportCmd)
}
