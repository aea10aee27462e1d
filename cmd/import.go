package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/db"
	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/records"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the CSV/XLSX datasets into Postgres",
	Long:  "Reads invoices, purchase orders and receipts from data.dir and replaces the tables at data.database_url, for use with data.source=postgres.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Data.Dir
		}
		if cfg.Data.DatabaseURL == "" {
			return eris.New("import: data.database_url is required")
		}

		tables, err := records.Load(ctx, dir, records.LoadOptions{Charset: cfg.Data.Charset})
		if err != nil {
			return eris.Wrap(err, "import: load")
		}

		pool, err := db.Connect(ctx, cfg.Data.DatabaseURL, nil)
		if err != nil {
			return eris.Wrap(err, "import: connect")
		}
		defer pool.Close()

		pg := records.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		if err := pg.Import(ctx, tables); err != nil {
			return err
		}

		counts := tables.Counts()
		zap.L().Info("import complete", zap.String("dir", dir), zap.Any("counts", counts))
		fmt.Fprintf(os.Stdout, "Imported %d invoice lines, %d PO lines, %d receipts.\n",
			counts[model.DatasetInvoices], counts[model.DatasetPurchaseOrders], counts[model.DatasetReceipts])
		return nil
	},
}

func init() {
	importCmd.Flags().String("dir", "", "dataset directory (default from config)")
	rootCmd.AddCommand(importCmd)
}
