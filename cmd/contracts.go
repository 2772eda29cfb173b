package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/enrich"
	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/internal/report"
)

var (
	contractsMonth    string
	contractsStart    string
	contractsEnd      string
	contractsDept     string
	contractsXLSX     string
	contractsSnapshot bool
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Fetch and enrich signed contracts for a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("contracts"); err != nil {
			return err
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}
		enricher, err := newEnricher(sf)
		if err != nil {
			return err
		}

		records, err := enricher.EnrichContracts(ctx, enrich.Filter{
			Month:     contractsMonth,
			Start:     contractsStart,
			End:       contractsEnd,
			OwnerDept: contractsDept,
		})
		if err != nil {
			return err
		}
		zap.L().Info("contracts enriched", zap.Int("count", len(records)))

		if contractsSnapshot {
			if err := saveContractSnapshot(cmd, records); err != nil {
				return err
			}
		}

		if contractsXLSX != "" {
			path, err := report.SaveContracts(contractsXLSX, records)
			if err != nil {
				return err
			}
			zap.L().Info("workbook written", zap.String("path", path))
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(records), "encode contracts")
	},
}

func saveContractSnapshot(cmd *cobra.Command, records []model.ContractRecord) error {
	st, err := initStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(cmd.Context()); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	data, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "marshal contracts")
	}

	snap, err := st.SaveSnapshot(cmd.Context(), model.SnapshotContracts, time.Now().UTC(), data)
	if err != nil {
		return err
	}

	if _, err := st.SaveContractRows(cmd.Context(), snap.ID, records); err != nil {
		return err
	}

	zap.L().Info("snapshot saved",
		zap.String("id", snap.ID),
		zap.Int("contracts", len(records)),
	)
	return nil
}

func init() {
	contractsCmd.Flags().StringVar(&contractsMonth, "month", "", "calendar month (YYYY-MM); wins over --start/--end")
	contractsCmd.Flags().StringVar(&contractsStart, "start", "", "inclusive start date (YYYY-MM-DD)")
	contractsCmd.Flags().StringVar(&contractsEnd, "end", "", "exclusive end date (YYYY-MM-DD)")
	contractsCmd.Flags().StringVar(&contractsDept, "dept", "", "owner department filter (empty, ALL or * disables)")
	contractsCmd.Flags().StringVar(&contractsXLSX, "xlsx", "", "write an Excel workbook to this path instead of JSON")
	contractsCmd.Flags().BoolVar(&contractsSnapshot, "save-snapshot", false, "persist the result to the snapshot store")
	rootCmd.AddCommand(contractsCmd)
}
