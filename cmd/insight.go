package main

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/insight"
	"github.com/sells-group/crm-report/internal/model"
)

var (
	insightMonths   string
	insightDept     string
	insightTablets  int
	insightSnapshot bool
)

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Generate a Korean funnel commentary from recent monthly metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("insight"); err != nil {
			return err
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}
		llm, err := initAnthropic()
		if err != nil {
			return err
		}

		svc := insight.New(sf, llm, insight.WithModel(cfg.Anthropic.Model))

		target := insightTablets
		if target == 0 {
			target = cfg.Insight.TargetTablets
		}

		metrics, err := svc.ResolveMonthlyMetrics(ctx, splitMonths(insightMonths), insightDept)
		if err != nil {
			return err
		}

		result, err := svc.Generate(ctx, metrics, target, insightDept)
		if err != nil {
			return err
		}

		if insightSnapshot {
			if err := saveInsightSnapshot(cmd, result); err != nil {
				return err
			}
		}

		return printJSON(result)
	},
}

func saveInsightSnapshot(cmd *cobra.Command, result *model.Insight) error {
	st, err := initStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(cmd.Context()); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "marshal insight")
	}

	snap, err := st.SaveSnapshot(cmd.Context(), model.SnapshotInsight, time.Now().UTC(), data)
	if err != nil {
		return err
	}
	zap.L().Info("snapshot saved", zap.String("id", snap.ID))
	return nil
}

func init() {
	insightCmd.Flags().StringVar(&insightMonths, "months", "", "months to analyze, comma separated YYYY-MM (default 3 most recent)")
	insightCmd.Flags().StringVar(&insightDept, "dept", "", "owner department list for the contract query")
	insightCmd.Flags().IntVar(&insightTablets, "target-tablets", 0, "monthly tablet sales target (default from config)")
	insightCmd.Flags().BoolVar(&insightSnapshot, "save-snapshot", false, "persist the result to the snapshot store")
	rootCmd.AddCommand(insightCmd)
}
