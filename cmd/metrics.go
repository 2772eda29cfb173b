package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/insight"
	"github.com/sells-group/crm-report/internal/report"
)

var (
	metricsMonths string
	metricsDept   string
	metricsXLSX   string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Monthly lead, opportunity and contract volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("metrics"); err != nil {
			return err
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}
		svc := insight.New(sf, nil)

		metrics, err := svc.ResolveMonthlyMetrics(cmd.Context(), splitMonths(metricsMonths), metricsDept)
		if err != nil {
			return err
		}

		if metricsXLSX != "" {
			f, err := createFile(metricsXLSX)
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck
			if err := report.WriteMonthlyMetrics(f, metrics); err != nil {
				return err
			}
			zap.L().Info("workbook written", zap.String("path", f.Name()))
			return nil
		}

		return printJSON(metrics)
	},
}

func splitMonths(s string) []string {
	if s == "" {
		return nil
	}
	var months []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			months = append(months, m)
		}
	}
	return months
}

func init() {
	metricsCmd.Flags().StringVar(&metricsMonths, "months", "", "months to resolve, comma separated YYYY-MM (default 3 most recent)")
	metricsCmd.Flags().StringVar(&metricsDept, "dept", "", "owner department list for the contract query")
	metricsCmd.Flags().StringVar(&metricsXLSX, "xlsx", "", "write an Excel workbook to this path instead of JSON")
	rootCmd.AddCommand(metricsCmd)
}
