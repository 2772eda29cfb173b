package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-report/internal/leadstats"
)

var (
	leadsMonth     string
	leadsStart     string
	leadsEnd       string
	leadsDept      string
	leadsConverted string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Lead statistics grouped by owner",
}

var leadsDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily lead counts per owner over a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, f, err := leadsService()
		if err != nil {
			return err
		}

		rep, err := svc.DailyByOwner(cmd.Context(), f)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}

var leadsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Lead status counts and conversion rate per owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, f, err := leadsService()
		if err != nil {
			return err
		}

		rep, err := svc.CountByOwner(cmd.Context(), f)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}

func leadsService() (*leadstats.Service, leadstats.Filter, error) {
	if err := cfg.Validate("leads"); err != nil {
		return nil, leadstats.Filter{}, err
	}

	sf, err := initSalesforce()
	if err != nil {
		return nil, leadstats.Filter{}, err
	}

	f := leadstats.Filter{
		Month:     leadsMonth,
		Start:     leadsStart,
		End:       leadsEnd,
		OwnerDept: leadsDept,
	}
	if f.OwnerDept == "" {
		f.OwnerDept = cfg.Leads.OwnerDepartment
	}
	switch leadsConverted {
	case "":
	case "true", "false":
		converted := leadsConverted == "true"
		f.IsConverted = &converted
	default:
		return nil, leadstats.Filter{}, eris.Errorf("invalid --converted value: %s", leadsConverted)
	}

	return leadstats.New(sf), f, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func init() {
	leadsCmd.PersistentFlags().StringVar(&leadsMonth, "month", "", "calendar month (YYYY-MM); wins over --start/--end")
	leadsCmd.PersistentFlags().StringVar(&leadsStart, "start", "", "inclusive start date (YYYY-MM-DD)")
	leadsCmd.PersistentFlags().StringVar(&leadsEnd, "end", "", "exclusive end date (YYYY-MM-DD)")
	leadsCmd.PersistentFlags().StringVar(&leadsDept, "dept", "", "owner department list, comma separated (default from config)")
	leadsCmd.PersistentFlags().StringVar(&leadsConverted, "converted", "", "filter by conversion state: true or false")
	leadsCmd.AddCommand(leadsDailyCmd)
	leadsCmd.AddCommand(leadsCountCmd)
	rootCmd.AddCommand(leadsCmd)
}
