package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/internal/store"
)

var (
	snapshotKind   string
	snapshotLimit  int
	snapshotOffset int
	snapshotKeep   int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and maintain stored report snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		metas, err := st.ListSnapshots(cmd.Context(), store.ListFilter{
			Kind:   model.SnapshotKind(snapshotKind),
			Limit:  snapshotLimit,
			Offset: snapshotOffset,
		})
		if err != nil {
			return err
		}
		return printJSON(metas)
	},
}

var snapshotLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recent snapshot of a kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotKind == "" {
			return eris.New("--kind is required")
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.LatestSnapshot(cmd.Context(), model.SnapshotKind(snapshotKind))
		if err != nil {
			return err
		}
		if snap == nil {
			return eris.Errorf("no %s snapshot stored", snapshotKind)
		}

		_, err = os.Stdout.Write(append(snap.Data, '\n'))
		return eris.Wrap(err, "write snapshot")
	},
}

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old snapshots of a kind, keeping the newest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotKind == "" {
			return eris.New("--kind is required")
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		deleted, err := st.PruneSnapshots(cmd.Context(), model.SnapshotKind(snapshotKind), snapshotKeep)
		if err != nil {
			return err
		}
		zap.L().Info("snapshots pruned",
			zap.String("kind", snapshotKind),
			zap.Int("deleted", deleted),
			zap.Int("kept", snapshotKeep),
		)
		return nil
	},
}

func openStore(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate("snapshot"); err != nil {
		return nil, err
	}

	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapshotKind, "kind", "", "snapshot kind: contracts, metrics or insight")
	snapshotListCmd.Flags().IntVar(&snapshotLimit, "limit", 50, "maximum entries to list")
	snapshotListCmd.Flags().IntVar(&snapshotOffset, "offset", 0, "entries to skip")
	snapshotPruneCmd.Flags().IntVar(&snapshotKeep, "keep", 10, "newest snapshots to retain")
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotLatestCmd)
	snapshotCmd.AddCommand(snapshotPruneCmd)
	rootCmd.AddCommand(snapshotCmd)
}
