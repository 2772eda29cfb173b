package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-report/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id       TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	taken_at DATETIME NOT NULL,
	data     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_kind_taken ON snapshots(kind, taken_at DESC);

CREATE TABLE IF NOT EXISTS contract_rows (
	snapshot_id     TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	contract_id     TEXT NOT NULL,
	contract_name   TEXT NOT NULL,
	account_name    TEXT,
	owner_name      TEXT,
	owner_dept      TEXT,
	purchase_amount REAL NOT NULL,
	total_with_vat  REAL NOT NULL,
	data            TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, contract_id)
);

CREATE INDEX IF NOT EXISTS idx_contract_rows_contract ON contract_rows(contract_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, kind model.SnapshotKind, takenAt time.Time, data []byte) (*model.Snapshot, error) {
	id := uuid.New().String()
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, kind, taken_at, data) VALUES (?, ?, ?, ?)`,
		id, string(kind), takenAt.UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert snapshot %s", kind)
	}

	return &model.Snapshot{
		ID:      id,
		Kind:    kind,
		TakenAt: takenAt,
		Data:    json.RawMessage(data),
	}, nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, kind model.SnapshotKind) (*model.Snapshot, error) {
	var snap model.Snapshot
	var kindStr, takenAt, data string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, taken_at, data FROM snapshots WHERE kind = ? ORDER BY taken_at DESC LIMIT 1`,
		string(kind),
	).Scan(&snap.ID, &kindStr, &takenAt, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest snapshot %s", kind)
	}

	ts, err := time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse taken_at %s", takenAt)
	}
	snap.Kind = model.SnapshotKind(kindStr)
	snap.TakenAt = ts
	snap.Data = json.RawMessage(data)
	return &snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter ListFilter) ([]model.SnapshotMeta, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, taken_at, length(data) FROM snapshots`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY taken_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var out []model.SnapshotMeta
	for rows.Next() {
		var meta model.SnapshotMeta
		var kindStr, takenAt string
		if err := rows.Scan(&meta.ID, &kindStr, &takenAt, &meta.Size); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot meta")
		}
		ts, err := time.Parse(time.RFC3339Nano, takenAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse taken_at %s", takenAt)
		}
		meta.Kind = model.SnapshotKind(kindStr)
		meta.TakenAt = ts
		out = append(out, meta)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots")
}

func (s *SQLiteStore) PruneSnapshots(ctx context.Context, kind model.SnapshotKind, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE kind = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE kind = ? ORDER BY taken_at DESC LIMIT ?
		)`,
		string(kind), string(kind), keep,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prune snapshots %s", kind)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

// SaveContractRows inserts the flat contract records of a snapshot inside one
// transaction.
func (s *SQLiteStore) SaveContractRows(ctx context.Context, snapshotID string, records []model.ContractRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO contract_rows (snapshot_id, contract_id, contract_name, account_name,
			owner_name, owner_dept, purchase_amount, total_with_vat, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert contract row")
	}
	defer stmt.Close()

	var n int64
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal contract %s", rec.ID)
		}
		if _, err := stmt.ExecContext(ctx,
			snapshotID, rec.ID, rec.Name, rec.AccountName,
			rec.Opportunity.OwnerName, rec.Opportunity.OwnerDepartment,
			rec.PurchaseAmount, rec.TotalWithVAT, string(data),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert contract row %s", rec.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}
