package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-report/internal/db"
	"github.com/sells-group/crm-report/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_snapshot": `INSERT INTO snapshots (id, kind, taken_at, data) VALUES ($1, $2, $3, $4)`,
	"latest_snapshot": `SELECT id, kind, taken_at, data FROM snapshots WHERE kind = $1 ORDER BY taken_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind     TEXT NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	data     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_kind_taken ON snapshots(kind, taken_at DESC);

CREATE TABLE IF NOT EXISTS contract_rows (
	snapshot_id     TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	contract_id     TEXT NOT NULL,
	contract_name   TEXT NOT NULL,
	account_name    TEXT,
	owner_name      TEXT,
	owner_dept      TEXT,
	purchase_amount DOUBLE PRECISION NOT NULL,
	total_with_vat  DOUBLE PRECISION NOT NULL,
	data            JSONB NOT NULL,
	PRIMARY KEY (snapshot_id, contract_id)
);

CREATE INDEX IF NOT EXISTS idx_contract_rows_contract ON contract_rows(contract_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, kind model.SnapshotKind, takenAt time.Time, data []byte) (*model.Snapshot, error) {
	id := uuid.New().String()
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, kind, taken_at, data) VALUES ($1, $2, $3, $4)`,
		id, string(kind), takenAt, data,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert snapshot %s", kind)
	}

	return &model.Snapshot{
		ID:      id,
		Kind:    kind,
		TakenAt: takenAt,
		Data:    json.RawMessage(data),
	}, nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, kind model.SnapshotKind) (*model.Snapshot, error) {
	var snap model.Snapshot
	var kindStr string
	var data []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, taken_at, data FROM snapshots WHERE kind = $1 ORDER BY taken_at DESC LIMIT 1`,
		string(kind),
	).Scan(&snap.ID, &kindStr, &snap.TakenAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest snapshot %s", kind)
	}

	snap.Kind = model.SnapshotKind(kindStr)
	snap.Data = json.RawMessage(data)
	return &snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, filter ListFilter) ([]model.SnapshotMeta, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, taken_at, length(data::text) FROM snapshots`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, string(filter.Kind))
	}
	query += fmt.Sprintf(` ORDER BY taken_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.SnapshotMeta
	for rows.Next() {
		var meta model.SnapshotMeta
		var kindStr string
		if err := rows.Scan(&meta.ID, &kindStr, &meta.TakenAt, &meta.Size); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot meta")
		}
		meta.Kind = model.SnapshotKind(kindStr)
		out = append(out, meta)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots")
}

func (s *PostgresStore) PruneSnapshots(ctx context.Context, kind model.SnapshotKind, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM snapshots WHERE kind = $1 AND id NOT IN (
			SELECT id FROM snapshots WHERE kind = $1 ORDER BY taken_at DESC LIMIT $2
		)`,
		string(kind), keep,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: prune snapshots %s", kind)
	}
	return int(tag.RowsAffected()), nil
}

var contractRowColumns = []string{
	"snapshot_id", "contract_id", "contract_name", "account_name",
	"owner_name", "owner_dept", "purchase_amount", "total_with_vat", "data",
}

// SaveContractRows bulk-loads the flat contract records of a snapshot via the
// COPY protocol.
func (s *PostgresStore) SaveContractRows(ctx context.Context, snapshotID string, records []model.ContractRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal contract %s", rec.ID)
		}
		rows = append(rows, []any{
			snapshotID, rec.ID, rec.Name, rec.AccountName,
			rec.Opportunity.OwnerName, rec.Opportunity.OwnerDepartment,
			rec.PurchaseAmount, rec.TotalWithVAT, data,
		})
	}
	return db.CopyFrom(ctx, s.pool, "contract_rows", contractRowColumns, rows)
}
