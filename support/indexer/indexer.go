package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokenvest/vesting-actors/actors/builtin/vesting"
	"github.com/tokenvest/vesting-actors/actors/util/adt"
)

// DB is a connection pool to the index database.
type DB struct {
	*pgxpool.Pool
}

// Run records one indexing pass over a vesting engine state.
type Run struct {
	ID         int64
	Epoch      abi.ChainEpoch
	StateRoot  string
	GrantCount uint64
	CreatedAt  time.Time
}

// Connect opens a connection pool and checks it is reachable.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

const upsertGrant = `
	INSERT INTO grants (beneficiary, grant_index, total_amount, start_epoch, collected_amount, unlocked_amount, indexed_epoch)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (beneficiary, grant_index) DO UPDATE SET
		collected_amount = EXCLUDED.collected_amount,
		unlocked_amount = EXCLUDED.unlocked_amount,
		indexed_epoch = EXCLUDED.indexed_epoch`

const insertRun = `
	INSERT INTO index_runs (epoch, state_root, grant_count)
	VALUES ($1, $2, $3)
	RETURNING id, created_at`

// IndexState loads the vesting engine state at head and writes every grant, evaluated at epoch,
// together with a run record. Rows are upserted so re-indexing a later state refreshes them.
func (db *DB) IndexState(ctx context.Context, store adt.Store, head cid.Cid, epoch abi.ChainEpoch) (*Run, error) {
	var st vesting.State
	if err := store.Get(ctx, head, &st); err != nil {
		return nil, fmt.Errorf("failed to load vesting state %v: %w", head, err)
	}
	rows, err := Snapshot(store, &st, epoch)
	if err != nil {
		return nil, err
	}

	run := &Run{Epoch: epoch, StateRoot: head.String(), GrantCount: uint64(len(rows))}
	err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(upsertGrant, r.Beneficiary, int64(r.Index), r.TotalAmount.String(), int64(r.StartEpoch),
				r.CollectedAmount.String(), r.UnlockedAmount.String(), int64(r.IndexedEpoch))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert grants: %w", err)
		}
		if err := tx.QueryRow(ctx, insertRun, int64(epoch), run.StateRoot, int64(run.GrantCount)).Scan(&run.ID, &run.CreatedAt); err != nil {
			return fmt.Errorf("failed to record index run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Grants returns the indexed grants of a beneficiary in index order.
func (db *DB) Grants(ctx context.Context, beneficiary string) ([]GrantRow, error) {
	query := `
		SELECT beneficiary, grant_index, total_amount::text, start_epoch,
		       collected_amount::text, unlocked_amount::text, indexed_epoch
		FROM grants
		WHERE beneficiary = $1
		ORDER BY grant_index ASC`

	rows, err := db.Query(ctx, query, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants for %s: %w", beneficiary, err)
	}
	defer rows.Close()

	var out []GrantRow
	for rows.Next() {
		var (
			row                        GrantRow
			index, start, indexed      int64
			total, collected, unlocked string
		)
		if err := rows.Scan(&row.Beneficiary, &index, &total, &start, &collected, &unlocked, &indexed); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		row.Index = uint64(index)
		row.StartEpoch = abi.ChainEpoch(start)
		row.IndexedEpoch = abi.ChainEpoch(indexed)
		if row.TotalAmount, err = big.FromString(total); err != nil {
			return nil, fmt.Errorf("invalid total amount %q: %w", total, err)
		}
		if row.CollectedAmount, err = big.FromString(collected); err != nil {
			return nil, fmt.Errorf("invalid collected amount %q: %w", collected, err)
		}
		if row.UnlockedAmount, err = big.FromString(unlocked); err != nil {
			return nil, fmt.Errorf("invalid unlocked amount %q: %w", unlocked, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ErrNoRuns is returned by LatestRun when nothing has been indexed.
var ErrNoRuns = errors.New("no index runs recorded")

// LatestRun returns the most recently recorded index run.
func (db *DB) LatestRun(ctx context.Context) (*Run, error) {
	query := `
		SELECT id, epoch, state_root, grant_count, created_at
		FROM index_runs
		ORDER BY id DESC
		LIMIT 1`

	var (
		run          Run
		epoch, count int64
	)
	err := db.QueryRow(ctx, query).Scan(&run.ID, &epoch, &run.StateRoot, &count, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	run.Epoch = abi.ChainEpoch(epoch)
	run.GrantCount = uint64(count)
	return &run, nil
}
