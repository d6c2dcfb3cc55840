package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/playgrid/server/internal/command"
)

// RunRow is one persisted playback outcome.
type RunRow struct {
	ID            int64
	LearnerName   string
	WorldName     string
	Passed        bool
	Evaluated     bool
	GemsCollected int
	SwitchesOpen  int
	CommandCount  int
	Duration      time.Duration
	FinishedAt    time.Time
}

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Insert stores the run outcome and returns its id.
func (r *RunRepo) Insert(ctx context.Context, row *RunRow) (int64, error) {
	var learner any
	if row.LearnerName != "" {
		learner = row.LearnerName
	}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO runs (learner_name, world_name, passed, evaluated,
		                   gems_collected, switches_open, command_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		learner, row.WorldName, row.Passed, row.Evaluated,
		row.GemsCollected, row.SwitchesOpen, row.CommandCount,
		row.Duration.Milliseconds(),
	).Scan(&row.ID)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return row.ID, nil
}

// InsertCommands atomically writes one flushed batch of the run's command
// log in a single transaction.
func (r *RunRepo) InsertCommands(ctx context.Context, runID int64, startSeq int, cmds []command.Command) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("run log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, cmd := range cmds {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_commands (run_id, seq, kind, performer, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			runID, startSeq+i, int16(cmd.Kind), int64(cmd.Performer), cmd.Description(),
		); err != nil {
			return fmt.Errorf("run log insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Recent returns a learner's latest runs, newest first.
func (r *RunRepo) Recent(ctx context.Context, learner string, limit int) ([]RunRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, COALESCE(learner_name,''), world_name, passed, evaluated,
		        gems_collected, switches_open, command_count, duration_ms, finished_at
		 FROM runs WHERE learner_name = $1
		 ORDER BY finished_at DESC LIMIT $2`, learner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var durMS int64
		if err := rows.Scan(&row.ID, &row.LearnerName, &row.WorldName, &row.Passed,
			&row.Evaluated, &row.GemsCollected, &row.SwitchesOpen,
			&row.CommandCount, &durMS, &row.FinishedAt); err != nil {
			return nil, err
		}
		row.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, row)
	}
	return out, rows.Err()
}
