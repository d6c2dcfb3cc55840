package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

type LearnerRow struct {
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	LastActive   *time.Time
}

// LearnerRepo stores learner identities so hosted runs can be attributed.
type LearnerRepo struct {
	db *DB
}

func NewLearnerRepo(db *DB) *LearnerRepo {
	return &LearnerRepo{db: db}
}

func (r *LearnerRepo) Load(ctx context.Context, name string) (*LearnerRow, error) {
	row := &LearnerRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, password_hash, created_at, last_active
		 FROM learners WHERE name = $1`, name,
	).Scan(&row.Name, &row.PasswordHash, &row.CreatedAt, &row.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *LearnerRepo) Create(ctx context.Context, name, rawPassword string) (*LearnerRow, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	row := &LearnerRow{
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		LastActive:   &now,
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO learners (name, password_hash, last_active)
		 VALUES ($1, $2, $3)`,
		row.Name, row.PasswordHash, row.LastActive,
	)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Verify checks a raw password against the stored hash.
func (r *LearnerRepo) Verify(row *LearnerRow, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(rawPassword)) == nil
}

func (r *LearnerRepo) Touch(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE learners SET last_active = now() WHERE name = $1`, name)
	return err
}
