package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

type ProgressRepository interface {
	Get(ctx context.Context, userID, challengeID string) (*model.ChallengeProgress, error)
	// Upsert records a progress transition. Completed rows never regress:
	// the update is a no-op when it would move the state down.
	Upsert(ctx context.Context, tx *sql.Tx, userID, challengeID string, state model.ProgressState) error
	ListByUser(ctx context.Context, userID string) ([]model.ChallengeProgress, error)

	// SaveDraft upserts the draft and reports whether anything changed;
	// saving identical code twice is a no-op the second time.
	SaveDraft(ctx context.Context, userID, challengeID string, lang model.Language, code string) (bool, error)
	GetDraft(ctx context.Context, userID, challengeID string) (*model.Draft, error)
}

type pgProgressRepository struct {
	db *sql.DB
}

func NewPgProgressRepository(db *sql.DB) ProgressRepository {
	return &pgProgressRepository{db: db}
}

func (r *pgProgressRepository) Get(ctx context.Context, userID, challengeID string) (*model.ChallengeProgress, error) {
	query := `SELECT user_id, challenge_id, state, updated_at
	          FROM challenge_progress WHERE user_id = $1 AND challenge_id = $2`
	p := &model.ChallengeProgress{}
	err := r.db.QueryRowContext(ctx, query, userID, challengeID).Scan(&p.UserID, &p.ChallengeID, &p.State, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProgressRepository.Get: %w", err)
	}
	return p, nil
}

func (r *pgProgressRepository) Upsert(ctx context.Context, tx *sql.Tx, userID, challengeID string, state model.ProgressState) error {
	// Monotonicity is enforced in SQL so concurrent submits cannot race a
	// Completed row back to InProgress.
	query := `INSERT INTO challenge_progress (user_id, challenge_id, state, updated_at)
	          VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
	          ON CONFLICT (user_id, challenge_id) DO UPDATE
	          SET state = EXCLUDED.state, updated_at = CURRENT_TIMESTAMP
	          WHERE challenge_progress.state <> 'Completed'`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, userID, challengeID, state); err != nil {
		return fmt.Errorf("pgProgressRepository.Upsert: %w", err)
	}
	return nil
}

func (r *pgProgressRepository) ListByUser(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	query := `SELECT user_id, challenge_id, state, updated_at
	          FROM challenge_progress WHERE user_id = $1 ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pgProgressRepository.ListByUser: %w", err)
	}
	defer rows.Close()

	var out []model.ChallengeProgress
	for rows.Next() {
		var p model.ChallengeProgress
		if err := rows.Scan(&p.UserID, &p.ChallengeID, &p.State, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgProgressRepository.ListByUser scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgProgressRepository) SaveDraft(ctx context.Context, userID, challengeID string, lang model.Language, code string) (bool, error) {
	query := `INSERT INTO drafts (user_id, challenge_id, language, code, updated_at)
	          VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
	          ON CONFLICT (user_id, challenge_id) DO UPDATE
	          SET language = EXCLUDED.language, code = EXCLUDED.code, updated_at = CURRENT_TIMESTAMP
	          WHERE drafts.code IS DISTINCT FROM EXCLUDED.code
	             OR drafts.language IS DISTINCT FROM EXCLUDED.language`
	res, err := r.db.ExecContext(ctx, query, userID, challengeID, lang, code)
	if err != nil {
		return false, fmt.Errorf("pgProgressRepository.SaveDraft: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *pgProgressRepository) GetDraft(ctx context.Context, userID, challengeID string) (*model.Draft, error) {
	query := `SELECT user_id, challenge_id, language, code, updated_at
	          FROM drafts WHERE user_id = $1 AND challenge_id = $2`
	d := &model.Draft{}
	err := r.db.QueryRowContext(ctx, query, userID, challengeID).Scan(&d.UserID, &d.ChallengeID, &d.Language, &d.Code, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProgressRepository.GetDraft: %w", err)
	}
	return d, nil
}
