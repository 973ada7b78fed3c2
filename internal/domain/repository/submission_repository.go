package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

type SubmissionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	// UpdateState moves a non-terminal submission to the given state.
	// Terminal rows are immutable; updating one returns common.ErrConflict.
	UpdateState(ctx context.Context, tx *sql.Tx, id string, state model.SubmissionState) error
	// Complete records the graded outcome and marks the row Completed.
	Complete(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	CreateCaseResults(ctx context.Context, tx *sql.Tx, results []model.CaseResult) error
	GetCaseResults(ctx context.Context, submissionID string) ([]model.CaseResult, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Submission, int, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) Create(ctx context.Context, tx *sql.Tx, s *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, challenge_id, language, code, kind, state)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, s.ID, s.UserID, s.ChallengeID, s.Language, s.Code, s.Kind, s.State)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT id, user_id, challenge_id, language, code, kind, state, verdict, score, passed_count, total_count, created_at, updated_at
	          FROM submissions WHERE id = $1`
	s := &model.Submission{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.ChallengeID, &s.Language, &s.Code, &s.Kind, &s.State,
		&s.Verdict, &s.Score, &s.PassedCount, &s.TotalCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetByID: %w", err)
	}
	return s, nil
}

var terminalStates = `('Completed', 'Failed', 'Cancelled')`

func (r *pgSubmissionRepository) UpdateState(ctx context.Context, tx *sql.Tx, id string, state model.SubmissionState) error {
	query := `UPDATE submissions SET state = $1, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $2 AND state NOT IN ` + terminalStates
	res, err := pick(r.db, tx).ExecContext(ctx, query, state, id)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.UpdateState: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %s is already terminal: %w", id, common.ErrConflict)
	}
	return nil
}

func (r *pgSubmissionRepository) Complete(ctx context.Context, tx *sql.Tx, s *model.Submission) error {
	query := `UPDATE submissions SET state = $1, verdict = $2, score = $3, passed_count = $4, total_count = $5, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $6 AND state NOT IN ` + terminalStates
	res, err := pick(r.db, tx).ExecContext(ctx, query, s.State, s.Verdict, s.Score, s.PassedCount, s.TotalCount, s.ID)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.Complete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %s is already terminal: %w", s.ID, common.ErrConflict)
	}
	return nil
}

func (r *pgSubmissionRepository) CreateCaseResults(ctx context.Context, tx *sql.Tx, results []model.CaseResult) error {
	query := `INSERT INTO submission_case_results (id, submission_id, test_case_id, input, expected_output, actual_output, passed, verdict, hidden, time_ms, sort_order)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, cr := range results {
		_, err := pick(r.db, tx).ExecContext(ctx, query,
			cr.ID, cr.SubmissionID, cr.TestCaseID, cr.Input, cr.ExpectedOutput, cr.ActualOutput,
			cr.Passed, cr.Verdict, cr.Hidden, cr.TimeMs, cr.SortOrder)
		if err != nil {
			return fmt.Errorf("pgSubmissionRepository.CreateCaseResults: %w", err)
		}
	}
	return nil
}

func (r *pgSubmissionRepository) GetCaseResults(ctx context.Context, submissionID string) ([]model.CaseResult, error) {
	query := `SELECT id, submission_id, test_case_id, input, expected_output, actual_output, passed, verdict, hidden, time_ms, sort_order, created_at
	          FROM submission_case_results WHERE submission_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.GetCaseResults: %w", err)
	}
	defer rows.Close()

	var results []model.CaseResult
	for rows.Next() {
		var cr model.CaseResult
		if err := rows.Scan(&cr.ID, &cr.SubmissionID, &cr.TestCaseID, &cr.Input, &cr.ExpectedOutput, &cr.ActualOutput,
			&cr.Passed, &cr.Verdict, &cr.Hidden, &cr.TimeMs, &cr.SortOrder, &cr.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.GetCaseResults scan: %w", err)
		}
		results = append(results, cr)
	}
	return results, rows.Err()
}

func (r *pgSubmissionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND kind = 'submit'`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgSubmissionRepository.ListByUser count: %w", err)
	}

	query := `SELECT id, user_id, challenge_id, language, kind, state, verdict, score, passed_count, total_count, created_at, updated_at
	          FROM submissions WHERE user_id = $1 AND kind = 'submit'
	          ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgSubmissionRepository.ListByUser query: %w", err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.UserID, &s.ChallengeID, &s.Language, &s.Kind, &s.State,
			&s.Verdict, &s.Score, &s.PassedCount, &s.TotalCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgSubmissionRepository.ListByUser scan: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}
