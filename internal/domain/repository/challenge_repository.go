package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, tx *sql.Tx, c *model.Challenge) error
	UpdateChallengeStatus(ctx context.Context, tx *sql.Tx, id string, status model.ChallengeStatus) error
	FindByID(ctx context.Context, id string) (*model.Challenge, error)
	FindBySlug(ctx context.Context, slug string) (*model.Challenge, error)
	ListChallenges(ctx context.Context, limit, offset int, difficulty model.ChallengeDifficulty, tag string, status model.ChallengeStatus) ([]model.Challenge, int, error)

	AddExamples(ctx context.Context, tx *sql.Tx, challengeID string, examples []model.Example) error
	GetExamples(ctx context.Context, challengeID string) ([]model.Example, error)

	AddTestCases(ctx context.Context, tx *sql.Tx, challengeID string, cases []model.TestCase) error
	GetTestCases(ctx context.Context, challengeID string) ([]model.TestCase, error)

	SetTags(ctx context.Context, tx *sql.Tx, challengeID string, tags []string) error
	GetTags(ctx context.Context, challengeID string) ([]string, error)
}

type pgChallengeRepository struct {
	db *sql.DB
}

func NewPgChallengeRepository(db *sql.DB) ChallengeRepository {
	return &pgChallengeRepository{db: db}
}

func (r *pgChallengeRepository) CreateChallenge(ctx context.Context, tx *sql.Tx, c *model.Challenge) error {
	query := `INSERT INTO challenges (id, title, slug, description, difficulty, status, points, output_norm, language, solution_code, runtime_limit_ms, memory_limit_kb, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := pick(r.db, tx).ExecContext(ctx, query,
		c.ID, c.Title, c.Slug, c.Description, c.Difficulty, c.Status, c.Points, c.OutputNorm,
		c.Language, c.SolutionCode, c.RuntimeLimitMs, c.MemoryLimitKb, c.CreatedByID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("challenge with this slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgChallengeRepository.CreateChallenge: %w", err)
	}
	return nil
}

func (r *pgChallengeRepository) UpdateChallengeStatus(ctx context.Context, tx *sql.Tx, id string, status model.ChallengeStatus) error {
	query := `UPDATE challenges SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("pgChallengeRepository.UpdateChallengeStatus: %w", err)
	}
	return nil
}

const challengeColumns = `
	c.id, c.title, c.slug, c.description, c.difficulty, c.status, c.points,
	c.output_norm, c.language, c.solution_code, c.runtime_limit_ms, c.memory_limit_kb,
	c.created_by, u.username, c.created_at, c.updated_at`

func (r *pgChallengeRepository) scanChallenge(row *sql.Row) (*model.Challenge, error) {
	c := &model.Challenge{}
	err := row.Scan(
		&c.ID, &c.Title, &c.Slug, &c.Description, &c.Difficulty, &c.Status, &c.Points,
		&c.OutputNorm, &c.Language, &c.SolutionCode, &c.RuntimeLimitMs, &c.MemoryLimitKb,
		&c.CreatedByID, &c.CreatedByUsername, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *pgChallengeRepository) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + `
	          FROM challenges c LEFT JOIN users u ON c.created_by = u.id
	          WHERE c.id = $1`
	c, err := r.scanChallenge(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("pgChallengeRepository.FindByID: %w", err)
	}
	return c, err
}

func (r *pgChallengeRepository) FindBySlug(ctx context.Context, slug string) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + `
	          FROM challenges c LEFT JOIN users u ON c.created_by = u.id
	          WHERE c.slug = $1`
	c, err := r.scanChallenge(r.db.QueryRowContext(ctx, query, slug))
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("pgChallengeRepository.FindBySlug: %w", err)
	}
	return c, err
}

func (r *pgChallengeRepository) ListChallenges(ctx context.Context, limit, offset int, difficulty model.ChallengeDifficulty, tag string, status model.ChallengeStatus) ([]model.Challenge, int, error) {
	var base, count strings.Builder
	base.WriteString(`SELECT DISTINCT c.id, c.title, c.slug, c.difficulty, c.status, c.points, c.language, c.created_at, c.updated_at FROM challenges c`)
	count.WriteString(`SELECT COUNT(DISTINCT c.id) FROM challenges c`)

	var conditions []string
	var args []interface{}
	argID := 1

	if tag != "" {
		join := " JOIN challenge_tags ct ON c.id = ct.challenge_id"
		base.WriteString(join)
		count.WriteString(join)
		conditions = append(conditions, fmt.Sprintf("ct.tag = $%d", argID))
		args = append(args, tag)
		argID++
	}
	if difficulty != "" {
		conditions = append(conditions, fmt.Sprintf("c.difficulty = $%d", argID))
		args = append(args, difficulty)
		argID++
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argID))
		args = append(args, status)
		argID++
	}

	if len(conditions) > 0 {
		where := " WHERE " + strings.Join(conditions, " AND ")
		base.WriteString(where)
		count.WriteString(where)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, count.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgChallengeRepository.ListChallenges count: %w", err)
	}

	base.WriteString(fmt.Sprintf(" ORDER BY c.created_at DESC LIMIT $%d OFFSET $%d", argID, argID+1))
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, base.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgChallengeRepository.ListChallenges query: %w", err)
	}
	defer rows.Close()

	challenges := []model.Challenge{}
	for rows.Next() {
		var c model.Challenge
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.Difficulty, &c.Status, &c.Points, &c.Language, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgChallengeRepository.ListChallenges scan: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgChallengeRepository.ListChallenges rows: %w", err)
	}
	return challenges, total, nil
}

func (r *pgChallengeRepository) AddExamples(ctx context.Context, tx *sql.Tx, challengeID string, examples []model.Example) error {
	if len(examples) == 0 {
		return nil
	}
	query := `INSERT INTO examples (id, challenge_id, input, expected_output, explanation, sort_order)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	for i, ex := range examples {
		if _, err := pick(r.db, tx).ExecContext(ctx, query, ex.ID, challengeID, ex.Input, ex.ExpectedOutput, ex.Explanation, i+1); err != nil {
			return fmt.Errorf("pgChallengeRepository.AddExamples: %w", err)
		}
	}
	return nil
}

func (r *pgChallengeRepository) GetExamples(ctx context.Context, challengeID string) ([]model.Example, error) {
	query := `SELECT id, challenge_id, input, expected_output, explanation, sort_order, created_at
	          FROM examples WHERE challenge_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("pgChallengeRepository.GetExamples: %w", err)
	}
	defer rows.Close()

	var examples []model.Example
	for rows.Next() {
		var ex model.Example
		if err := rows.Scan(&ex.ID, &ex.ChallengeID, &ex.Input, &ex.ExpectedOutput, &ex.Explanation, &ex.SortOrder, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgChallengeRepository.GetExamples scan: %w", err)
		}
		examples = append(examples, ex)
	}
	return examples, rows.Err()
}

func (r *pgChallengeRepository) AddTestCases(ctx context.Context, tx *sql.Tx, challengeID string, cases []model.TestCase) error {
	if len(cases) == 0 {
		return nil
	}
	query := `INSERT INTO test_cases (id, challenge_id, input, expected_output, is_hidden, sort_order)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	for i, tc := range cases {
		if _, err := pick(r.db, tx).ExecContext(ctx, query, tc.ID, challengeID, tc.Input, tc.ExpectedOutput, tc.IsHidden, i+1); err != nil {
			return fmt.Errorf("pgChallengeRepository.AddTestCases: %w", err)
		}
	}
	return nil
}

func (r *pgChallengeRepository) GetTestCases(ctx context.Context, challengeID string) ([]model.TestCase, error) {
	query := `SELECT id, challenge_id, input, expected_output, is_hidden, sort_order, created_at
	          FROM test_cases WHERE challenge_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("pgChallengeRepository.GetTestCases: %w", err)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ChallengeID, &tc.Input, &tc.ExpectedOutput, &tc.IsHidden, &tc.SortOrder, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgChallengeRepository.GetTestCases scan: %w", err)
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

func (r *pgChallengeRepository) SetTags(ctx context.Context, tx *sql.Tx, challengeID string, tags []string) error {
	if _, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM challenge_tags WHERE challenge_id = $1`, challengeID); err != nil {
		return fmt.Errorf("pgChallengeRepository.SetTags clear: %w", err)
	}
	for _, tag := range tags {
		if _, err := pick(r.db, tx).ExecContext(ctx, `INSERT INTO challenge_tags (challenge_id, tag) VALUES ($1, $2)`, challengeID, tag); err != nil {
			return fmt.Errorf("pgChallengeRepository.SetTags insert: %w", err)
		}
	}
	return nil
}

func (r *pgChallengeRepository) GetTags(ctx context.Context, challengeID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag FROM challenge_tags WHERE challenge_id = $1 ORDER BY tag`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("pgChallengeRepository.GetTags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("pgChallengeRepository.GetTags scan: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
