package service

import (
	"context"
	"database/sql"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

type ChallengeService struct {
	challengeRepo repository.ChallengeRepository
	evaluator     Evaluator
	db            *sql.DB
	log           *zap.Logger
}

func NewChallengeService(
	challengeRepo repository.ChallengeRepository,
	evaluator Evaluator,
	db *sql.DB,
	log *zap.Logger,
) *ChallengeService {
	return &ChallengeService{
		challengeRepo: challengeRepo,
		evaluator:     evaluator,
		db:            db,
		log:           log,
	}
}

type CreateChallengeRequest struct {
	Title          string                    `json:"title"`
	Description    string                    `json:"description"`
	Difficulty     model.ChallengeDifficulty `json:"difficulty"`
	Language       model.Language            `json:"language"`
	OutputNorm     model.OutputNorm          `json:"output_norm,omitempty"`
	SolutionCode   string                    `json:"solution_code"`
	RuntimeLimitMs int                       `json:"runtime_limit_ms"`
	MemoryLimitKb  int                       `json:"memory_limit_kb"`
	Tags           []string                  `json:"tags"`
	Examples       []model.Example           `json:"examples"`
	TestCases      []model.TestCase          `json:"test_cases"`
}

// CreateChallenge stores a new challenge and verifies its reference solution
// against the full case set before publishing. The reference solution is an
// authoring-time tool only; it never takes part in grading student code.
func (s *ChallengeService) CreateChallenge(ctx context.Context, userID string, req CreateChallengeRequest) (*model.Challenge, error) {
	if req.Title == "" || req.Description == "" || req.SolutionCode == "" {
		return nil, common.Errorf("missing required fields: %w", common.ErrBadRequest)
	}
	if !req.Difficulty.Valid() {
		return nil, common.Errorf("unknown difficulty %q: %w", req.Difficulty, common.ErrBadRequest)
	}
	if !req.Language.Valid() {
		return nil, common.Errorf("unsupported language %q: %w", req.Language, common.ErrBadRequest)
	}
	if len(req.TestCases) == 0 {
		return nil, common.Errorf("a challenge needs at least one test case: %w", common.ErrInvalidChallenge)
	}
	if req.OutputNorm == "" {
		req.OutputNorm = model.NormTrim
	}
	if !req.OutputNorm.Valid() {
		return nil, common.Errorf("unknown output normalization %q: %w", req.OutputNorm, common.ErrBadRequest)
	}

	challenge := &model.Challenge{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Slug:           slug.Make(req.Title),
		Description:    req.Description,
		Difficulty:     req.Difficulty,
		Status:         model.StatusPendingValidation,
		Points:         req.Difficulty.Points(),
		OutputNorm:     req.OutputNorm,
		Language:       req.Language,
		SolutionCode:   &req.SolutionCode,
		RuntimeLimitMs: req.RuntimeLimitMs,
		MemoryLimitKb:  req.MemoryLimitKb,
		CreatedByID:    &userID,
	}
	if challenge.RuntimeLimitMs <= 0 {
		challenge.RuntimeLimitMs = 2000
	}
	if challenge.MemoryLimitKb <= 0 {
		challenge.MemoryLimitKb = 262144
	}

	tagSet := mapset.NewSet[string]()
	for _, t := range req.Tags {
		if t != "" {
			tagSet.Add(slug.Make(t))
		}
	}
	tags := tagSet.ToSlice()

	for i := range req.Examples {
		if req.Examples[i].ID == "" {
			req.Examples[i].ID = uuid.NewString()
		}
	}
	for i := range req.TestCases {
		if req.TestCases[i].ID == "" {
			req.TestCases[i].ID = uuid.NewString()
		}
	}

	var tx *sql.Tx
	if s.db != nil {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, common.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()
	}

	if err := s.challengeRepo.CreateChallenge(ctx, tx, challenge); err != nil {
		return nil, err
	}
	if err := s.challengeRepo.AddExamples(ctx, tx, challenge.ID, req.Examples); err != nil {
		return nil, err
	}
	if err := s.challengeRepo.AddTestCases(ctx, tx, challenge.ID, req.TestCases); err != nil {
		return nil, err
	}
	if err := s.challengeRepo.SetTags(ctx, tx, challenge.ID, tags); err != nil {
		return nil, err
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return nil, common.Errorf("failed to commit transaction: %w", err)
		}
	}

	challenge.Tags = tags
	challenge.Examples = req.Examples
	challenge.TestCases = req.TestCases

	status, err := s.validateSolution(ctx, challenge)
	if err != nil {
		// The challenge row exists; leave it PendingValidation so an admin
		// can retry once the evaluation infrastructure recovers.
		s.log.Error("reference solution validation failed to run",
			zap.String("challenge_id", challenge.ID), zap.Error(err))
		return challenge, nil
	}
	if err := s.challengeRepo.UpdateChallengeStatus(ctx, nil, challenge.ID, status); err != nil {
		return nil, err
	}
	challenge.Status = status
	s.log.Info("challenge validated",
		zap.String("challenge_id", challenge.ID),
		zap.String("status", string(status)))
	return challenge, nil
}

// validateSolution runs the reference solution through the same runner used
// for grading; only an Accepted verdict publishes the challenge.
func (s *ChallengeService) validateSolution(ctx context.Context, ch *model.Challenge) (model.ChallengeStatus, error) {
	_, res, err := s.evaluator.Evaluate(ctx, ch, *ch.SolutionCode, ch.Language, TestCases(ch.TestCases))
	if err != nil {
		return "", fmt.Errorf("validate solution: %w", err)
	}
	if res.Verdict == model.VerdictAccepted {
		return model.StatusPublished, nil
	}
	return model.StatusRejected, nil
}

// GetChallenge returns a challenge by slug. Non-admins never see the
// reference solution or the hidden test cases; unpublished challenges are
// not found for them at all.
func (s *ChallengeService) GetChallenge(ctx context.Context, challengeSlug, userRole string) (*model.Challenge, error) {
	challenge, err := s.challengeRepo.FindBySlug(ctx, challengeSlug)
	if err != nil {
		return nil, err
	}
	if challenge.Status != model.StatusPublished && userRole != model.RoleAdmin {
		return nil, common.ErrNotFound
	}

	examples, err := s.challengeRepo.GetExamples(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	challenge.Examples = examples

	tags, err := s.challengeRepo.GetTags(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	challenge.Tags = tags

	if userRole == model.RoleAdmin {
		cases, err := s.challengeRepo.GetTestCases(ctx, challenge.ID)
		if err != nil {
			return nil, err
		}
		challenge.TestCases = cases
	} else {
		challenge.SolutionCode = nil
		challenge.TestCases = nil
	}
	return challenge, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, page, pageSize int, difficulty model.ChallengeDifficulty, tag, userRole string) ([]model.Challenge, int, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}

	statusFilter := model.StatusPublished
	if userRole == model.RoleAdmin {
		statusFilter = ""
	}
	return s.challengeRepo.ListChallenges(ctx, pageSize, offset, difficulty, tag, statusFilter)
}
