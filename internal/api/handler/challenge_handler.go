package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"codequest/internal/api/middleware"
	"codequest/internal/app/service"
	"codequest/internal/common"
	"codequest/internal/domain/model"
)

type ChallengeHandler struct {
	challengeService *service.ChallengeService
}

func NewChallengeHandler(cs *service.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: cs}
}

func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listChallenges)              // GET /api/v1/challenges
	r.Get("/{challengeSlug}", h.getChallenge) // GET /api/v1/challenges/two-sum

	r.Group(func(adminRouter chi.Router) {
		adminRouter.Use(middleware.Authenticator)
		adminRouter.Use(middleware.AdminOnly)
		adminRouter.Post("/", h.createChallenge) // POST /api/v1/challenges
	})
}

func (h *ChallengeHandler) createChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	var req service.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	challenge, err := h.challengeService.CreateChallenge(r.Context(), userID, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, challenge)
}

func (h *ChallengeHandler) listChallenges(w http.ResponseWriter, r *http.Request) {
	pageStr := r.URL.Query().Get("page")
	pageSizeStr := r.URL.Query().Get("pageSize")
	difficultyStr := r.URL.Query().Get("difficulty")
	tag := r.URL.Query().Get("tag")

	page, _ := strconv.Atoi(pageStr)
	if page <= 0 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(pageSizeStr)

	// Role may be empty when this public route is hit unauthenticated.
	userRole, _ := middleware.GetUserRoleFromContext(r.Context())

	challenges, total, err := h.challengeService.ListChallenges(r.Context(), page, pageSize, model.ChallengeDifficulty(difficultyStr), tag, userRole)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	type PaginatedChallengesResponse struct {
		Challenges []model.Challenge `json:"challenges"`
		Total      int               `json:"total"`
		Page       int               `json:"page"`
		PageSize   int               `json:"page_size"`
	}
	common.RespondWithJSON(w, http.StatusOK, PaginatedChallengesResponse{
		Challenges: challenges,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
	})
}

func (h *ChallengeHandler) getChallenge(w http.ResponseWriter, r *http.Request) {
	challengeSlug := chi.URLParam(r, "challengeSlug")
	userRole, _ := middleware.GetUserRoleFromContext(r.Context())

	challenge, err := h.challengeService.GetChallenge(r.Context(), challengeSlug, userRole)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, challenge)
}
