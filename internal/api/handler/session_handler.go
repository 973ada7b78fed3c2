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

// SessionHandler exposes the per-challenge attempt surface: run, submit,
// drafts, focus-loss reporting and cancellation, plus submission history
// and progress reads. Everything here requires an authenticated user.
type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(ss *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: ss}
}

// RegisterChallengeRoutes mounts the attempt endpoints under the
// slug-addressed challenge tree.
func (h *SessionHandler) RegisterChallengeRoutes(r chi.Router) {
	r.Route("/{challengeSlug}", func(cr chi.Router) {
		cr.Post("/run", h.run)
		cr.Post("/submit", h.submit)
		cr.Put("/draft", h.saveDraft)
		cr.Get("/draft", h.getDraft)
		cr.Post("/focus-loss", h.focusLoss)
	})
}

func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/submissions", func(sr chi.Router) {
		sr.Get("/", h.listSubmissions)
		sr.Get("/{submissionID}", h.getSubmission)
		sr.Post("/{submissionID}/cancel", h.cancel)
	})

	r.Get("/progress", h.listProgress)
}

func (h *SessionHandler) run(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	challengeSlug := chi.URLParam(r, "challengeSlug")

	var req service.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	resp, err := h.sessionService.Run(r.Context(), userID, challengeSlug, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	challengeSlug := chi.URLParam(r, "challengeSlug")

	var req service.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	sub, err := h.sessionService.Submit(r.Context(), userID, challengeSlug, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	// The caller sees their own submission; hidden case content stays hidden.
	userRole, _ := middleware.GetUserRoleFromContext(r.Context())
	if userRole != model.RoleAdmin {
		service.SanitizeCaseResults(sub.CaseResults)
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

type saveDraftRequest struct {
	Code     string         `json:"code"`
	Language model.Language `json:"language"`
}

func (h *SessionHandler) saveDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	challengeSlug := chi.URLParam(r, "challengeSlug")

	var req saveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.sessionService.SaveDraft(r.Context(), userID, challengeSlug, req.Language, req.Code); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *SessionHandler) getDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	challengeSlug := chi.URLParam(r, "challengeSlug")

	draft, err := h.sessionService.GetDraft(r.Context(), userID, challengeSlug)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, draft)
}

func (h *SessionHandler) focusLoss(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	challengeSlug := chi.URLParam(r, "challengeSlug")

	var req service.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	tests, err := h.sessionService.FocusLoss(r.Context(), userID, challengeSlug, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string][]string{"suggested_tests": tests})
}

func (h *SessionHandler) cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	submissionID := chi.URLParam(r, "submissionID")

	if err := h.sessionService.Cancel(r.Context(), userID, submissionID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (h *SessionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	userRole, _ := middleware.GetUserRoleFromContext(r.Context())
	submissionID := chi.URLParam(r, "submissionID")

	sub, err := h.sessionService.GetSubmission(r.Context(), userID, userRole, submissionID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

func (h *SessionHandler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	subs, total, err := h.sessionService.ListSubmissions(r.Context(), userID, page, pageSize)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	type PaginatedSubmissionsResponse struct {
		Submissions []model.Submission `json:"submissions"`
		Total       int                `json:"total"`
		Page        int                `json:"page"`
		PageSize    int                `json:"page_size"`
	}
	common.RespondWithJSON(w, http.StatusOK, PaginatedSubmissionsResponse{
		Submissions: subs,
		Total:       total,
		Page:        page,
		PageSize:    pageSize,
	})
}

func (h *SessionHandler) listProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	progress, err := h.sessionService.ListProgress(r.Context(), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}
