package handler

import (
	"net/http"

	"codequest/internal/common"
	"codequest/internal/domain/model"
)

type languagesResponse struct {
	Languages []model.Language `json:"languages"`
}

// ListLanguages serves the closed set of submission languages so clients can
// build their editor pickers without hardcoding slugs.
func ListLanguages(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, languagesResponse{Languages: model.Languages()})
}
