package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

// writeError maps domain sentinels to HTTP statuses. Unknown errors are
// logged and surfaced as a bare 500; their text never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, errs.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrPermissionDenied), errors.Is(err, errs.ErrCSRF):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, errs.ErrUnauthorized),
		errors.Is(err, errs.ErrSessionExpired),
		errors.Is(err, errs.ErrSessionRevoked):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, errs.ErrInvalidTransition),
		errors.Is(err, errs.ErrStateConflict),
		errors.Is(err, errs.ErrDuplicateTranslation),
		errors.Is(err, errs.ErrAlreadyExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, errs.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, "too many requests"
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

type flashResponse struct {
	ID                      string     `json:"id"`
	Type                    string     `json:"type"`
	State                   string     `json:"state"`
	CreatedBy               string     `json:"created_by"`
	SiteID                  string     `json:"site_id"`
	Title                   string     `json:"title"`
	Summary                 string     `json:"summary"`
	Description             string     `json:"description"`
	RootCauses              string     `json:"root_causes"`
	Actions                 string     `json:"actions"`
	ImageRefs               []string   `json:"image_refs"`
	OccurredAt              time.Time  `json:"occurred_at"`
	Language                string     `json:"language"`
	TranslationGroupID      *string    `json:"translation_group_id,omitempty"`
	SelectedApprovers       []string   `json:"selected_approvers,omitempty"`
	StandaloneInvestigation bool       `json:"standalone_investigation"`
	EditingUser             *string    `json:"editing_user,omitempty"`
	EditingStartedAt        *time.Time `json:"editing_started_at,omitempty"`
	IsArchived              bool       `json:"is_archived"`
	PublishedAt             *time.Time `json:"published_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func toFlashResponse(f *model.Flash) flashResponse {
	out := flashResponse{
		ID:                      f.ID.String(),
		Type:                    string(f.Type),
		State:                   string(f.State),
		CreatedBy:               f.CreatedBy.String(),
		SiteID:                  f.SiteID.String(),
		Title:                   f.Title,
		Summary:                 f.Summary,
		Description:             f.Description,
		RootCauses:              f.RootCauses,
		Actions:                 f.Actions,
		ImageRefs:               f.ImageRefs,
		OccurredAt:              f.OccurredAt,
		Language:                f.Language,
		StandaloneInvestigation: f.StandaloneInvestigation,
		EditingStartedAt:        f.EditingStartedAt,
		IsArchived:              f.IsArchived,
		PublishedAt:             f.PublishedAt,
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
	}
	if f.TranslationGroupID != nil {
		v := f.TranslationGroupID.String()
		out.TranslationGroupID = &v
	}
	if f.EditingUser != nil {
		v := f.EditingUser.String()
		out.EditingUser = &v
	}
	for _, a := range f.SelectedApprovers {
		out.SelectedApprovers = append(out.SelectedApprovers, a.String())
	}
	return out
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	SiteID   string `json:"site_id"`
	Active   bool   `json:"active"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Role:     string(u.Role),
		SiteID:   u.SiteID.String(),
		Active:   u.Active,
	}
}
