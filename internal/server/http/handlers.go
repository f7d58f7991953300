package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/errs"
	"github.com/holte-dev/safetyflash/internal/model"
	"github.com/holte-dev/safetyflash/internal/repository"
	"github.com/holte-dev/safetyflash/internal/service"
	"github.com/holte-dev/safetyflash/internal/workflow"
)

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", errs.ErrValidation)
	}
	return nil
}

func flashID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad flash id", errs.ErrValidation)
	}
	return id, nil
}

// --- auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	CSRFToken string       `json:"csrf_token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, u, err := s.auth.Login(r.Context(), req.Username, req.Password, remoteIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{
		Token:     tok.Token,
		CSRFToken: tok.CSRFToken,
		ExpiresAt: tok.ExpiresAt,
		User:      toUserResponse(u),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

// --- flashes ---

type draftRequest struct {
	Type                    string    `json:"type"`
	SiteID                  string    `json:"site_id"`
	Title                   string    `json:"title"`
	Summary                 string    `json:"summary"`
	Description             string    `json:"description"`
	RootCauses              string    `json:"root_causes"`
	Actions                 string    `json:"actions"`
	ImageRefs               []string  `json:"image_refs"`
	OccurredAt              time.Time `json:"occurred_at"`
	Language                string    `json:"language"`
	StandaloneInvestigation bool      `json:"standalone_investigation"`
}

func (r draftRequest) toInput() (workflow.DraftInput, error) {
	in := workflow.DraftInput{
		Type:                    model.FlashType(r.Type),
		Title:                   r.Title,
		Summary:                 r.Summary,
		Description:             r.Description,
		RootCauses:              r.RootCauses,
		Actions:                 r.Actions,
		ImageRefs:               r.ImageRefs,
		OccurredAt:              r.OccurredAt,
		Language:                r.Language,
		StandaloneInvestigation: r.StandaloneInvestigation,
	}
	if r.SiteID != "" {
		sid, err := uuid.FromString(r.SiteID)
		if err != nil {
			return in, fmt.Errorf("%w: bad site id", errs.ErrValidation)
		}
		in.SiteID = sid
	}
	return in, nil
}

func (s *Server) handleCreateFlash(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.flashes.CreateDraft(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFlashResponse(f))
}

func (s *Server) handleGetFlash(w http.ResponseWriter, r *http.Request) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.flashes.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFlashResponse(f))
}

func (s *Server) handleListFlashes(w http.ResponseWriter, r *http.Request) {
	filter := repository.ListFilter{
		IncludeArchived: r.URL.Query().Get("archived") == "true",
	}
	for _, raw := range r.URL.Query()["state"] {
		st, err := model.ParseFlashState(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.States = append(filter.States, st)
	}
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		sid, err := uuid.FromString(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad site id", errs.ErrValidation))
			return
		}
		filter.SiteID = &sid
	}
	rows, err := s.flashes.List(r.Context(), userFrom(r.Context()), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]flashResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toFlashResponse(&rows[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateFlash(w http.ResponseWriter, r *http.Request) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req draftRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.flashes.UpdateContent(r.Context(), userFrom(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFlashResponse(f))
}

// --- workflow transitions ---

type submitRequest struct {
	ApproverIDs []string `json:"approver_ids"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	approvers := make([]uuid.UUID, 0, len(req.ApproverIDs))
	for _, raw := range req.ApproverIDs {
		aid, err := uuid.FromString(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad approver id", errs.ErrValidation))
			return
		}
		approvers = append(approvers, aid)
	}
	f, err := s.flashes.SubmitForReview(r.Context(), userFrom(r.Context()), id, approvers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFlashResponse(f))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) (*model.Flash, error) {
		return s.flashes.ApproveAsSupervisor(r.Context(), userFrom(r.Context()), id)
	})
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.transition(w, r, func(id uuid.UUID) (*model.Flash, error) {
		return s.flashes.ReviewDecision(r.Context(), userFrom(r.Context()), id, model.Decision(req.Decision))
	})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) (*model.Flash, error) {
		return s.flashes.Publish(r.Context(), userFrom(r.Context()), id)
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) (*model.Flash, error) {
		return s.flashes.Archive(r.Context(), userFrom(r.Context()), id)
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID) (*model.Flash, error) {
		return s.flashes.Close(r.Context(), userFrom(r.Context()), id)
	})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID) (*model.Flash, error)) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := apply(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFlashResponse(f))
}

// --- translations ---

type translationRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleCreateTranslation(w http.ResponseWriter, r *http.Request) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req translationRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.flashes.CreateTranslation(r.Context(), userFrom(r.Context()), id, req.Language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFlashResponse(v))
}

// --- edit lock ---

type lockResponse struct {
	Acquired  bool       `json:"acquired"`
	HeldBy    string     `json:"held_by,omitempty"`
	HeldSince *time.Time `json:"held_since,omitempty"`
	HeldFor   string     `json:"held_for,omitempty"`
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.flashes.AcquireEditLock(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := lockResponse{Acquired: res.Acquired}
	if !res.Acquired {
		out.HeldBy = res.HeldBy.String()
		out.HeldSince = &res.HeldSince
		out.HeldFor = res.HeldFor.String()
	}
	// A held lock is advisory information, not an error: 409 tells the client
	// to warn, not to fail.
	status := http.StatusOK
	if !res.Acquired {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, out)
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id, err := flashID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.flashes.ReleaseEditLock(r.Context(), userFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

// --- user administration ---

type newUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	SiteID   string `json:"site_id"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req newUserRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := service.NewUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
	}
	if req.SiteID != "" {
		sid, err := uuid.FromString(req.SiteID)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: bad site id", errs.ErrValidation))
			return
		}
		in.SiteID = sid
	}
	u, err := s.users.Create(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toUserResponse(u))
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	uid, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: bad user id", errs.ErrValidation))
		return
	}
	var req changeRoleRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.users.ChangeRole(r.Context(), userFrom(r.Context()), uid, model.Role(req.Role)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	uid, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: bad user id", errs.ErrValidation))
		return
	}
	if err := s.users.Deactivate(r.Context(), userFrom(r.Context()), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}
