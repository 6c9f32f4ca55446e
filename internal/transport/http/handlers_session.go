package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"intellib/internal/session/models"
	dErrors "intellib/pkg/domain-errors"
	"intellib/pkg/platform/httputil"
)

//go:generate mockgen -source=handlers_session.go -destination=mocks/mocks.go -package=mocks

// SessionService is the session core as seen by the HTTP surface.
type SessionService interface {
	SignIn(ctx context.Context, credential string) (*models.Identity, error)
	Logout(ctx context.Context) bool
	Current() *models.Identity
	State() models.State
	LastReason() models.TeardownReason
	Liveness() models.LivenessState
}

// Navigator records where the shell has been sent.
type Navigator interface {
	Navigate(path string)
	Location() string
}

// Handler serves the login entry point, logout, the session view and the
// shell pages.
type Handler struct {
	session   SessionService
	nav       Navigator
	logger    *slog.Logger
	loginPath string
	homePath  string
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithLoginPath sets where unauthenticated requests are redirected.
func WithLoginPath(path string) Option {
	return func(h *Handler) {
		if path != "" {
			h.loginPath = path
		}
	}
}

func NewHandler(session SessionService, nav Navigator, opts ...Option) *Handler {
	h := &Handler{
		session:   session,
		nav:       nav,
		logger:    slog.Default(),
		loginPath: "/login",
		homePath:  "/user-dashboard",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type loginRequest struct {
	Credential string `json:"credential"`
}

type userResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

type loginResponse struct {
	User     userResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

type loginPageResponse struct {
	Page    string `json:"page"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type livenessResponse struct {
	Reachable bool       `json:"reachable"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	State         string           `json:"state"`
	User          *userResponse    `json:"user,omitempty"`
	Liveness      livenessResponse `json:"liveness"`
	LastReason    string           `json:"last_reason,omitempty"`
}

func toUserResponse(ident *models.Identity) *userResponse {
	if ident == nil {
		return nil
	}
	return &userResponse{UID: ident.ID, Email: ident.Email, DisplayName: ident.DisplayName}
}

// handleLoginPage shows the login entry point with the reason the last
// session ended. A signed-in user is sent to the dashboard instead.
func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.session.Current() != nil {
		h.redirect(w, r, h.homePath)
		return
	}
	resp := loginPageResponse{Page: "login"}
	if reason := h.session.LastReason(); reason != "" {
		resp.Reason = reason.String()
		resp.Message = reason.Message()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Credential) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "credential is required"))
		return
	}

	ident, err := h.session.SignIn(r.Context(), req.Credential)
	if err != nil {
		h.logger.WarnContext(r.Context(), "sign in failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.nav.Navigate(h.homePath)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		User:     *toUserResponse(ident),
		Redirect: h.homePath,
	})
}

// handleLogout always ends at the login entry point, whether or not this
// request performed the teardown.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !h.session.Logout(r.Context()) {
		h.logger.DebugContext(r.Context(), "logout collapsed into an earlier teardown")
	}
	http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ident := h.session.Current()
	live := h.session.Liveness()

	resp := sessionResponse{
		Authenticated: ident != nil,
		State:         h.session.State().String(),
		User:          toUserResponse(ident),
		Liveness:      livenessResponse{Reachable: live.Reachable},
		LastReason:    h.session.LastReason().String(),
	}
	if !live.CheckedAt.IsZero() {
		checked := live.CheckedAt
		resp.Liveness.CheckedAt = &checked
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path string) {
	h.nav.Navigate(path)
	http.Redirect(w, r, path, http.StatusSeeOther)
}
