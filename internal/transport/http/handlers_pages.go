package httptransport

import (
	"net/http"

	"intellib/pkg/platform/httputil"
)

type pageResponse struct {
	Page string        `json:"page"`
	User *userResponse `json:"user,omitempty"`
}

// page renders a shell page placeholder. Page content is served by the
// front end; the shell only decides whether the page may be shown.
func (h *Handler) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.nav.Navigate(r.URL.Path)
		httputil.WriteJSON(w, http.StatusOK, pageResponse{
			Page: name,
			User: toUserResponse(h.session.Current()),
		})
	}
}

// RequireSession sends requests without a live identity to the login entry
// point.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.session.Current() == nil {
			h.logger.DebugContext(r.Context(), "no session, redirecting to login", "path", r.URL.Path)
			h.redirect(w, r, h.loginPath)
			return
		}
		next.ServeHTTP(w, r)
	})
}
