package httptransport

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"intellib/internal/navigation"
	"intellib/internal/platform/logger"
	"intellib/internal/session/models"
	"intellib/internal/transport/http/mocks"
	dErrors "intellib/pkg/domain-errors"
	"intellib/pkg/testutil"
)

var alice = &models.Identity{
	ID:          "uid-alice",
	DisplayName: "alice",
	Email:       "alice@example.com",
	Token:       "tok-alice",
}

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	session *mocks.MockSessionService
	history *navigation.History
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.session = mocks.NewMockSessionService(s.ctrl)
	s.history = navigation.NewHistory("/", 0)
	h := NewHandler(s.session, s.history, WithLogger(logger.Discard()))
	s.router = NewRouter(h, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	}))
}

func (s *HandlerSuite) TestLoginPage() {
	s.Run("shows why the last session ended", func() {
		s.session.EXPECT().Current().Return(nil)
		s.session.EXPECT().LastReason().Return(models.ReasonLivenessFailure)

		rr := testutil.Get(s.router, "/login")

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.DecodeJSON[loginPageResponse](s.T(), rr)
		s.Equal("login", body.Page)
		s.Equal("liveness_failure", body.Reason)
		s.Equal(models.ReasonLivenessFailure.Message(), body.Message)
	})

	s.Run("first visit has no reason", func() {
		s.session.EXPECT().Current().Return(nil)
		s.session.EXPECT().LastReason().Return(models.TeardownReason(""))

		rr := testutil.Get(s.router, "/login")

		body := testutil.DecodeJSON[map[string]any](s.T(), rr)
		s.Equal(map[string]any{"page": "login"}, body)
	})

	s.Run("signed-in user goes to the dashboard", func() {
		s.session.EXPECT().Current().Return(alice)

		rr := testutil.Get(s.router, "/login")

		testutil.AssertRedirect(s.T(), rr, "/user-dashboard")
	})
}

func (s *HandlerSuite) TestLogin() {
	s.Run("signs in and points at the dashboard", func() {
		s.session.EXPECT().SignIn(gomock.Any(), "alice@example.com").Return(alice, nil)

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/login",
			loginRequest{Credential: "alice@example.com"}))

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.DecodeJSON[loginResponse](s.T(), rr)
		s.Equal("uid-alice", body.User.UID)
		s.Equal("/user-dashboard", body.Redirect)
		s.Equal("/user-dashboard", s.history.Location())
	})

	s.Run("missing credential is a bad request", func() {
		s.session.EXPECT().SignIn(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/login",
			loginRequest{Credential: "  "}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("malformed body is a bad request", func() {
		rr := testutil.Serve(s.router, testutil.NewRawRequest(http.MethodPost, "/login", "{bad-json"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("rejected credential is unauthorized", func() {
		s.session.EXPECT().SignIn(gomock.Any(), "forged").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid identity token"))

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/login",
			loginRequest{Credential: "forged"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	s.Run("unreachable backend is unavailable", func() {
		s.session.EXPECT().SignIn(gomock.Any(), "bob@example.com").
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "backend unavailable"))

		rr := testutil.Serve(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/login",
			loginRequest{Credential: "bob@example.com"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, string(dErrors.CodeUnavailable))
	})
}

func (s *HandlerSuite) TestLogoutAlwaysRedirectsToLogin() {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		for _, performed := range []bool{true, false} {
			s.session.EXPECT().Logout(gomock.Any()).Return(performed)

			rr := testutil.Serve(s.router, testutil.NewRawRequest(method, "/logout", ""))

			testutil.AssertRedirect(s.T(), rr, "/login")
		}
	}
}

func (s *HandlerSuite) TestSession() {
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s.Run("authenticated", func() {
		s.session.EXPECT().Current().Return(alice)
		s.session.EXPECT().Liveness().Return(models.LivenessState{Reachable: true, CheckedAt: checked})
		s.session.EXPECT().State().Return(models.StateAuthenticated)
		s.session.EXPECT().LastReason().Return(models.TeardownReason(""))

		rr := testutil.Get(s.router, "/api/session")

		s.Equal(http.StatusOK, rr.Code)
		body := testutil.DecodeJSON[sessionResponse](s.T(), rr)
		s.True(body.Authenticated)
		s.Equal(models.StateAuthenticated.String(), body.State)
		s.Require().NotNil(body.User)
		s.Equal("alice@example.com", body.User.Email)
		s.True(body.Liveness.Reachable)
		s.Require().NotNil(body.Liveness.CheckedAt)
		s.True(checked.Equal(*body.Liveness.CheckedAt))
	})

	s.Run("torn down", func() {
		s.session.EXPECT().Current().Return(nil)
		s.session.EXPECT().Liveness().Return(models.LivenessState{})
		s.session.EXPECT().State().Return(models.StateUnauthenticated)
		s.session.EXPECT().LastReason().Return(models.ReasonUserLogout)

		rr := testutil.Get(s.router, "/api/session")

		body := testutil.DecodeJSON[sessionResponse](s.T(), rr)
		s.False(body.Authenticated)
		s.Nil(body.User)
		s.Nil(body.Liveness.CheckedAt)
		s.Equal("user_logout", body.LastReason)
	})
}

func (s *HandlerSuite) TestGatedPages() {
	pages := []string{"/user-dashboard", "/cart", "/recommendations", "/transaction-history", "/admin-dashboard"}

	for _, path := range pages {
		s.Run("without session "+path, func() {
			s.session.EXPECT().Current().Return(nil)

			rr := testutil.Get(s.router, path)

			testutil.AssertRedirect(s.T(), rr, "/login")
			s.Equal("/login", s.history.Location())
		})

		s.Run("with session "+path, func() {
			s.session.EXPECT().Current().Return(alice).Times(2)

			rr := testutil.Get(s.router, path)

			s.Equal(http.StatusOK, rr.Code)
			body := testutil.DecodeJSON[pageResponse](s.T(), rr)
			s.Require().NotNil(body.User)
			s.Equal("uid-alice", body.User.UID)
			s.Equal(path, s.history.Location())
		})
	}
}

func TestPublicPagesNeedNoSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := mocks.NewMockSessionService(ctrl)
	nav := mocks.NewMockNavigator(ctrl)
	router := NewRouter(NewHandler(session, nav, WithLogger(logger.Discard())), nil)

	testutil.Given(t, "no signed-in user", func(t *testing.T) {
		for _, path := range []string{"/", "/search"} {
			session.EXPECT().Current().Return(nil)
			nav.EXPECT().Navigate(path)

			rr := testutil.Get(router, path)

			require.Equal(t, http.StatusOK, rr.Code)
			body := testutil.DecodeJSON[pageResponse](t, rr)
			assert.Nil(t, body.User)
		}
	})

	testutil.When(t, "probing the shell itself", func(t *testing.T) {
		rr := testutil.Get(router, "/healthz")
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = testutil.Get(router, "/metrics")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func (s *HandlerSuite) TestMetricsAndHealth() {
	rr := testutil.Get(s.router, "/metrics")
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "# metrics")

	rr = testutil.Get(s.router, "/healthz")
	s.Equal(http.StatusOK, rr.Code)
	body := testutil.DecodeJSON[map[string]string](s.T(), rr)
	s.Equal("ok", body["status"])
}

func TestCustomLoginPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := mocks.NewMockSessionService(ctrl)
	session.EXPECT().Logout(gomock.Any()).Return(true)
	session.EXPECT().Current().Return(nil)

	h := NewHandler(session, navigation.NewHistory("/", 0), WithLoginPath("/signin"), WithLogger(logger.Discard()))
	router := NewRouter(h, nil)

	testutil.AssertRedirect(t, testutil.Serve(router, testutil.NewRawRequest(http.MethodPost, "/logout", "")), "/signin")
	testutil.AssertRedirect(t, testutil.Get(router, "/cart"), "/signin")
}
