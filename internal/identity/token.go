package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"intellib/internal/session/models"
	dErrors "intellib/pkg/domain-errors"
	"intellib/pkg/email"
	"intellib/pkg/platform/sentinel"
)

// Claims are the ID-token claims the shell relies on. The subject is the
// user's uid.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// TokenProvider signs users in from an ID token issued by the external
// identity service, registers them with the library backend, and publishes
// "no identity" once the token expires.
type TokenProvider struct {
	baseURL    string
	signingKey []byte
	issuer     string
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	current   *models.Identity
	expiry    *time.Timer
	observers observers
}

// TokenOption configures a TokenProvider.
type TokenOption func(*TokenProvider)

// WithHTTPClient overrides the client used to reach the backend.
func WithHTTPClient(c *http.Client) TokenOption {
	return func(p *TokenProvider) {
		p.client = c
	}
}

// WithIssuer requires tokens to carry the given issuer.
func WithIssuer(iss string) TokenOption {
	return func(p *TokenProvider) {
		p.issuer = iss
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) TokenOption {
	return func(p *TokenProvider) {
		p.logger = logger
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		p.now = now
	}
}

// NewTokenProvider builds a provider that verifies HS256 ID tokens with
// signingKey and registers sign-ins at baseURL.
func NewTokenProvider(baseURL string, signingKey []byte, opts ...TokenOption) *TokenProvider {
	p := &TokenProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: signingKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// SignInWithPopup verifies credential, registers the user with the backend
// and publishes the identity.
func (p *TokenProvider) SignInWithPopup(ctx context.Context, credential string) (*models.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential is required")
	}

	ident, err := p.parse(credential)
	if err != nil {
		return nil, err
	}
	if err := p.register(ctx, ident); err != nil {
		return nil, err
	}

	p.publish(ident)
	p.logger.InfoContext(ctx, "signed in", "user_id", ident.ID)
	return ident.Clone(), nil
}

// SignOut drops the local credential. The identity service keeps no server
// session for ID tokens, so this only fails on a cancelled context.
func (p *TokenProvider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSignOutFailed, err)
	}
	p.publish(nil)
	return nil
}

// OnAuthStateChanged registers observer and replays the current identity.
func (p *TokenProvider) OnAuthStateChanged(observer Observer) func() {
	id, unsubscribe := p.observers.add(observer)
	p.mu.Lock()
	current := p.current.Clone()
	p.mu.Unlock()
	if p.observers.active(id) {
		observer(current)
	}
	return unsubscribe
}

func (p *TokenProvider) parse(credential string) (*models.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return p.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}

	name := claims.Name
	if name == "" && claims.Email != "" {
		name = email.DisplayName(claims.Email)
	}
	return &models.Identity{
		ID:          claims.Subject,
		DisplayName: name,
		Email:       claims.Email,
		Token:       credential,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

type loginUser struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type loginRequest struct {
	User loginUser `json:"user"`
}

type loginResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (p *TokenProvider) register(ctx context.Context, ident *models.Identity) error {
	body, err := json.Marshal(loginRequest{User: loginUser{
		UID:         ident.ID,
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
	}})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build login request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ident.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "library backend is unreachable")
	}
	defer resp.Body.Close()

	var decoded loginResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := decoded.Error
		if msg == "" {
			msg = fmt.Sprintf("login rejected with status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return dErrors.New(dErrors.CodeUnauthorized, msg)
		}
		return dErrors.New(dErrors.CodeUnavailable, msg)
	}

	if decoded.Name != "" && ident.DisplayName == "" {
		ident.DisplayName = decoded.Name
	}
	return nil
}

func (p *TokenProvider) publish(ident *models.Identity) {
	p.mu.Lock()
	if models.SameIdentity(p.current, ident) {
		p.mu.Unlock()
		return
	}
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	p.current = ident.Clone()
	if ident != nil && !ident.ExpiresAt.IsZero() {
		token := ident.Token
		p.expiry = time.AfterFunc(ident.ExpiresAt.Sub(p.now()), func() {
			p.expire(token)
		})
	}
	p.mu.Unlock()
	p.observers.notify(ident)
}

func (p *TokenProvider) expire(token string) {
	p.mu.Lock()
	if p.current == nil || p.current.Token != token {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.expiry = nil
	p.mu.Unlock()

	p.logger.Info("identity token expired")
	p.observers.notify(nil)
}
