package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/auth"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/service"
)

const stateCookie = "oauth_state"

// Authenticator is what the auth handler needs from the service layer.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, loc *time.Location) (*service.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*service.AuthResult, error)
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser, loc *time.Location) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	TokenTTL() time.Duration
}

// OAuthProvider is the GitHub side of the login flow.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves sign-up, sign-in, the GitHub OAuth flow and the session
// accessor. Sessions are JWTs in an HttpOnly cookie; the token is also returned
// in the JSON body so non-browser clients can send it as a Bearer header.
type AuthHandler struct {
	auth         Authenticator
	github       OAuthProvider // nil when GitHub sign-in is not configured
	locator      Locator
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(
	authn Authenticator,
	github OAuthProvider,
	locator Locator,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         authn,
		github:       github,
		locator:      locator,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by sign-up and sign-in.
type SessionResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// HandleSignUp creates an email/password account and starts a session.
//
// HTTP: POST /auth/signup {"email": "...", "password": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.locator.Location(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.SignUp(r.Context(), req.Email, req.Password, loc)
	if err != nil {
		h.logAuthError(r, "sign-up failed", err)
		writeError(w, err)
		return
	}
	h.startSession(w, http.StatusCreated, result)
}

// HandleSignIn checks email and password and starts a session.
//
// HTTP: POST /auth/signin {"email": "...", "password": "..."}
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logAuthError(r, "sign-in failed", err)
		writeError(w, err)
		return
	}
	h.startSession(w, http.StatusOK, result)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state goes into a short-lived cookie and is checked on callback,
// so only callbacks this server started are accepted.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("sign-in provider", "github"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
//  1. check the state against the cookie
//  2. exchange the code for the GitHub user
//  3. upsert the account and issue a session cookie
//  4. redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("sign-in provider", "github"))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	loc, err := h.locator.Location(r)
	if err != nil {
		loc = h.locator.Default
	}
	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser, loc)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, apperror.AuthMessage(err), http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, result.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie. Tokens are stateless, so a copied
// token stays valid until it expires.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in account.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, result *service.AuthResult) {
	h.setSessionCookie(w, result.Token)
	writeJSON(w, status, SessionResponse{
		User:      result.User,
		Token:     result.Token,
		ExpiresAt: time.Now().Add(h.auth.TokenTTL()).UTC(),
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.TokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// logAuthError logs unexpected failures; rejected credentials are routine.
func (h *AuthHandler) logAuthError(r *http.Request, msg string, err error) {
	status, _ := statusFor(err)
	if status < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(r.Context(), msg, slog.String("error", err.Error()))
}
