package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pairchat/internal/auth"
	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/middleware"
	"github.com/PaulBabatuyi/pairchat/internal/normalize"
)

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	User      *data.User `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// signup hashes the password, stores the user and starts a session.
func (s *Server) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	name := normalize.Name(req.Name)
	if name == "" {
		s.writeError(c, errEmptyName)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(c, fmt.Errorf("hash password: %w", err))
		return
	}

	user, err := s.users.CreateUser(c.Request.Context(), &data.User{
		Email:    req.Email,
		Name:     name,
		Password: hashed,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.startSession(c, http.StatusCreated, user)
}

// login checks the password and starts a session. Attempts are limited per
// account as well as per client IP.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if !s.limiter.Allow("email:" + normalize.Email(req.Email)) {
		s.writeError(c, errRateLimited)
		return
	}

	user, err := s.users.GetUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, data.ErrUserNotFound) {
		s.writeError(c, errInvalidCredentials)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		s.writeError(c, errInvalidCredentials)
		return
	}

	s.startSession(c, http.StatusOK, user)
}

func (s *Server) startSession(c *gin.Context, status int, user *data.User) {
	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.writeError(c, fmt.Errorf("generate token: %w", err))
		return
	}
	s.setCookie(c, s.opts.cookieName, token, int(s.auth.Duration().Seconds()))
	c.JSON(status, sessionResponse{User: user, Token: token, ExpiresAt: expiresAt})
}

func (s *Server) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", s.opts.secureCookie, true)
}

// logout clears the session cookie. A still-valid session is also marked
// offline.
func (s *Server) logout(c *gin.Context) {
	if token := middleware.Token(c, s.opts.cookieName); token != "" {
		if claims, err := s.auth.VerifyToken(token); err == nil {
			s.presence.SetOffline(claims.UserID)
		}
	}
	s.setCookie(c, s.opts.cookieName, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) loginSuccess(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	user, err := s.users.GetUserByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// googleLogin redirects to the Google consent page.
func (s *Server) googleLogin(c *gin.Context) {
	if s.google == nil {
		s.writeError(c, errOAuthDisabled)
		return
	}
	state := auth.NewState()
	s.setCookie(c, oauthStateCookie, state, 600)
	c.Redirect(http.StatusTemporaryRedirect, s.google.AuthCodeURL(state))
}

// googleCallback completes the Google flow. The account is found by Google
// id, then by verified email (linking the Google id), and created otherwise.
func (s *Server) googleCallback(c *gin.Context) {
	if s.google == nil {
		s.writeError(c, errOAuthDisabled)
		return
	}
	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		s.writeError(c, errOAuthState)
		return
	}
	s.setCookie(c, oauthStateCookie, "", -1)

	ctx := c.Request.Context()
	profile, err := s.google.Authenticate(ctx, c.Query("code"))
	if err != nil {
		s.logger.Warn("google authentication failed", "error", err)
		s.writeError(c, errOAuthFailed)
		return
	}

	user, err := s.googleUser(c, profile)
	if err != nil {
		s.writeError(c, err)
		return
	}

	token, _, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.writeError(c, fmt.Errorf("generate token: %w", err))
		return
	}
	s.setCookie(c, s.opts.cookieName, token, int(s.auth.Duration().Seconds()))
	c.Redirect(http.StatusFound, s.opts.clientURL)
}

func (s *Server) googleUser(c *gin.Context, profile *auth.GoogleProfile) (*data.User, error) {
	ctx := c.Request.Context()

	user, err := s.users.GetUserByGoogleID(ctx, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, data.ErrUserNotFound) {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		if !profile.VerifiedEmail {
			return nil, errEmailUnverified
		}
		return s.users.LinkGoogleID(ctx, existing.ID, profile.ID, profile.Picture)
	case !errors.Is(err, data.ErrUserNotFound):
		return nil, err
	}

	name := normalize.Name(profile.Name)
	if name == "" {
		name = normalize.Email(profile.Email)
	}
	return s.users.CreateUser(ctx, &data.User{
		Email:    profile.Email,
		Name:     name,
		GoogleID: profile.ID,
		Picture:  profile.Picture,
	})
}
