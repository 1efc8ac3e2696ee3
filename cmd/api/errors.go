package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pairchat/internal/auth"
	"github.com/PaulBabatuyi/pairchat/internal/chat"
	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/media"
	"github.com/PaulBabatuyi/pairchat/internal/relay"
)

var (
	errBadRequest         = errors.New("invalid request body")
	errInvalidID          = errors.New("invalid user id")
	errInvalidCredentials = errors.New("invalid credentials")
	errForbidden          = errors.New("forbidden")
	errUnauthenticated    = errors.New("authentication required")
	errBioTooLong         = errors.New("bio must be at most 100 characters")
	errEmptyName          = errors.New("name must not be empty")
	errOAuthDisabled      = errors.New("google login is not configured")
	errOAuthState         = errors.New("invalid oauth state")
	errOAuthFailed        = errors.New("google login failed")
	errEmailUnverified    = errors.New("google account email is not verified")
	errRateLimited        = errors.New("rate limit exceeded")
)

// statusFor maps sentinel errors to HTTP status codes. The first match wins
// and its message is what the client sees.
var statusFor = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{errInvalidID, http.StatusBadRequest},
	{errBioTooLong, http.StatusBadRequest},
	{errEmptyName, http.StatusBadRequest},
	{errOAuthState, http.StatusBadRequest},
	{chat.ErrInvalidMessage, http.StatusBadRequest},
	{chat.ErrSelfMessage, http.StatusBadRequest},
	{media.ErrNotImage, http.StatusBadRequest},
	{media.ErrBadDataURI, http.StatusBadRequest},
	{relay.ErrInvalidChannel, http.StatusBadRequest},
	{relay.ErrMissingSocketID, http.StatusBadRequest},
	{media.ErrTooLarge, http.StatusRequestEntityTooLarge},
	{errInvalidCredentials, http.StatusUnauthorized},
	{errUnauthenticated, http.StatusUnauthorized},
	{errOAuthFailed, http.StatusUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized},
	{errForbidden, http.StatusForbidden},
	{relay.ErrChannelForbidden, http.StatusForbidden},
	{relay.ErrIdentityMismatch, http.StatusForbidden},
	{data.ErrUserNotFound, http.StatusNotFound},
	{data.ErrMessageNotFound, http.StatusNotFound},
	{errOAuthDisabled, http.StatusNotFound},
	{data.ErrUserExists, http.StatusConflict},
	{errEmailUnverified, http.StatusConflict},
	{errRateLimited, http.StatusTooManyRequests},
}

// writeError aborts the request with the status mapped from err. Unknown
// errors are logged and reported as a bare 500.
func (s *Server) writeError(c *gin.Context, err error) {
	for _, e := range statusFor {
		if errors.Is(err, e.err) {
			c.AbortWithStatusJSON(e.status, gin.H{"error": e.err.Error()})
			return
		}
	}
	s.logger.Error("request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
