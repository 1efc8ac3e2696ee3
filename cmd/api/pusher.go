package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pairchat/internal/relay"
)

const maxAuthBody = 4 << 10

// pusherAuth signs a private channel subscription for the session user.
// Clients may also name themselves through X-User-Id or a user_id field;
// that identity has to match the session.
func (s *Server) pusherAuth(c *gin.Context) {
	id, err := sessionID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuthBody))
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	identity := id.Hex()
	if err := checkClaimedIdentity(identity, c.GetHeader("X-User-Id"), form.Get("user_id"), c.Query("user_id")); err != nil {
		s.logger.Warn("channel authorization identity mismatch", "user_id", identity)
		s.writeError(c, err)
		return
	}

	resp, err := s.relay.Authorize(identity, body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

func checkClaimedIdentity(identity string, claimed ...string) error {
	for _, v := range claimed {
		if v != "" && v != identity {
			return relay.ErrIdentityMismatch
		}
	}
	return nil
}

func (s *Server) userOnline(c *gin.Context) {
	s.setPresence(c, true)
}

func (s *Server) userOffline(c *gin.Context) {
	s.setPresence(c, false)
}

func (s *Server) setPresence(c *gin.Context, online bool) {
	id, err := sessionID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	identity := id.Hex()
	if err := checkClaimedIdentity(identity, c.GetHeader("X-User-Id"), c.PostForm("user_id"), c.Query("user_id")); err != nil {
		s.writeError(c, err)
		return
	}
	if online {
		s.presence.SetOnline(identity)
	} else {
		s.presence.SetOffline(identity)
	}
	c.JSON(http.StatusOK, gin.H{"userId": identity, "online": online})
}

func (s *Server) onlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": s.presence.Online()})
}
