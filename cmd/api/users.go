package main

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/normalize"
)

type editProfileRequest struct {
	Name *string `json:"name"`
	Bio  *string `json:"bio"`
}

func (s *Server) getAllUsers(c *gin.Context) {
	users, err := s.users.ListUsers(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if users == nil {
		users = []*data.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) getProfile(c *gin.Context) {
	id, err := parseID(c.Param("userid"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	user, err := s.users.GetUserByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) editProfile(c *gin.Context) {
	id, err := requireSelf(c, c.Param("userid"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req editProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	upd := data.ProfileUpdate{Bio: req.Bio}
	if req.Name != nil {
		name := normalize.Name(*req.Name)
		if name == "" {
			s.writeError(c, errEmptyName)
			return
		}
		upd.Name = &name
	}
	if req.Bio != nil && utf8.RuneCountInString(*req.Bio) > data.MaxBioLength {
		s.writeError(c, errBioTooLong)
		return
	}

	user, err := s.users.UpdateProfile(c.Request.Context(), id, upd)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) uploadProfilePic(c *gin.Context) {
	id, err := requireSelf(c, c.Param("userid"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	url, err := s.uploadFormImage(c, profilePicFolder)
	if err != nil {
		s.writeError(c, err)
		return
	}

	user, err := s.users.UpdatePicture(c.Request.Context(), id, url)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// uploadFormImage stores the multipart "image" field.
func (s *Server) uploadFormImage(c *gin.Context, folder string) (string, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	return s.media.Upload(c.Request.Context(), folder, file)
}
