package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/pairchat/internal/chat"
	"github.com/PaulBabatuyi/pairchat/internal/data"
)

type sendRequest struct {
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Message string `json:"message"`
	Image   string `json:"image"`
}

// imageSendRequest holds the text fields of a multipart image send. The
// file itself is read with FormFile.
type imageSendRequest struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// messageBox lists the session user's contacts with their last message.
func (s *Server) messageBox(c *gin.Context) {
	id, err := requireSelf(c, c.Param("userid"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	contacts, err := s.chat.Contacts(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if contacts == nil {
		contacts = []*data.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

// messagesFrom returns the conversation named by "<self>_<peer>".
func (s *Server) messagesFrom(c *gin.Context) {
	selfRaw, peerRaw, ok := strings.Cut(c.Param("userid_messagingid"), "_")
	if !ok {
		s.writeError(c, errInvalidID)
		return
	}
	self, err := requireSelf(c, selfRaw)
	if err != nil {
		s.writeError(c, err)
		return
	}
	peer, err := parseID(peerRaw)
	if err != nil {
		s.writeError(c, err)
		return
	}

	msgs, err := s.chat.Conversation(c.Request.Context(), self, peer)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*data.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// messageSent sends a text message, or an image given as a data URI.
func (s *Server) messageSent(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	from, to, err := s.parties(c, req.From, req.To)
	if err != nil {
		s.writeError(c, err)
		return
	}

	in := chat.SendInput{From: from, To: to, Text: req.Message}
	if strings.TrimSpace(req.Image) != "" {
		if strings.TrimSpace(req.Message) != "" {
			s.writeError(c, chat.ErrInvalidMessage)
			return
		}
		if err := s.checkRecipient(c.Request.Context(), from, to); err != nil {
			s.writeError(c, err)
			return
		}
		url, err := s.media.UploadDataURI(c.Request.Context(), chatImagesFolder, req.Image)
		if err != nil {
			s.writeError(c, err)
			return
		}
		in.Image = url
	}

	s.send(c, in)
}

// imageSent sends the multipart "image" file as a message.
func (s *Server) imageSent(c *gin.Context) {
	var req imageSendRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	from, to, err := s.parties(c, req.From, req.To)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.checkRecipient(c.Request.Context(), from, to); err != nil {
		s.writeError(c, err)
		return
	}

	url, err := s.uploadFormImage(c, chatImagesFolder)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.send(c, chat.SendInput{From: from, To: to, Image: url})
}

// parties checks that the sender is the session user.
func (s *Server) parties(c *gin.Context, fromRaw, toRaw string) (bson.ObjectID, bson.ObjectID, error) {
	from, err := requireSelf(c, fromRaw)
	if err != nil {
		return bson.ObjectID{}, bson.ObjectID{}, err
	}
	to, err := parseID(toRaw)
	if err != nil {
		return bson.ObjectID{}, bson.ObjectID{}, err
	}
	return from, to, nil
}

// checkRecipient runs the recipient checks Send would make, so a rejected
// image send never reaches object storage.
func (s *Server) checkRecipient(ctx context.Context, from, to bson.ObjectID) error {
	if from == to {
		return chat.ErrSelfMessage
	}
	_, err := s.users.GetUserByID(ctx, to)
	return err
}

func (s *Server) send(c *gin.Context, in chat.SendInput) {
	msg, err := s.chat.Send(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
