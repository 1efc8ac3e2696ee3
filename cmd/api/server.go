package main

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/pairchat/internal/auth"
	"github.com/PaulBabatuyi/pairchat/internal/chat"
	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/logger"
	"github.com/PaulBabatuyi/pairchat/internal/middleware"
)

const (
	oauthStateCookie = "oauth_state"
	chatImagesFolder = "chat_images"
	profilePicFolder = "profile_pics"
)

// UserStore is the subset of data.UsersStore the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, user *data.User) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*data.User, error)
	ListUsers(ctx context.Context) ([]*data.User, error)
	UpdateProfile(ctx context.Context, id bson.ObjectID, upd data.ProfileUpdate) (*data.User, error)
	UpdatePicture(ctx context.Context, id bson.ObjectID, url string) (*data.User, error)
	LinkGoogleID(ctx context.Context, id bson.ObjectID, googleID, picture string) (*data.User, error)
}

// ChannelAuthorizer signs relay channel subscriptions.
type ChannelAuthorizer interface {
	Authorize(identity string, params []byte) ([]byte, error)
}

// PresenceTracker records which users hold a live relay subscription.
type PresenceTracker interface {
	SetOnline(userID string)
	SetOffline(userID string)
	Online() []string
}

// ImageUploader stores images and returns their public URL.
type ImageUploader interface {
	Upload(ctx context.Context, folder string, r io.Reader) (string, error)
	UploadDataURI(ctx context.Context, folder, uri string) (string, error)
}

// OAuthStrategy runs a third-party login flow.
type OAuthStrategy interface {
	AuthCodeURL(state string) string
	Authenticate(ctx context.Context, code string) (*auth.GoogleProfile, error)
}

// serverOptions holds HTTP-level settings.
type serverOptions struct {
	cookieName     string
	secureCookie   bool
	clientURL      string
	maxUpload      int64
	trustedProxies []string
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	users    UserStore
	chat     *chat.Service
	relay    ChannelAuthorizer
	presence PresenceTracker
	media    ImageUploader
	google   OAuthStrategy
	auth     *auth.JWTManager
	limiter  *middleware.LimiterStore
	opts     serverOptions
	logger   *logger.Logger
}

// routes builds the gin engine. Signup and login are rate limited; every
// other data route requires a session.
func (s *Server) routes() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.opts.trustedProxies); err != nil {
		s.logger.Warn("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), middleware.RequestLogger(s.logger))
	r.MaxMultipartMemory = s.opts.maxUpload

	limited := middleware.RateLimit(s.limiter)
	r.POST("/signup", limited, s.signup)
	r.POST("/login", limited, s.login)
	r.POST("/logout", s.logout)
	r.GET("/auth/google", s.googleLogin)
	r.GET("/auth/google/callback", s.googleCallback)

	authed := r.Group("/", middleware.Session(s.auth, s.opts.cookieName))
	authed.GET("/login/success", s.loginSuccess)
	authed.GET("/getallusers", s.getAllUsers)
	authed.GET("/profile/:userid", s.getProfile)
	authed.PATCH("/editprofile/:userid", s.editProfile)
	authed.POST("/uploadprofilepic/:userid", s.uploadProfilePic)
	authed.GET("/messagebox/:userid", s.messageBox)
	authed.GET("/messagesfrom/:userid_messagingid", s.messagesFrom)
	authed.POST("/messagesent", s.messageSent)
	authed.POST("/imagesent", s.imageSent)
	authed.POST("/pusher/auth", s.pusherAuth)
	authed.POST("/pusher/user/online", s.userOnline)
	authed.POST("/pusher/user/offline", s.userOffline)
	authed.GET("/pusher/users/online", s.onlineUsers)

	return r
}

// sessionID returns the authenticated user's id.
func sessionID(c *gin.Context) (bson.ObjectID, error) {
	claims, ok := middleware.Claims(c)
	if !ok {
		return bson.ObjectID{}, errUnauthenticated
	}
	id, err := claims.ObjectID()
	if err != nil {
		return bson.ObjectID{}, errUnauthenticated
	}
	return id, nil
}

func parseID(raw string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.ObjectID{}, errInvalidID
	}
	return id, nil
}

// requireSelf parses raw and checks it names the session user.
func requireSelf(c *gin.Context, raw string) (bson.ObjectID, error) {
	self, err := sessionID(c)
	if err != nil {
		return bson.ObjectID{}, err
	}
	id, err := parseID(raw)
	if err != nil {
		return bson.ObjectID{}, err
	}
	if id != self {
		return bson.ObjectID{}, errForbidden
	}
	return id, nil
}
