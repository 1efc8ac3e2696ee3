package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/pairchat/internal/auth"
	"github.com/PaulBabatuyi/pairchat/internal/chat"
	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/media"
	"github.com/PaulBabatuyi/pairchat/internal/middleware"
	"github.com/PaulBabatuyi/pairchat/internal/relay"
	"github.com/PaulBabatuyi/pairchat/internal/testutil"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type fakeBackend struct {
	keys []string
}

func (f *fakeBackend) Put(_ context.Context, key, _ string, r io.Reader, _ int64) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	f.keys = append(f.keys, key)
	return "https://cdn.test/" + key, nil
}

type fakeGoogle struct {
	profile *auth.GoogleProfile
	err     error
}

func (f *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.test/consent?state=" + state
}

func (f *fakeGoogle) Authenticate(_ context.Context, _ string) (*auth.GoogleProfile, error) {
	return f.profile, f.err
}

type fixture struct {
	t        *testing.T
	srv      *Server
	router   *gin.Engine
	users    *testutil.Users
	msgs     *testutil.Messages
	notifier *testutil.Notifier
	presence *relay.Presence
	backend  *fakeBackend
	google   *fakeGoogle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testutil.MakeNoopLogger()
	f := &fixture{
		t:        t,
		users:    testutil.NewUsers(),
		msgs:     testutil.NewMessages(),
		notifier: &testutil.Notifier{},
		presence: relay.NewPresence(),
		backend:  &fakeBackend{},
		google:   &fakeGoogle{},
	}
	limiter := middleware.NewLimiterStore(1000, 1000, time.Hour)
	t.Cleanup(limiter.Stop)

	f.srv = &Server{
		users:    f.users,
		chat:     chat.NewService(f.users, f.msgs, f.notifier, f.presence, log),
		relay:    relay.New(relay.NewPusherClient("1", "app-key", "app-secret", "eu"), f.presence, log),
		presence: f.presence,
		media:    media.NewUploader(f.backend, 1<<20),
		google:   f.google,
		auth:     auth.NewJWTManager("test-secret", time.Hour),
		limiter:  limiter,
		opts: serverOptions{
			cookieName: "chat_session",
			clientURL:  "http://localhost:3000",
			maxUpload:  1 << 20,
		},
		logger: log,
	}
	f.router = f.srv.routes()
	return f
}

// user creates an account and returns it with a bearer token.
func (f *fixture) user(name, email string) (*data.User, string) {
	f.t.Helper()
	hashed, err := auth.HashPassword("password123")
	require.NoError(f.t, err)
	u := f.users.Add(data.User{Name: name, Email: email, Password: hashed})
	token, _, err := f.srv.auth.GenerateToken(u.ID, u.Email)
	require.NoError(f.t, err)
	return u, token
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.serve(req, token)
}

func (f *fixture) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func sessionCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignupThenLoginSuccess(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/signup", "", gin.H{"name": "  Alice   Liddell ", "email": "Alice@Example.com", "password": "wonderland"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[sessionResponse](t, w)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, "Alice Liddell", resp.User.Name)
	assert.NotEmpty(t, resp.Token)
	assert.NotContains(t, w.Body.String(), "password")

	cookie := sessionCookie(w, "chat_session")
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/login/success", nil)
	req.AddCookie(cookie)
	w = f.serve(req, "")
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[struct {
		User data.User `json:"user"`
	}](t, w)
	assert.Equal(t, resp.User.ID, me.User.ID)
	assert.Equal(t, "alice@example.com", me.User.Email)
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)
	f.user("Alice", "alice@example.com")

	tests := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"duplicate email", gin.H{"name": "A", "email": "ALICE@example.com", "password": "secret1"}, http.StatusConflict},
		{"bad email", gin.H{"name": "A", "email": "nope", "password": "secret1"}, http.StatusBadRequest},
		{"short password", gin.H{"name": "A", "email": "a@example.com", "password": "123"}, http.StatusBadRequest},
		{"missing name", gin.H{"email": "a@example.com", "password": "secret1"}, http.StatusBadRequest},
		{"blank name", gin.H{"name": "   ", "email": "a@example.com", "password": "secret1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/signup", "", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.user("Alice", "alice@example.com")

	w := f.do(http.MethodPost, "/login", "", gin.H{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, alice.ID, decode[sessionResponse](t, w).User.ID)

	w = f.do(http.MethodPost, "/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(http.MethodPost, "/login", "", gin.H{"email": "ghost@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, w.Body.String())
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	f.srv.limiter = middleware.NewLimiterStore(1, 1, time.Hour)
	t.Cleanup(f.srv.limiter.Stop)
	f.router = f.srv.routes()

	body := gin.H{"email": "ghost@example.com", "password": "x"}
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/login", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/login", "", body).Code)
}

func newLoginRequest(t *testing.T, email, remoteAddr, forwardedFor string) *http.Request {
	t.Helper()
	raw, err := json.Marshal(gin.H{"email": email, "password": "x"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return req
}

func TestLoginRateLimitIgnoresForwardedFor(t *testing.T) {
	f := newFixture(t)
	f.srv.limiter = middleware.NewLimiterStore(1, 1, time.Hour)
	t.Cleanup(f.srv.limiter.Stop)
	f.router = f.srv.routes()

	allowed := 0
	for i := 0; i < 20; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		req := newLoginRequest(t, email, "192.0.2.1:1234", fmt.Sprintf("10.0.0.%d", i))
		if f.serve(req, "").Code != http.StatusTooManyRequests {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestLoginRateLimitedPerAccount(t *testing.T) {
	f := newFixture(t)
	f.srv.limiter = middleware.NewLimiterStore(1, 1, time.Hour)
	t.Cleanup(f.srv.limiter.Stop)
	f.router = f.srv.routes()

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := newLoginRequest(t, "Ghost@Example.com", fmt.Sprintf("192.0.2.%d:1234", i+1), "")
		codes = append(codes, f.serve(req, "").Code)
	}
	assert.Equal(t, []int{
		http.StatusUnauthorized,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	f.presence.SetOnline(alice.ID.Hex())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "chat_session", Value: token})
	w := f.serve(req, "")
	require.Equal(t, http.StatusOK, w.Code)

	cookie := sessionCookie(w, "chat_session")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
	assert.False(t, f.presence.IsOnline(alice.ID.Hex()))
}

func TestLogoutWithBearerGoesOffline(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	f.presence.SetOnline(alice.ID.Hex())

	w := f.do(http.MethodPost, "/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.presence.IsOnline(alice.ID.Hex()))
}

func TestSessionRequired(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/login/success", "/getallusers", "/pusher/users/online"} {
		w := f.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestUsersAndProfile(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	w := f.do(http.MethodGet, "/getallusers", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]data.User](t, w), 2)

	w = f.do(http.MethodGet, "/profile/"+bob.ID.Hex(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bob", decode[data.User](t, w).Name)

	w = f.do(http.MethodGet, "/profile/"+bson.NewObjectID().Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodGet, "/profile/not-an-id", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bio := "Curiouser and curiouser"
	w = f.do(http.MethodPatch, "/editprofile/"+alice.ID.Hex(), token, gin.H{"bio": bio})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[data.User](t, w)
	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, "Alice", updated.Name)

	w = f.do(http.MethodPatch, "/editprofile/"+alice.ID.Hex(), token, gin.H{"bio": strings.Repeat("é", 101)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPatch, "/editprofile/"+alice.ID.Hex(), token, gin.H{"bio": strings.Repeat("é", 100)})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPatch, "/editprofile/"+bob.ID.Hex(), token, gin.H{"bio": "hacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMessageSentPublishesToRecipientChannel(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	w := f.do(http.MethodPost, "/messagesent", token, gin.H{"from": alice.ID.Hex(), "to": bob.ID.Hex(), "message": "hi"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	msg := decode[data.Message](t, w)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, alice.ID, msg.Sender().ID)
	assert.Equal(t, bob.ID, msg.Recipient().ID)

	stored := f.msgs.All()
	require.Len(t, stored, 1)
	assert.Equal(t, alice.ID, stored[0].From[0].ID)
	assert.Equal(t, bob.ID, stored[0].To[0].ID)

	var newMessage []testutil.Event
	for _, e := range f.notifier.Events() {
		if e.Event == chat.EventNewMessage {
			newMessage = append(newMessage, e)
		}
	}
	require.Len(t, newMessage, 1)
	assert.Equal(t, "private-user-"+bob.ID.Hex(), relay.ChannelName(newMessage[0].UserID))
}

func TestMessageSentRejections(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, bobToken := f.user("Bob", "bob@example.com")

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
	}{
		{"spoofed sender", bobToken, gin.H{"from": alice.ID.Hex(), "to": bob.ID.Hex(), "message": "hi"}, http.StatusForbidden},
		{"empty text", token, gin.H{"from": alice.ID.Hex(), "to": bob.ID.Hex(), "message": "   "}, http.StatusBadRequest},
		{"unknown recipient", token, gin.H{"from": alice.ID.Hex(), "to": bson.NewObjectID().Hex(), "message": "hi"}, http.StatusNotFound},
		{"self", token, gin.H{"from": alice.ID.Hex(), "to": alice.ID.Hex(), "message": "hi"}, http.StatusBadRequest},
		{"bad recipient id", token, gin.H{"from": alice.ID.Hex(), "to": "zzz", "message": "hi"}, http.StatusBadRequest},
		{"text and image", token, gin.H{"from": alice.ID.Hex(), "to": bob.ID.Hex(), "message": "hi", "image": "data:image/png;base64,AAAA"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/messagesent", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, f.msgs.All())
	assert.Empty(t, f.notifier.Events())
}

func TestMessageSentDataURIImage(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	w := f.do(http.MethodPost, "/messagesent", token, gin.H{"from": alice.ID.Hex(), "to": bob.ID.Hex(), "image": uri})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	msg := decode[data.Message](t, w)
	assert.Empty(t, msg.Text)
	assert.True(t, strings.HasPrefix(msg.Image, "https://cdn.test/chat_images/"))
	require.Len(t, f.backend.keys, 1)
}

func TestMessageSentImageRejectedBeforeUpload(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	w := f.do(http.MethodPost, "/messagesent", token, gin.H{"from": alice.ID.Hex(), "to": bson.NewObjectID().Hex(), "image": uri})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = f.do(http.MethodPost, "/messagesent", token, gin.H{"from": alice.ID.Hex(), "to": alice.ID.Hex(), "image": uri})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	assert.Empty(t, f.backend.keys)
	assert.Empty(t, f.msgs.All())
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestImageSent(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	body, ct := multipartBody(t, map[string]string{"from": alice.ID.Hex(), "to": bob.ID.Hex()}, pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/imagesent", body)
	req.Header.Set("Content-Type", ct)
	w := f.serve(req, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, decode[data.Message](t, w).Image, "/chat_images/")

	body, ct = multipartBody(t, map[string]string{"from": alice.ID.Hex(), "to": bob.ID.Hex()}, []byte("plain text"))
	req = httptest.NewRequest(http.MethodPost, "/imagesent", body)
	req.Header.Set("Content-Type", ct)
	w = f.serve(req, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, map[string]string{"from": alice.ID.Hex(), "to": bob.ID.Hex()}, nil)
	req = httptest.NewRequest(http.MethodPost, "/imagesent", body)
	req.Header.Set("Content-Type", ct)
	w = f.serve(req, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, f.backend.keys, 1)

	body, ct = multipartBody(t, map[string]string{"from": alice.ID.Hex(), "to": bson.NewObjectID().Hex()}, pngBytes)
	req = httptest.NewRequest(http.MethodPost, "/imagesent", body)
	req.Header.Set("Content-Type", ct)
	w = f.serve(req, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, f.backend.keys, 1, "unknown recipient must not upload")
}

func TestUploadProfilePic(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	body, ct := multipartBody(t, nil, pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/uploadprofilepic/"+alice.ID.Hex(), body)
	req.Header.Set("Content-Type", ct)
	w := f.serve(req, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(decode[data.User](t, w).Picture, "https://cdn.test/profile_pics/"))

	body, ct = multipartBody(t, nil, pngBytes)
	req = httptest.NewRequest(http.MethodPost, "/uploadprofilepic/"+bob.ID.Hex(), body)
	req.Header.Set("Content-Type", ct)
	w = f.serve(req, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMessageBoxTwoContacts(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, bobToken := f.user("Bob", "bob@example.com")
	carol, _ := f.user("Carol", "carol@example.com")

	send := func(tok string, from, to *data.User, text string) {
		w := f.do(http.MethodPost, "/messagesent", tok, gin.H{"from": from.ID.Hex(), "to": to.ID.Hex(), "message": text})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	send(token, alice, bob, "hi bob")
	send(token, alice, carol, "hi carol")
	send(bobToken, bob, alice, "hey alice")

	w := f.do(http.MethodGet, "/messagebox/"+alice.ID.Hex(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	contacts := decode[[]data.Contact](t, w)
	require.Len(t, contacts, 2)

	byID := map[bson.ObjectID]data.Contact{}
	for _, c := range contacts {
		require.NotNil(t, c.LastMsg)
		byID[c.ID] = c
	}
	assert.Equal(t, "hey alice", byID[bob.ID].LastMsg.Text)
	assert.Equal(t, "hi carol", byID[carol.ID].LastMsg.Text)

	w = f.do(http.MethodGet, "/messagebox/"+bob.ID.Hex(), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/messagebox/"+carol.ID.Hex(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMessagesFrom(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, bobToken := f.user("Bob", "bob@example.com")

	w := f.do(http.MethodPost, "/messagesent", token, gin.H{"from": alice.ID.Hex(), "to": bob.ID.Hex(), "message": "one"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/messagesfrom/"+bob.ID.Hex()+"_"+alice.ID.Hex(), bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]data.Message](t, w)
	require.Len(t, msgs, 1)
	assert.Equal(t, "one", msgs[0].Text)

	w = f.do(http.MethodGet, "/messagesfrom/"+alice.ID.Hex()+"_"+bob.ID.Hex(), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(http.MethodGet, "/messagesfrom/"+bob.ID.Hex(), bobToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/messagesfrom/"+alice.ID.Hex()+"_"+bson.NewObjectID().Hex(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func pusherAuthRequest(socketID, channel string) *http.Request {
	form := url.Values{"socket_id": {socketID}, "channel_name": {channel}}
	req := httptest.NewRequest(http.MethodPost, "/pusher/auth", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestPusherAuth(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	w := f.serve(pusherAuthRequest("1234.5678", relay.ChannelName(alice.ID.Hex())), token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]string](t, w)
	assert.True(t, strings.HasPrefix(resp["auth"], "app-key:"))
	assert.True(t, f.presence.IsOnline(alice.ID.Hex()))

	w = f.serve(pusherAuthRequest("1234.5678", relay.ChannelName(bob.ID.Hex())), token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, f.presence.IsOnline(bob.ID.Hex()))

	req := pusherAuthRequest("1234.5678", relay.ChannelName(alice.ID.Hex()))
	req.Header.Set("X-User-Id", bob.ID.Hex())
	w = f.serve(req, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.serve(pusherAuthRequest("", relay.ChannelName(alice.ID.Hex())), token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.serve(pusherAuthRequest("1234.5678", "presence-lobby"), token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresenceEndpoints(t *testing.T) {
	f := newFixture(t)
	alice, token := f.user("Alice", "alice@example.com")
	bob, _ := f.user("Bob", "bob@example.com")

	w := f.do(http.MethodPost, "/pusher/user/online", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/pusher/users/online", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{alice.ID.Hex()}, decode[map[string][]string](t, w)["users"])

	w = f.do(http.MethodPost, "/pusher/user/online?user_id="+bob.ID.Hex(), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/pusher/user/offline", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.presence.IsOnline(alice.ID.Hex()))
}

func TestGoogleLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/auth/google", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	state := sessionCookie(w, oauthStateCookie)
	require.NotNil(t, state)
	assert.Contains(t, w.Header().Get("Location"), "state="+state.Value)

	callback := func(stateParam string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+stateParam, nil)
		req.AddCookie(state)
		return f.serve(req, "")
	}

	assert.Equal(t, http.StatusBadRequest, callback("forged").Code)

	f.google.profile = &auth.GoogleProfile{ID: "g-1", Email: "Gina@Example.com", VerifiedEmail: true, Name: "Gina", Picture: "https://pic.test/g.png"}
	w = callback(state.Value)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Location"))
	require.NotNil(t, sessionCookie(w, "chat_session"))

	created, err := f.users.GetUserByGoogleID(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, "gina@example.com", created.Email)

	// A second login finds the same account.
	w = callback(state.Value)
	require.Equal(t, http.StatusFound, w.Code)
	users, _ := f.users.ListUsers(context.Background())
	assert.Len(t, users, 1)
}

func TestGoogleLoginLinksExistingAccount(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.user("Alice", "alice@example.com")
	state := &http.Cookie{Name: oauthStateCookie, Value: "s1"}

	callback := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=s1", nil)
		req.AddCookie(state)
		return f.serve(req, "")
	}

	f.google.profile = &auth.GoogleProfile{ID: "g-a", Email: "alice@example.com", VerifiedEmail: false}
	assert.Equal(t, http.StatusConflict, callback().Code)

	f.google.profile.VerifiedEmail = true
	require.Equal(t, http.StatusFound, callback().Code)
	linked, err := f.users.GetUserByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "g-a", linked.GoogleID)

	f.google.err = errors.New("exchange failed")
	assert.Equal(t, http.StatusUnauthorized, callback().Code)
}

func TestGoogleLoginDisabled(t *testing.T) {
	f := newFixture(t)
	f.srv.google = nil
	f.router = f.srv.routes()

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/auth/google", "", nil).Code)
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	f := newFixture(t)
	_, token := f.user("Alice", "alice@example.com")
	f.users.Err = errors.New("connection refused: mongo-0.internal:27017")

	w := f.do(http.MethodGet, "/getallusers", token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}
