// Package client is a Go client for the chat REST API. Users, contacts and
// profiles are read through a TTL cache and refreshed on miss.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PaulBabatuyi/pairchat/internal/cache"
	"github.com/PaulBabatuyi/pairchat/internal/data"
)

const (
	usersKey    = "users"
	contactsKey = "contacts"
)

var ErrNotAuthenticated = errors.New("client: not logged in")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Session is the response to signup and login.
type Session struct {
	User      data.User `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client talks to one API server on behalf of one user at a time.
type Client struct {
	baseURL string
	http    *http.Client

	users    *cache.Store[[]data.User]
	contacts *cache.Store[[]data.Contact]
	profiles *cache.Store[data.User]

	mu    sync.RWMutex
	token string
	user  *data.User
}

// Option configures a Client.
type Option func(*config)

type config struct {
	http     *http.Client
	backend  cache.Backend
	cacheOpt []cache.Option
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) { cfg.http = c }
}

// WithCacheBackend stores cached reads in b instead of process memory.
func WithCacheBackend(b cache.Backend) Option {
	return func(cfg *config) { cfg.backend = b }
}

// WithCacheOptions passes options to every cache store.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(cfg *config) { cfg.cacheOpt = append(cfg.cacheOpt, opts...) }
}

// New returns a Client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	cfg := config{http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.backend == nil {
		cfg.backend = cache.NewMemoryBackend()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     cfg.http,
		users:    cache.NewStore[[]data.User](cfg.backend, cfg.cacheOpt...),
		contacts: cache.NewStore[[]data.Contact](cfg.backend, cfg.cacheOpt...),
		profiles: cache.NewStore[data.User](cfg.backend, cfg.cacheOpt...),
	}
}

// CurrentUser returns the logged-in user, if any.
func (c *Client) CurrentUser() (data.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return data.User{}, false
	}
	return *c.user, true
}

func (c *Client) owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.ID.Hex()
}

// Signup creates an account and logs in as it.
func (c *Client) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	return c.startSession(ctx, "/signup", map[string]string{"name": name, "email": email, "password": password})
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.startSession(ctx, "/login", map[string]string{"email": email, "password": password})
}

func (c *Client) startSession(ctx context.Context, path string, body any) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, path, body, &s); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = s.Token
	c.user = &s.User
	c.mu.Unlock()
	return &s, nil
}

// Logout ends the session and drops the user's cached entries.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", nil, nil)
	_ = c.contacts.Invalidate(contactsKey)
	c.mu.Lock()
	c.token = ""
	c.user = nil
	c.mu.Unlock()
	return err
}

// Me returns the user bound to the current session.
func (c *Client) Me(ctx context.Context) (*data.User, error) {
	var resp struct {
		User data.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/login/success", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// AllUsers lists every user. The list is global and shared across logins.
func (c *Client) AllUsers(ctx context.Context) ([]data.User, error) {
	if users, ok := c.users.Get(usersKey, ""); ok {
		return users, nil
	}
	var users []data.User
	if err := c.do(ctx, http.MethodGet, "/getallusers", nil, &users); err != nil {
		return nil, err
	}
	if err := c.users.Set(usersKey, "", users); err != nil {
		return nil, err
	}
	return users, nil
}

// Profile returns one user's profile.
func (c *Client) Profile(ctx context.Context, userID string) (*data.User, error) {
	key := "profile:" + userID
	owner := c.owner()
	if owner != "" {
		if u, ok := c.profiles.Get(key, owner); ok {
			return &u, nil
		}
	}
	var u data.User
	if err := c.do(ctx, http.MethodGet, "/profile/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	// Untagged entries are global, so anonymous reads are never cached.
	if owner == "" {
		return &u, nil
	}
	if err := c.profiles.Set(key, owner, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Contacts returns the logged-in user's conversation partners.
func (c *Client) Contacts(ctx context.Context) ([]data.Contact, error) {
	owner := c.owner()
	if owner == "" {
		return nil, ErrNotAuthenticated
	}
	if contacts, ok := c.contacts.Get(contactsKey, owner); ok {
		return contacts, nil
	}
	var contacts []data.Contact
	if err := c.do(ctx, http.MethodGet, "/messagebox/"+owner, nil, &contacts); err != nil {
		return nil, err
	}
	if err := c.contacts.Set(contactsKey, owner, contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// InvalidateContacts forces the next Contacts call to hit the server.
func (c *Client) InvalidateContacts() error {
	return c.contacts.Invalidate(contactsKey)
}

// Conversation returns the messages between the logged-in user and peerID.
// Conversations are not cached.
func (c *Client) Conversation(ctx context.Context, peerID string) ([]data.Message, error) {
	owner := c.owner()
	if owner == "" {
		return nil, ErrNotAuthenticated
	}
	var msgs []data.Message
	path := "/messagesfrom/" + owner + "_" + url.PathEscape(peerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendText sends a text message to peerID.
func (c *Client) SendText(ctx context.Context, peerID, text string) (*data.Message, error) {
	owner := c.owner()
	if owner == "" {
		return nil, ErrNotAuthenticated
	}
	var msg data.Message
	body := map[string]string{"from": owner, "to": peerID, "message": text}
	if err := c.do(ctx, http.MethodPost, "/messagesent", body, &msg); err != nil {
		return nil, err
	}
	if err := c.InvalidateContacts(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
