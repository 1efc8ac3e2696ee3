package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProfile is the subset of the Google userinfo document we keep.
type GoogleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleStrategy runs the authorization-code flow against Google.
type GoogleStrategy struct {
	cfg         *oauth2.Config
	userInfoURL string
}

// NewGoogleStrategy returns a strategy for the given OAuth client.
func NewGoogleStrategy(clientID, clientSecret, callbackURL string) *GoogleStrategy {
	return newGoogleStrategy(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "email", "profile"},
	}, googleUserInfoURL)
}

func newGoogleStrategy(cfg *oauth2.Config, userInfoURL string) *GoogleStrategy {
	return &GoogleStrategy{cfg: cfg, userInfoURL: userInfoURL}
}

// NewState returns a random value for the OAuth state parameter.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the consent page URL carrying state.
func (g *GoogleStrategy) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Authenticate exchanges an authorization code and fetches the user's profile.
func (g *GoogleStrategy) Authenticate(ctx context.Context, code string) (*GoogleProfile, error) {
	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to get user info: %s: %s", resp.Status, body)
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, fmt.Errorf("google profile is missing id or email")
	}

	return &profile, nil
}
