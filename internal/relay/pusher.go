package relay

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pusher/pusher-http-go/v5"

	"github.com/PaulBabatuyi/pairchat/internal/logger"
)

// pusherAPI is the subset of *pusher.Client the relay uses.
type pusherAPI interface {
	Trigger(channel string, eventName string, data interface{}) error
	AuthorizePrivateChannel(params []byte) ([]byte, error)
}

// Relay publishes events to per-user private channels.
type Relay struct {
	api      pusherAPI
	presence *Presence
	logger   *logger.Logger
}

// NewPusherClient builds a Pusher Channels client.
func NewPusherClient(appID, key, secret, cluster string) *pusher.Client {
	return &pusher.Client{
		AppID:   appID,
		Key:     key,
		Secret:  secret,
		Cluster: cluster,
		Secure:  true,
	}
}

// New returns a Relay backed by a Pusher client.
func New(client *pusher.Client, presence *Presence, logger *logger.Logger) *Relay {
	return newRelay(client, presence, logger)
}

func newRelay(api pusherAPI, presence *Presence, logger *logger.Logger) *Relay {
	return &Relay{api: api, presence: presence, logger: logger}
}

// NotifyUser triggers event on the user's private channel. Publishing to a
// channel with no subscriber succeeds; the hosted relay drops the event.
func (r *Relay) NotifyUser(_ context.Context, userID string, event string, payload any) error {
	channel := ChannelName(userID)
	if err := r.api.Trigger(channel, event, payload); err != nil {
		return fmt.Errorf("trigger %s on %s: %w", event, channel, err)
	}
	return nil
}

// Authorize signs a private channel subscription for identity. params is the
// form-encoded body sent by the Pusher client library (socket_id and
// channel_name). The subscription is refused unless the channel's user
// segment equals identity. On success the user is marked online.
func (r *Relay) Authorize(identity string, params []byte) ([]byte, error) {
	form, err := url.ParseQuery(string(params))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChannel, err)
	}
	if form.Get("socket_id") == "" {
		return nil, ErrMissingSocketID
	}

	owner, err := ParseChannel(form.Get("channel_name"))
	if err != nil {
		return nil, err
	}
	if identity == "" || owner != identity {
		r.logger.Warn("channel authorization refused", "identity", identity, "channel", form.Get("channel_name"))
		return nil, ErrChannelForbidden
	}

	resp, err := r.api.AuthorizePrivateChannel(params)
	if err != nil {
		return nil, fmt.Errorf("authorize channel: %w", err)
	}

	r.presence.SetOnline(identity)
	return resp, nil
}
