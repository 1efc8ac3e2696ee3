// Package relay publishes user events through the hosted Pusher Channels
// service, authorizes private channel subscriptions and tracks presence.
package relay

import (
	"errors"
	"strings"
)

const privateUserPrefix = "private-user-"

var (
	ErrInvalidChannel   = errors.New("invalid channel name")
	ErrChannelForbidden = errors.New("channel does not belong to the requesting user")
	ErrMissingSocketID  = errors.New("socket_id is required")
	ErrIdentityMismatch = errors.New("supplied identity does not match the session")
)

// ChannelName returns the private channel that carries a user's events.
func ChannelName(userID string) string {
	return privateUserPrefix + userID
}

// ParseChannel returns the user id embedded in a private user channel name.
func ParseChannel(name string) (string, error) {
	userID, ok := strings.CutPrefix(name, privateUserPrefix)
	if !ok || userID == "" || strings.ContainsAny(userID, " \t\n;,") {
		return "", ErrInvalidChannel
	}
	return userID, nil
}
