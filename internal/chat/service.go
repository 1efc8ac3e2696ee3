// Package chat implements the conversation core: the contact list
// aggregator and the persist-then-notify send path.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/logger"
)

// Relay event names.
const (
	EventNewMessage     = "new_message"
	EventUpdateContacts = "update_contacts"
)

var (
	ErrInvalidMessage = errors.New("message must have either text or an image")
	ErrSelfMessage    = errors.New("cannot send a message to yourself")
)

// UserGetter reads live user records.
type UserGetter interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
}

// MessageStore persists and queries messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *data.Message) (*data.Message, error)
	FindSentBy(ctx context.Context, userID bson.ObjectID) ([]*data.Message, error)
	FindReceivedBy(ctx context.Context, userID bson.ObjectID) ([]*data.Message, error)
	Conversation(ctx context.Context, a, b bson.ObjectID) ([]*data.Message, error)
	LastBetween(ctx context.Context, a, b bson.ObjectID) (*data.Message, error)
}

// Notifier pushes an event to every live session of a user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, event string, payload any) error
}

// PresenceChecker reports whether a user currently holds a live session.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// SendInput describes a message to send. Exactly one of Text or Image is set.
type SendInput struct {
	From  bson.ObjectID
	To    bson.ObjectID
	Text  string
	Image string
}

// ContactsUpdate is the update_contacts payload.
type ContactsUpdate struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
}

// Service wires stores and the relay together.
type Service struct {
	users    UserGetter
	msgs     MessageStore
	notifier Notifier
	presence PresenceChecker
	logger   *logger.Logger
	now      func() time.Time
}

// NewService returns a Service. presence may be nil.
func NewService(users UserGetter, msgs MessageStore, notifier Notifier, presence PresenceChecker, logger *logger.Logger) *Service {
	return &Service{
		users:    users,
		msgs:     msgs,
		notifier: notifier,
		presence: presence,
		logger:   logger,
		now:      time.Now,
	}
}

// Contacts returns the distinct users that userID has exchanged messages
// with, in first-seen order (sent-to partners, then received-from partners),
// each re-hydrated from the live User record and carrying the most recent
// message between the two.
func (s *Service) Contacts(ctx context.Context, userID bson.ObjectID) ([]*data.Contact, error) {
	sent, err := s.msgs.FindSentBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load sent messages: %w", err)
	}
	received, err := s.msgs.FindReceivedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load received messages: %w", err)
	}

	partners := make([]data.UserSnapshot, 0, len(sent)+len(received))
	for _, m := range sent {
		partners = append(partners, m.Recipient())
	}
	for _, m := range received {
		partners = append(partners, m.Sender())
	}

	seen := make(map[bson.ObjectID]struct{}, len(partners))
	contacts := make([]*data.Contact, 0, len(partners))
	for _, p := range partners {
		if p.ID.IsZero() || p.ID == userID {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		contact, err := s.contact(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}

	return contacts, nil
}

func (s *Service) contact(ctx context.Context, userID bson.ObjectID, snap data.UserSnapshot) (*data.Contact, error) {
	c := &data.Contact{UserSnapshot: snap}

	live, err := s.users.GetUserByID(ctx, snap.ID)
	switch {
	case err == nil:
		c.UserSnapshot = live.Snapshot()
		c.Bio = live.Bio
	case errors.Is(err, data.ErrUserNotFound):
		// Keep the frozen snapshot.
	default:
		return nil, fmt.Errorf("refresh contact %s: %w", snap.ID.Hex(), err)
	}

	last, err := s.msgs.LastBetween(ctx, userID, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("last message with %s: %w", snap.ID.Hex(), err)
	}
	c.LastMsg = last

	return c, nil
}

// Conversation returns all messages between a and b, oldest first.
func (s *Service) Conversation(ctx context.Context, a, b bson.ObjectID) ([]*data.Message, error) {
	msgs, err := s.msgs.Conversation(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return msgs, nil
}

// Send persists a message and then notifies both parties through the relay.
// The store write is authoritative; notification failures are logged and
// never returned.
func (s *Service) Send(ctx context.Context, in SendInput) (*data.Message, error) {
	text := strings.TrimSpace(in.Text)
	image := strings.TrimSpace(in.Image)
	if (text == "") == (image == "") {
		return nil, ErrInvalidMessage
	}
	if in.From == in.To {
		return nil, ErrSelfMessage
	}

	sender, err := s.users.GetUserByID(ctx, in.From)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	recipient, err := s.users.GetUserByID(ctx, in.To)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}

	saved, err := s.msgs.SaveMessage(ctx, &data.Message{
		From:  []data.UserSnapshot{sender.Snapshot()},
		To:    []data.UserSnapshot{recipient.Snapshot()},
		Text:  text,
		Image: image,
		Date:  s.now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.fanOut(ctx, saved)
	return saved, nil
}

func (s *Service) fanOut(ctx context.Context, msg *data.Message) {
	if s.notifier == nil {
		return
	}

	to := msg.Recipient().ID.Hex()
	from := msg.Sender().ID.Hex()
	if s.presence != nil && !s.presence.IsOnline(to) {
		s.logger.Debug("recipient offline, relay event may be dropped", "user_id", to)
	}

	s.notify(ctx, to, EventNewMessage, msg)
	s.notify(ctx, to, EventUpdateContacts, ContactsUpdate{UserID: from, MessageID: msg.ID.Hex()})
	s.notify(ctx, from, EventUpdateContacts, ContactsUpdate{UserID: to, MessageID: msg.ID.Hex()})
}

func (s *Service) notify(ctx context.Context, userID, event string, payload any) {
	if err := s.notifier.NotifyUser(ctx, userID, event, payload); err != nil {
		s.logger.Warn("relay publish failed", "user_id", userID, "event", event, "error", err)
	}
}
