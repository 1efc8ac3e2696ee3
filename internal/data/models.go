package data

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrMessageNotFound = errors.New("message not found")
)

// MaxBioLength is the longest bio a profile may carry.
const MaxBioLength = 100

// User maps to the users collection.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Email     string        `bson:"email" json:"email"`
	Name      string        `bson:"name" json:"name"`
	Password  string        `bson:"password,omitempty" json:"-"`
	GoogleID  string        `bson:"google_id,omitempty" json:"googleId,omitempty"`
	Picture   string        `bson:"picture,omitempty" json:"picture,omitempty"`
	Bio       string        `bson:"bio,omitempty" json:"bio,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// Snapshot freezes the user's display fields for embedding in a message.
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{ID: u.ID, Email: u.Email, Name: u.Name, Picture: u.Picture}
}

// UserSnapshot is a copy of a User taken at send time. It is never updated
// after a later profile edit; only contact listings re-read the live User.
type UserSnapshot struct {
	ID      bson.ObjectID `bson:"_id" json:"_id"`
	Email   string        `bson:"email" json:"email"`
	Name    string        `bson:"name" json:"name"`
	Picture string        `bson:"picture,omitempty" json:"picture,omitempty"`
}

// Message maps to the messages collection. From and To are one-element
// lists; Date is epoch milliseconds.
type Message struct {
	ID    bson.ObjectID  `bson:"_id,omitempty" json:"_id"`
	From  []UserSnapshot `bson:"from" json:"from"`
	To    []UserSnapshot `bson:"to" json:"to"`
	Text  string         `bson:"message,omitempty" json:"message,omitempty"`
	Image string         `bson:"image,omitempty" json:"image,omitempty"`
	Date  int64          `bson:"date" json:"date"`
}

// Sender returns the sender snapshot, or the zero snapshot if absent.
func (m *Message) Sender() UserSnapshot {
	if len(m.From) == 0 {
		return UserSnapshot{}
	}
	return m.From[0]
}

// Recipient returns the recipient snapshot, or the zero snapshot if absent.
func (m *Message) Recipient() UserSnapshot {
	if len(m.To) == 0 {
		return UserSnapshot{}
	}
	return m.To[0]
}

// Before orders messages by Date, breaking ties by ObjectID.
func (m *Message) Before(o *Message) bool {
	if m.Date != o.Date {
		return m.Date < o.Date
	}
	return m.ID.Hex() < o.ID.Hex()
}

// Contact is a derived conversation partner with the latest message
// exchanged with them.
type Contact struct {
	UserSnapshot
	Bio     string   `json:"bio,omitempty"`
	LastMsg *Message `json:"lastMsg"`
}
