package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/pairchat/internal/data"
	"github.com/PaulBabatuyi/pairchat/internal/normalize"
)

// Users is an in-memory stand-in for data.UsersStore.
type Users struct {
	mu    sync.Mutex
	order []bson.ObjectID
	byID  map[bson.ObjectID]*data.User

	// Err, when set, is returned by every read.
	Err error
}

func NewUsers() *Users {
	return &Users{byID: map[bson.ObjectID]*data.User{}}
}

// Add stores a copy of u with a fresh id and returns it.
func (s *Users) Add(u data.User) *data.User {
	created, err := s.CreateUser(context.Background(), &u)
	if err != nil {
		panic(err)
	}
	return created
}

// Delete removes a user, simulating a record that disappeared.
func (s *Users) Delete(id bson.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func (s *Users) CreateUser(_ context.Context, user *data.User) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalize.Email(user.Email)
	for _, u := range s.byID {
		if u.Email == email || (user.GoogleID != "" && u.GoogleID == user.GoogleID) {
			return nil, data.ErrUserExists
		}
	}

	created := *user
	created.ID = bson.NewObjectID()
	created.Email = email
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	s.byID[created.ID] = &created
	s.order = append(s.order, created.ID)

	out := created
	return &out, nil
}

func (s *Users) find(match func(*data.User) bool) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, id := range s.order {
		if u, ok := s.byID[id]; ok && match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, data.ErrUserNotFound
}

func (s *Users) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	return s.find(func(u *data.User) bool { return u.ID == id })
}

func (s *Users) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	email = normalize.Email(email)
	return s.find(func(u *data.User) bool { return u.Email == email })
}

func (s *Users) GetUserByGoogleID(_ context.Context, googleID string) (*data.User, error) {
	return s.find(func(u *data.User) bool { return u.GoogleID == googleID })
}

func (s *Users) ListUsers(_ context.Context) ([]*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	users := []*data.User{}
	for _, id := range s.order {
		if u, ok := s.byID[id]; ok {
			out := *u
			users = append(users, &out)
		}
	}
	return users, nil
}

func (s *Users) mutate(id bson.ObjectID, fn func(*data.User)) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	out := *u
	return &out, nil
}

func (s *Users) UpdateProfile(_ context.Context, id bson.ObjectID, upd data.ProfileUpdate) (*data.User, error) {
	return s.mutate(id, func(u *data.User) {
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Bio != nil {
			u.Bio = *upd.Bio
		}
	})
}

func (s *Users) UpdatePicture(_ context.Context, id bson.ObjectID, url string) (*data.User, error) {
	return s.mutate(id, func(u *data.User) { u.Picture = url })
}

func (s *Users) LinkGoogleID(_ context.Context, id bson.ObjectID, googleID, picture string) (*data.User, error) {
	return s.mutate(id, func(u *data.User) {
		u.GoogleID = googleID
		if u.Picture == "" {
			u.Picture = picture
		}
	})
}

// Messages is an in-memory stand-in for data.MessagesStore.
type Messages struct {
	mu   sync.Mutex
	msgs []*data.Message

	// Err, when set, is returned by every query.
	Err error
}

func NewMessages() *Messages {
	return &Messages{}
}

// All returns every stored message in insertion order.
func (s *Messages) All() []*data.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Messages) SaveMessage(_ context.Context, msg *data.Message) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	saved := *msg
	saved.ID = bson.NewObjectID()
	s.msgs = append(s.msgs, &saved)
	out := saved
	return &out, nil
}

func (s *Messages) filter(match func(*data.Message) bool) ([]*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []*data.Message{}
	for _, m := range s.msgs {
		if match(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func between(a, b bson.ObjectID) func(*data.Message) bool {
	return func(m *data.Message) bool {
		from, to := m.Sender().ID, m.Recipient().ID
		return (from == a && to == b) || (from == b && to == a)
	}
}

func (s *Messages) FindSentBy(_ context.Context, userID bson.ObjectID) ([]*data.Message, error) {
	return s.filter(func(m *data.Message) bool { return m.Sender().ID == userID })
}

func (s *Messages) FindReceivedBy(_ context.Context, userID bson.ObjectID) ([]*data.Message, error) {
	return s.filter(func(m *data.Message) bool { return m.Recipient().ID == userID })
}

func (s *Messages) Conversation(_ context.Context, a, b bson.ObjectID) ([]*data.Message, error) {
	return s.filter(between(a, b))
}

func (s *Messages) LastBetween(_ context.Context, a, b bson.ObjectID) (*data.Message, error) {
	msgs, err := s.filter(between(a, b))
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, data.ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}
