// Package data provides DB models and stores.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/pairchat/internal/normalize"
)

// ProfileUpdate carries the editable profile fields; nil leaves a field as is.
type ProfileUpdate struct {
	Name *string
	Bio  *string
}

// UsersStore performs user DB operations.
type UsersStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll, now: time.Now}
}

// CreateUser inserts a new user document. Password must already be hashed.
func (u *UsersStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	now := u.now()
	created := *user
	created.ID = bson.ObjectID{}
	created.Email = normalize.Email(user.Email)
	created.CreatedAt = now
	created.UpdatedAt = now

	result, err := u.coll.InsertOne(ctx, &created)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created.ID = result.InsertedID.(bson.ObjectID)
	return &created, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return u.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	return u.findOne(ctx, bson.M{"_id": id})
}

// GetUserByGoogleID finds a user by their Google account id.
func (u *UsersStore) GetUserByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return u.findOne(ctx, bson.M{"google_id": googleID})
}

func (u *UsersStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every user ordered by name.
func (u *UsersStore) ListUsers(ctx context.Context) ([]*User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := u.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []*User{}
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the new document.
func (u *UsersStore) UpdateProfile(ctx context.Context, id bson.ObjectID, upd ProfileUpdate) (*User, error) {
	set := bson.M{"updated_at": u.now()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Bio != nil {
		set["bio"] = *upd.Bio
	}
	return u.update(ctx, id, set)
}

// UpdatePicture stores a new profile picture URL.
func (u *UsersStore) UpdatePicture(ctx context.Context, id bson.ObjectID, url string) (*User, error) {
	return u.update(ctx, id, bson.M{"picture": url, "updated_at": u.now()})
}

// LinkGoogleID attaches a Google account to an existing user, filling the
// picture only when the user has none.
func (u *UsersStore) LinkGoogleID(ctx context.Context, id bson.ObjectID, googleID, picture string) (*User, error) {
	user, err := u.update(ctx, id, bson.M{"google_id": googleID, "updated_at": u.now()})
	if err != nil {
		return nil, err
	}
	if user.Picture == "" && picture != "" {
		return u.UpdatePicture(ctx, id, picture)
	}
	return user, nil
}

func (u *UsersStore) update(ctx context.Context, id bson.ObjectID, set bson.M) (*User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return &user, nil
}
