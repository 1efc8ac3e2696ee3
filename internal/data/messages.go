package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	chronological = bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}
	newestFirst   = bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// SaveMessage inserts a message document and returns the saved record.
func (m *MessagesStore) SaveMessage(ctx context.Context, msg *Message) (*Message, error) {
	if len(msg.From) == 0 || len(msg.To) == 0 {
		return nil, fmt.Errorf("message must carry sender and recipient")
	}

	saved := *msg
	saved.ID = bson.ObjectID{}

	result, err := m.coll.InsertOne(ctx, &saved)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	saved.ID = result.InsertedID.(bson.ObjectID)
	return &saved, nil
}

// FindSentBy returns messages the user sent, oldest first.
func (m *MessagesStore) FindSentBy(ctx context.Context, userID bson.ObjectID) ([]*Message, error) {
	return m.find(ctx, bson.M{"from._id": userID})
}

// FindReceivedBy returns messages the user received, oldest first.
func (m *MessagesStore) FindReceivedBy(ctx context.Context, userID bson.ObjectID) ([]*Message, error) {
	return m.find(ctx, bson.M{"to._id": userID})
}

// Conversation returns every message between the two users in both
// directions, oldest first.
func (m *MessagesStore) Conversation(ctx context.Context, a, b bson.ObjectID) ([]*Message, error) {
	return m.find(ctx, between(a, b))
}

// LastBetween returns the most recent message between two users.
func (m *MessagesStore) LastBetween(ctx context.Context, a, b bson.ObjectID) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, between(a, b), options.FindOne().SetSort(newestFirst)).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (m *MessagesStore) find(ctx context.Context, filter bson.M) ([]*Message, error) {
	cursor, err := m.coll.Find(ctx, filter, options.Find().SetSort(chronological))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []*Message{}
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func between(a, b bson.ObjectID) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"from._id": a, "to._id": b},
			bson.M{"from._id": b, "to._id": a},
		},
	}
}
