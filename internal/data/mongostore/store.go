package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// Store implements data.Store on one MongoDB database.
type Store struct {
	users    *mongo.Collection
	apiKeys  *mongo.Collection
	tokens   *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection

	// owned is set when Close should also disconnect the client.
	owned *Client
}

var _ data.Store = (*Store)(nil)

// Open connects to uri, ensures indexes on database dbName and returns a
// store that owns the connection.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	c, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, c.Database(dbName))
	if err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	s.owned = c
	log.Info().Str("database", dbName).Msg("mongo store opened")
	return s, nil
}

// New builds a store on an existing database handle. Close on the result
// leaves the underlying client connected.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	if err := CreateIndexes(ctx, db); err != nil {
		return nil, err
	}
	return &Store{
		users:    db.Collection(usersColl),
		apiKeys:  db.Collection(apiKeysColl),
		tokens:   db.Collection(pushTokensColl),
		messages: db.Collection(messagesColl),
		counters: db.Collection(countersColl),
	}, nil
}

// Close disconnects the client if the store opened it.
func (s *Store) Close(ctx context.Context) error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close(ctx)
}

type userDoc struct {
	UserID  string `bson:"_id"`
	Email   string `bson:"email"`
	Name    string `bson:"name"`
	Picture string `bson:"picture"`
}

func (d userDoc) user() *data.User {
	return &data.User{UserID: d.UserID, Email: d.Email, Name: d.Name, Picture: d.Picture}
}

// UpsertUser replaces every field of the profile except its id. The
// unique email index turns an address collision into ErrEmailTaken.
func (s *Store) UpsertUser(ctx context.Context, u data.User) error {
	if err := data.CheckUserID(u.UserID); err != nil {
		return errors.Wrapf(err, "mongoStore.UpsertUser: %q", u.UserID)
	}
	update := bson.M{"$set": bson.M{
		"email":   u.Email,
		"name":    u.Name,
		"picture": u.Picture,
	}}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": u.UserID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Wrap(data.ErrEmailTaken, "mongoStore.UpsertUser")
		}
		return errors.Wrap(err, "mongoStore.UpsertUser")
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M, op string) (*data.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, data.ErrNotFound
		}
		return nil, errors.Wrap(err, op)
	}
	return doc.user(), nil
}

// GetUser finds a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*data.User, error) {
	return s.findUser(ctx, bson.M{"_id": userID}, "mongoStore.GetUser")
}

// GetUserByEmail finds a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*data.User, error) {
	return s.findUser(ctx, bson.M{"email": email}, "mongoStore.GetUserByEmail")
}

type credentialDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (s *Store) putCredential(ctx context.Context, coll *mongo.Collection, doc credentialDoc, op string) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return errors.Wrap(err, op)
}

// PutAPIKey stores c.
func (s *Store) PutAPIKey(ctx context.Context, c data.Credential) error {
	return s.putCredential(ctx, s.apiKeys, credentialDoc{ID: c.Key, UserID: c.UserID, ExpiresAt: c.ExpiresAt}, "mongoStore.PutAPIKey")
}

// UserIDByAPIKey returns the owner of key when it is valid at now.
func (s *Store) UserIDByAPIKey(ctx context.Context, key string, now time.Time) (string, error) {
	var doc credentialDoc
	filter := bson.M{"_id": key, "expires_at": bson.M{"$gt": now}}
	if err := s.apiKeys.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", data.ErrNotFound
		}
		return "", errors.Wrap(err, "mongoStore.UserIDByAPIKey")
	}
	return doc.UserID, nil
}

// PutPushToken registers t; a token that changes hands moves with it.
func (s *Store) PutPushToken(ctx context.Context, t data.PushToken) error {
	return s.putCredential(ctx, s.tokens, credentialDoc{ID: t.Token, UserID: t.UserID, ExpiresAt: t.ExpiresAt}, "mongoStore.PutPushToken")
}

// PushTokens lists the tokens of userID valid at now.
func (s *Store) PushTokens(ctx context.Context, userID string, now time.Time) ([]string, error) {
	filter := bson.M{"user_id": userID, "expires_at": bson.M{"$gt": now}}
	cursor, err := s.tokens.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.PushTokens")
	}
	defer cursor.Close(ctx)

	var docs []credentialDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongoStore.PushTokens.decode")
	}
	tokens := make([]string, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.ID)
	}
	return tokens, nil
}

// SweepExpired deletes credentials that are no longer valid at now.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	filter := bson.M{"expires_at": bson.M{"$lte": now}}
	total := 0
	for _, coll := range []*mongo.Collection{s.apiKeys, s.tokens} {
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return total, errors.Wrapf(err, "mongoStore.SweepExpired.%s", coll.Name())
		}
		total += int(res.DeletedCount)
	}
	return total, nil
}
