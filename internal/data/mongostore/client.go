// Package mongostore is the MongoDB storage backend.
package mongostore

import (
	"context" // For connection timeout/cancellation
	"time"    // Duration for timeouts

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"  // MongoDB options
	"go.mongodb.org/mongo-driver/v2/mongo/readpref" // MongoDB read preference
)

// Collection names.
const (
	usersColl      = "users"
	apiKeysColl    = "api_keys"
	pushTokensColl = "messaging_tokens"
	messagesColl   = "messages"
	countersColl   = "counters"
)

// Client wraps mongo.Client. It is safe for concurrent use and should be
// shared by every store built on it.
type Client struct {
	client *mongo.Client
}

// Connect dials MongoDB and pings the primary so a bad URI fails at startup
// instead of on the first request.
func Connect(ctx context.Context, uri string) (*Client, error) {
	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}
	return &Client{client: client}, nil
}

// Database returns a handle on the named database. MongoDB creates it on
// first write.
func (c *Client) Database(name string) *mongo.Database {
	return c.client.Database(name)
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes every query in this package relies on.
// It is idempotent.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	// unique email: the directory resolves recipients by address
	_, err := db.Collection(usersColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create users index")
	}

	// TTL indexes let mongod reclaim expired credentials on its own; lookups
	// still compare expires_at because the TTL monitor only runs once a
	// minute.
	for _, name := range []string{apiKeysColl, pushTokensColl} {
		_, err := db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create %s ttl index", name)
		}
	}
	_, err = db.Collection(pushTokensColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create push token owner index")
	}

	messageIndexes := []mongo.IndexModel{
		{
			// history between two users, newest first
			Keys: bson.D{
				{Key: "sender_id", Value: 1},
				{Key: "recipient_id", Value: 1},
				{Key: "time", Value: -1},
				{Key: "seq", Value: -1},
			},
		},
		{
			// chat list $match on the recipient side
			Keys: bson.D{{Key: "recipient_id", Value: 1}},
		},
	}
	if _, err := db.Collection(messagesColl).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return errors.Wrap(err, "failed to create message indexes")
	}
	return nil
}
