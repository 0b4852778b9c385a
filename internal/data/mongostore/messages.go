package mongostore

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// messageDoc is the stored form of a message. Seq is a per-database
// counter that breaks timestamp ties in insertion order.
type messageDoc struct {
	ID          string           `bson:"_id"`
	Seq         int64            `bson:"seq"`
	SenderID    string           `bson:"sender_id"`
	RecipientID string           `bson:"recipient_id"`
	Type        data.MessageType `bson:"message_type"`
	Payload     string           `bson:"payload"`
	Timestamp   int64            `bson:"time"`
}

func (d messageDoc) message() (*data.Message, error) {
	payload, err := data.DecodePayload(d.Payload)
	if err != nil {
		return nil, err
	}
	return &data.Message{
		ID:          d.ID,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Type:        d.Type,
		Payload:     payload,
		Timestamp:   d.Timestamp,
	}, nil
}

// nextSeq atomically increments the message counter.
func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messagesColl},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	return counter.Value, err
}

// AppendMessage inserts m after checking that both parties exist. The
// _id primary key rejects a reused message id.
func (s *Store) AppendMessage(ctx context.Context, m *data.Message) (string, error) {
	for _, id := range []string{m.SenderID, m.RecipientID} {
		if err := data.CheckUserID(id); err != nil {
			return "", errors.Wrapf(err, "mongoStore.AppendMessage: %q", id)
		}
		n, err := s.users.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return "", errors.Wrap(err, "mongoStore.AppendMessage.userExists")
		}
		if n == 0 {
			return "", errors.Wrapf(data.ErrUnknownUser, "mongoStore.AppendMessage: %q", id)
		}
	}

	if m.ID == "" {
		m.ID = data.NewMessageID()
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return "", errors.Wrap(err, "mongoStore.AppendMessage.nextSeq")
	}

	doc := messageDoc{
		ID:          m.ID,
		Seq:         seq,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Type:        m.Type,
		Payload:     data.EncodePayload(m.Payload),
		Timestamp:   m.Timestamp,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", errors.Errorf("mongoStore.AppendMessage: duplicate message id %q", m.ID)
		}
		return "", errors.Wrap(err, "mongoStore.AppendMessage")
	}
	return m.ID, nil
}

// ListChatPartners groups the user's messages by partner and keeps the
// greatest timestamp of each group.
func (s *Store) ListChatPartners(ctx context.Context, userID string, limit int) ([]data.ChatPartner, error) {
	pipeline := mongo.Pipeline{
		// Stage 1: every message the user sent or received
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "sender_id", Value: userID}},
				bson.D{{Key: "recipient_id", Value: userID}},
			}},
		}}},

		// Stage 2: one group per partner. $max rather than $last: the
		// collection has no guaranteed order, and the latest insert is not
		// necessarily the latest message.
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$sender_id", userID}}},
					"$recipient_id",
					"$sender_id",
				}},
			}},
			{Key: "last_message_time", Value: bson.D{{Key: "$max", Value: "$time"}}},
		}}},

		// Stage 3: most recent first, partner id for ties
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "last_message_time", Value: -1},
			{Key: "_id", Value: 1},
		}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(limit)}})
	}

	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListChatPartners")
	}
	defer cursor.Close(ctx)

	var rows []struct {
		PartnerID       string `bson:"_id"`
		LastMessageTime int64  `bson:"last_message_time"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "mongoStore.ListChatPartners.decode")
	}

	partners := make([]data.ChatPartner, 0, len(rows))
	for _, r := range rows {
		partners = append(partners, data.ChatPartner{PartnerID: r.PartnerID, LastMessageTime: r.LastMessageTime})
	}
	return partners, nil
}

// MessagesBetween fetches the newest limit messages of the conversation and
// returns them oldest first.
func (s *Store) MessagesBetween(ctx context.Context, userID, otherID string, limit int) ([]data.MessageView, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "time", Value: -1}, {Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userID, "recipient_id": otherID},
			bson.M{"sender_id": otherID, "recipient_id": userID},
		},
	}

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongoStore.MessagesBetween")
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongoStore.MessagesBetween.decode")
	}

	msgs := make([]*data.Message, 0, len(docs))
	for _, d := range docs {
		m, err := d.message()
		if err != nil {
			return nil, errors.Wrapf(err, "mongoStore.MessagesBetween: payload of %s", d.ID)
		}
		msgs = append(msgs, m)
	}
	// newest first from the query; callers want chronological order
	data.Reverse(msgs)
	return data.Annotate(userID, msgs), nil
}
