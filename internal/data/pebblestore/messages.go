package pebblestore

import (
	"context"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// messageRecord is the on-disk form of a message. The payload travels as
// base64 so arbitrary bytes survive the JSON encoding.
type messageRecord struct {
	ID          string           `json:"id"`
	SenderID    string           `json:"sender_id"`
	RecipientID string           `json:"recipient_id"`
	Type        data.MessageType `json:"message_type"`
	Payload     string           `json:"payload"`
	Timestamp   int64            `json:"time"`
}

func toRecord(m *data.Message) messageRecord {
	return messageRecord{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Type:        m.Type,
		Payload:     data.EncodePayload(m.Payload),
		Timestamp:   m.Timestamp,
	}
}

func (r messageRecord) message() (*data.Message, error) {
	payload, err := data.DecodePayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return &data.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Type:        r.Type,
		Payload:     payload,
		Timestamp:   r.Timestamp,
	}, nil
}

// AppendMessage adds m to the log together with its inbox and
// conversation index entries in one batch.
func (s *Store) AppendMessage(_ context.Context, m *data.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{m.SenderID, m.RecipientID} {
		if err := data.CheckUserID(id); err != nil {
			return "", errors.Wrapf(err, "pebbleStore.AppendMessage: %q", id)
		}
		ok, err := s.userExists(id)
		if err != nil {
			return "", errors.Wrap(err, "pebbleStore.AppendMessage.userExists")
		}
		if !ok {
			return "", errors.Wrapf(data.ErrUnknownUser, "pebbleStore.AppendMessage: %q", id)
		}
	}

	if m.ID == "" {
		m.ID = data.NewMessageID()
	} else {
		_, err := s.get(msgIDKey(m.ID))
		if err == nil {
			return "", errors.Errorf("pebbleStore.AppendMessage: duplicate message id %q", m.ID)
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return "", errors.Wrap(err, "pebbleStore.AppendMessage.idIndex")
		}
	}

	seq := s.seq + 1
	b := s.db.NewBatch()
	ops := []func() error{
		func() error { return setJSON(b, msgKey(seq), toRecord(m)) },
		func() error { return b.Set(msgIDKey(m.ID), []byte(seqString(seq)), nil) },
		func() error { return b.Set(inboxKey(m.SenderID, seq), nil, nil) },
		func() error { return b.Set(convKey(m.SenderID, m.RecipientID, seq), nil, nil) },
		func() error { return b.Set(seqKey, []byte(strconv.FormatUint(seq, 10)), nil) },
	}
	if m.RecipientID != m.SenderID {
		ops = append(ops, func() error { return b.Set(inboxKey(m.RecipientID, seq), nil, nil) })
	}
	for _, op := range ops {
		if err := op(); err != nil {
			_ = b.Close()
			return "", errors.Wrap(err, "pebbleStore.AppendMessage.batch")
		}
	}
	if err := s.commit(b, "pebbleStore.AppendMessage.Commit"); err != nil {
		return "", err
	}
	s.seq = seq
	return m.ID, nil
}

// loadIndexed resolves every seq listed under prefix into its message, in
// insertion order.
func (s *Store) loadIndexed(prefix []byte) ([]*data.Message, error) {
	var seqs []uint64
	err := s.scan(prefix, func(key, _ []byte) error {
		seq, err := seqFromKey(key, prefix)
		if err != nil {
			return err
		}
		seqs = append(seqs, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]*data.Message, 0, len(seqs))
	for _, seq := range seqs {
		var r messageRecord
		if err := s.getJSON(msgKey(seq), &r); err != nil {
			return nil, err
		}
		m, err := r.message()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// ListChatPartners folds the inbox of userID into one entry per partner.
func (s *Store) ListChatPartners(_ context.Context, userID string, limit int) ([]data.ChatPartner, error) {
	msgs, err := s.loadIndexed(inboxPrefix(userID))
	if err != nil {
		return nil, errors.Wrap(err, "pebbleStore.ListChatPartners")
	}
	return data.FoldChats(userID, msgs, limit), nil
}

// MessagesBetween returns the most recent window of the conversation
// between userID and otherID.
func (s *Store) MessagesBetween(_ context.Context, userID, otherID string, limit int) ([]data.MessageView, error) {
	msgs, err := s.loadIndexed(convPrefix(userID, otherID))
	if err != nil {
		return nil, errors.Wrap(err, "pebbleStore.MessagesBetween")
	}
	return data.RecentWindow(userID, msgs, limit), nil
}
