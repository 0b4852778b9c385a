package sqlstore

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// AppendMessage inserts m in a transaction that first checks both parties.
func (s *Store) AppendMessage(ctx context.Context, m *data.Message) (string, error) {
	for _, id := range []string{m.SenderID, m.RecipientID} {
		if err := data.CheckUserID(id); err != nil {
			return "", errors.Wrapf(err, "sqlStore.AppendMessage: %q", id)
		}
	}
	if m.ID == "" {
		m.ID = data.NewMessageID()
	}
	row := MessageRow{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		MessageType: string(m.Type),
		Payload:     data.EncodePayload(m.Payload),
		SentAt:      m.Timestamp,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		want := int64(2)
		if m.SenderID == m.RecipientID {
			want = 1
		}
		var n int64
		if err := tx.Model(&UserRow{}).Where("user_id IN ?", []string{m.SenderID, m.RecipientID}).Count(&n).Error; err != nil {
			return err
		}
		if n != want {
			return errors.Wrapf(data.ErrUnknownUser, "%q -> %q", m.SenderID, m.RecipientID)
		}
		return tx.Omit("Sender", "Recipient").Create(&row).Error
	})
	switch {
	case err == nil:
		return m.ID, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "", errors.Errorf("sqlStore.AppendMessage: duplicate message id %q", m.ID)
	default:
		return "", errors.Wrap(err, "sqlStore.AppendMessage")
	}
}

const chatPartnersSQL = `
SELECT CASE WHEN sender_id = @user THEN recipient_id ELSE sender_id END AS partner_id,
       MAX(sent_at) AS last_message_time
FROM messages
WHERE sender_id = @user OR recipient_id = @user
GROUP BY partner_id
ORDER BY last_message_time DESC, partner_id ASC`

// ListChatPartners groups the user's messages by partner with MAX(sent_at).
func (s *Store) ListChatPartners(ctx context.Context, userID string, limit int) ([]data.ChatPartner, error) {
	query := chatPartnersSQL
	args := map[string]any{"user": userID}
	if limit > 0 {
		query += "\nLIMIT @limit"
		args["limit"] = limit
	}

	partners := []data.ChatPartner{}
	var rows []struct {
		PartnerID       string
		LastMessageTime int64
	}
	if err := s.db.WithContext(ctx).Raw(query, args).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "sqlStore.ListChatPartners")
	}
	for _, r := range rows {
		partners = append(partners, data.ChatPartner{PartnerID: r.PartnerID, LastMessageTime: r.LastMessageTime})
	}
	return partners, nil
}

// MessagesBetween selects the newest limit rows of the conversation and
// returns them oldest first.
func (s *Store) MessagesBetween(ctx context.Context, userID, otherID string, limit int) ([]data.MessageView, error) {
	q := s.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
			userID, otherID, otherID, userID).
		Order("sent_at desc, seq desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []MessageRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "sqlStore.MessagesBetween")
	}

	msgs := make([]*data.Message, 0, len(rows))
	for _, r := range rows {
		payload, err := data.DecodePayload(r.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "sqlStore.MessagesBetween: payload of %s", r.ID)
		}
		msgs = append(msgs, &data.Message{
			ID:          r.ID,
			SenderID:    r.SenderID,
			RecipientID: r.RecipientID,
			Type:        data.MessageType(r.MessageType),
			Payload:     payload,
			Timestamp:   r.SentAt,
		})
	}
	// newest first from the query; flip to chronological
	data.Reverse(msgs)
	return data.Annotate(userID, msgs), nil
}
