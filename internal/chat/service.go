// Package chat implements the messaging operations on top of a data.Store,
// an identity verifier and a push dispatcher.
package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
	"github.com/PaulBabatuyi/relaychat/internal/auth"
	"github.com/PaulBabatuyi/relaychat/internal/data"
	"github.com/PaulBabatuyi/relaychat/internal/metrics"
	"github.com/PaulBabatuyi/relaychat/internal/normalize"
	"github.com/PaulBabatuyi/relaychat/internal/push"
)

// IdentityVerifier checks a third-party identity token.
type IdentityVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Identity, error)
}

// KeyIssuer derives the local api key for a verified token.
type KeyIssuer interface {
	Issue(idToken, email, userID string, now time.Time) (data.Credential, error)
}

// Service is safe for concurrent use; all state lives in the store.
type Service struct {
	store    data.Store
	verifier IdentityVerifier
	issuer   KeyIssuer
	push     push.Dispatcher
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New wires a Service.
func New(store data.Store, verifier IdentityVerifier, issuer KeyIssuer, dispatcher push.Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		issuer:   issuer,
		push:     dispatcher,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate exchanges an identity token for a local api key, records
// the caller's profile and device, and pushes the key to that device.
func (s *Service) Authenticate(ctx context.Context, messagingToken, authToken string) (data.Credential, *data.User, error) {
	if authToken == "" {
		return data.Credential{}, nil, apperr.Unauthenticated("authToken is required")
	}
	if messagingToken == "" {
		return data.Credential{}, nil, apperr.Invalid("messagingToken is required")
	}

	id, err := s.verifier.Verify(ctx, authToken)
	if err != nil {
		return data.Credential{}, nil, apperr.Wrap(apperr.CodeUnauthenticated, "identity verification failed", err)
	}

	user := data.User{
		UserID:  id.UserID,
		Email:   normalize.Email(id.Email),
		Name:    id.Name,
		Picture: id.Picture,
	}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		if errors.Is(err, data.ErrEmailTaken) {
			return data.Credential{}, nil, apperr.Wrap(apperr.CodeInvalidArgument, "email is registered to another account", err)
		}
		if errors.Is(err, data.ErrInvalidUserID) {
			return data.Credential{}, nil, apperr.Wrap(apperr.CodeInvalidArgument, "identity has an unusable user id", err)
		}
		return data.Credential{}, nil, apperr.Internal("store user", err)
	}

	now := s.now()
	cred, err := s.issuer.Issue(authToken, user.Email, user.UserID, now)
	if err != nil {
		return data.Credential{}, nil, apperr.Internal("issue api key", err)
	}
	if err := s.store.PutAPIKey(ctx, cred); err != nil {
		return data.Credential{}, nil, apperr.Internal("store api key", err)
	}
	token := data.PushToken{Token: messagingToken, UserID: user.UserID, ExpiresAt: now.Add(data.CredentialTTL)}
	if err := s.store.PutPushToken(ctx, token); err != nil {
		return data.Credential{}, nil, apperr.Internal("store messaging token", err)
	}

	s.deliver(ctx, []string{messagingToken}, push.AuthAck(cred.Key), user.UserID)
	log.Info().Str("user_id", user.UserID).Msg("user authenticated")
	return cred, &user, nil
}

// UserByAPIKey resolves a bearer api key to its owner.
func (s *Service) UserByAPIKey(ctx context.Context, key string) (*data.User, error) {
	if key == "" {
		return nil, apperr.Unauthenticated("missing api key")
	}
	userID, err := s.store.UserIDByAPIKey(ctx, key, s.now())
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid or expired api key")
		}
		return nil, apperr.Internal("look up api key", err)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.Unauthenticated("api key owner no longer exists")
		}
		return nil, apperr.Internal("look up user", err)
	}
	return u, nil
}

func (s *Service) userByEmail(ctx context.Context, email, what string) (*data.User, error) {
	u, err := s.store.GetUserByEmail(ctx, normalize.Email(email))
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, apperr.NotFound(what + " not found")
		}
		return nil, apperr.Internal("look up "+what, err)
	}
	return u, nil
}

// SendMessage stores a message from sender to the user registered under
// recipientEmail and pushes it to the recipient's devices. The message is
// kept even when the recipient has no device to push to.
func (s *Service) SendMessage(ctx context.Context, sender *data.User, recipientEmail string, messageType data.MessageType, messageData string) (*data.Message, error) {
	recipient, err := s.userByEmail(ctx, recipientEmail, "recipient")
	if err != nil {
		return nil, err
	}
	if !messageType.Supported() {
		return nil, apperr.Unsupported("message type not supported")
	}

	msg := &data.Message{
		SenderID:    sender.UserID,
		RecipientID: recipient.UserID,
		Type:        messageType,
		Payload:     []byte(messageData),
		Timestamp:   data.Millis(s.now()),
	}
	if _, err := s.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, data.ErrUnknownUser) {
			return nil, apperr.Wrap(apperr.CodeNotFound, "recipient not found", err)
		}
		return nil, apperr.Internal("store message", err)
	}
	metrics.MessagesSent.WithLabelValues(string(messageType)).Inc()

	tokens, err := s.store.PushTokens(ctx, recipient.UserID, s.now())
	if err != nil {
		return nil, apperr.Internal("look up messaging tokens", err)
	}
	if len(tokens) == 0 {
		return msg, apperr.NotFound("recipient has no messaging tokens")
	}

	payload := push.NewMessage(string(messageType), messageData, sender.Name, sender.Email, sender.Picture)
	s.deliver(ctx, tokens, payload, recipient.UserID)
	return msg, nil
}

// deliver pushes data and only logs failures: the state change it
// announces is already committed.
func (s *Service) deliver(ctx context.Context, tokens []string, payload map[string]string, userID string) {
	if err := s.push.Send(ctx, tokens, payload); err != nil {
		metrics.PushFailures.Inc()
		log.Warn().Err(err).Str("user_id", userID).Int("tokens", len(tokens)).Msg("push delivery failed")
	}
}

// ListChats returns the user's conversation partners, most recently active
// first, joined with each partner's current profile. Partners whose
// profile is gone are left out.
func (s *Service) ListChats(ctx context.Context, user *data.User, limit int) ([]data.ChatSummary, error) {
	partners, err := s.store.ListChatPartners(ctx, user.UserID, normalize.Limit(limit))
	if err != nil {
		return nil, apperr.Internal("list chats", err)
	}

	chats := make([]data.ChatSummary, 0, len(partners))
	for _, p := range partners {
		profile, err := s.store.GetUser(ctx, p.PartnerID)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				log.Warn().Str("user_id", user.UserID).Str("partner_id", p.PartnerID).Msg("chat partner has no profile; skipped")
				continue
			}
			return nil, apperr.Internal("resolve chat partner", err)
		}
		chats = append(chats, data.ChatSummary{User: *profile, LastMessageTime: p.LastMessageTime})
	}
	return chats, nil
}

// GetMessages returns the most recent messages between user and the owner
// of otherEmail, oldest first.
func (s *Service) GetMessages(ctx context.Context, user *data.User, otherEmail string, limit int) ([]data.MessageView, error) {
	other, err := s.userByEmail(ctx, otherEmail, "recipient")
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.MessagesBetween(ctx, user.UserID, other.UserID, normalize.Limit(limit))
	if err != nil {
		return nil, apperr.Internal("load messages", err)
	}
	return msgs, nil
}

// GetUser looks a profile up by email.
func (s *Service) GetUser(ctx context.Context, email string) (*data.User, error) {
	return s.userByEmail(ctx, email, "user")
}

// Sweep deletes expired credentials and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, apperr.Internal("sweep expired credentials", err)
	}
	metrics.CredentialsSwept.Add(float64(n))
	return n, nil
}
