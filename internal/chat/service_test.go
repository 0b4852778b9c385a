package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
	"github.com/PaulBabatuyi/relaychat/internal/auth"
	"github.com/PaulBabatuyi/relaychat/internal/data"
	"github.com/PaulBabatuyi/relaychat/internal/data/pebblestore"
)

type sent struct {
	tokens []string
	data   map[string]string
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, tokens []string, data map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{tokens: tokens, data: data})
	return d.err
}

func (d *recordingDispatcher) last() sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

type fixture struct {
	svc    *Service
	store  data.Store
	push   *recordingDispatcher
	signer *auth.Signer
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := pebblestore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{store: store, push: &recordingDispatcher{}, clock: &clock}
	now := func() time.Time { return *f.clock }

	verifier, err := auth.NewVerifier(auth.VerifierConfig{HMACSecret: []byte("idp"), Now: now})
	require.NoError(t, err)
	f.signer = auth.NewHMACSigner([]byte("idp"), "", "", time.Hour)
	f.svc = New(store, verifier, auth.NewIssuer("app-secret"), f.push, WithClock(now))
	return f
}

func (f *fixture) login(t *testing.T, id auth.Identity, device string) (data.Credential, *data.User) {
	t.Helper()
	token, err := f.signer.Sign(id, *f.clock)
	require.NoError(t, err)
	cred, user, err := f.svc.Authenticate(context.Background(), device, token)
	require.NoError(t, err)
	return cred, user
}

var (
	alice = auth.Identity{UserID: "uid-alice", Email: "Alice@Example.com", Name: "Alice", Picture: "a.png"}
	bob   = auth.Identity{UserID: "uid-bob", Email: "bob@example.com", Name: "Bob", Picture: "b.png"}
	carol = auth.Identity{UserID: "uid-carol", Email: "carol@example.com", Name: "Carol"}
)

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cred, user := f.login(t, alice, "dev-alice")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, f.clock.Add(data.CredentialTTL), cred.ExpiresAt)

	// api key pushed to the device that asked for it
	got := f.push.last()
	assert.Equal(t, []string{"dev-alice"}, got.tokens)
	assert.Equal(t, map[string]string{"auth_ack": "true", "api_key": cred.Key}, got.data)

	u, err := f.svc.UserByAPIKey(ctx, cred.Key)
	require.NoError(t, err)
	assert.Equal(t, "uid-alice", u.UserID)

	tokens, err := f.store.PushTokens(ctx, "uid-alice", *f.clock)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-alice"}, tokens)
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Authenticate(ctx, "dev", "not-a-jwt")
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))

	_, _, err = f.svc.Authenticate(ctx, "dev", "")
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	token, _ := f.signer.Sign(alice, *f.clock)
	_, _, err = f.svc.Authenticate(ctx, "", token)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	assert.Empty(t, f.push.sent)
}

func TestAuthenticateSurvivesPushFailure(t *testing.T) {
	f := newFixture(t)
	f.push.err = errors.New("device offline")

	cred, _ := f.login(t, alice, "dev-alice")
	_, err := f.svc.UserByAPIKey(context.Background(), cred.Key)
	assert.NoError(t, err)
}

func TestAPIKeyExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cred, _ := f.login(t, alice, "dev-alice")

	*f.clock = cred.ExpiresAt.Add(-time.Second)
	_, err := f.svc.UserByAPIKey(ctx, cred.Key)
	require.NoError(t, err)

	*f.clock = cred.ExpiresAt
	_, err = f.svc.UserByAPIKey(ctx, cred.Key)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	_, err = f.svc.UserByAPIKey(ctx, "")
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n) // api key and messaging token
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.login(t, alice, "dev-alice")
	_, _ = f.login(t, bob, "dev-bob")

	msg, err := f.svc.SendMessage(ctx, a, "BOB@example.com", data.TypeText, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	got := f.push.last()
	assert.Equal(t, []string{"dev-bob"}, got.tokens)
	assert.Equal(t, map[string]string{
		"messageType":   "text",
		"message":       "hello",
		"senderName":    "Alice",
		"senderEmail":   "alice@example.com",
		"senderPicture": "a.png",
	}, got.data)
}

func TestSendMessageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.login(t, alice, "dev-alice")
	_, _ = f.login(t, bob, "dev-bob")

	_, err := f.svc.SendMessage(ctx, a, "nobody@example.com", data.TypeText, "hi")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = f.svc.SendMessage(ctx, a, "bob@example.com", data.MessageType("video"), "hi")
	assert.Equal(t, apperr.CodeUnsupported, apperr.CodeOf(err))

	msgs, err := f.svc.GetMessages(ctx, a, "bob@example.com", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "rejected messages must not be stored")
}

func TestSendMessageRecipientWithoutDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.login(t, alice, "dev-alice")
	_, b := f.login(t, bob, "dev-bob")

	// bob's device registration lapses, his profile stays
	*f.clock = f.clock.Add(data.CredentialTTL)
	pushes := len(f.push.sent)

	_, err := f.svc.SendMessage(ctx, a, "bob@example.com", data.TypeText, "are you there?")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	assert.Len(t, f.push.sent, pushes)

	msgs, err := f.svc.GetMessages(ctx, b, "alice@example.com", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "are you there?", string(msgs[0].Payload))
	assert.False(t, msgs[0].IsSent)
}

func TestConversationViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.login(t, alice, "dev-alice")
	_, b := f.login(t, bob, "dev-bob")
	_, c := f.login(t, carol, "dev-carol")

	base := *f.clock
	for i, body := range []string{"one", "two", "three"} {
		*f.clock = base.Add(time.Duration(i+1) * 100 * time.Millisecond)
		_, err := f.svc.SendMessage(ctx, a, "bob@example.com", data.TypeText, body)
		require.NoError(t, err)
	}
	*f.clock = base.Add(50 * time.Millisecond)
	_, err := f.svc.SendMessage(ctx, c, "alice@example.com", data.TypeImage, "deadbeef")
	require.NoError(t, err)

	msgs, err := f.svc.GetMessages(ctx, a, "bob@example.com", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", string(msgs[0].Payload))
	assert.Equal(t, "three", string(msgs[1].Payload))
	assert.True(t, msgs[0].IsSent && msgs[1].IsSent)

	chats, err := f.svc.ListChats(ctx, b, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "uid-alice", chats[0].UserID)
	assert.Equal(t, "Alice", chats[0].Name)
	assert.Equal(t, data.Millis(base.Add(300*time.Millisecond)), chats[0].LastMessageTime)

	chats, err = f.svc.ListChats(ctx, a, 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "uid-bob", chats[0].UserID)
	assert.Equal(t, "uid-carol", chats[1].UserID)

	_, err = f.svc.GetMessages(ctx, a, "ghost@example.com", 10)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListChatsReflectsCurrentProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.login(t, alice, "dev-alice")
	_, b := f.login(t, bob, "dev-bob")
	_, err := f.svc.SendMessage(ctx, a, "bob@example.com", data.TypeText, "hi")
	require.NoError(t, err)

	renamed := alice
	renamed.Name = "Alice Cooper"
	f.login(t, renamed, "dev-alice")

	chats, err := f.svc.ListChats(ctx, b, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Alice Cooper", chats[0].Name)
}

// profileGapStore fails GetUser for one user id.
type profileGapStore struct {
	data.Store
	userID string
	err    error
}

func (s *profileGapStore) GetUser(ctx context.Context, userID string) (*data.User, error) {
	if userID == s.userID {
		return nil, s.err
	}
	return s.Store.GetUser(ctx, userID)
}

func TestListChatsSkipsMissingProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.login(t, alice, "dev-alice")
	_, b := f.login(t, bob, "dev-bob")
	_, c := f.login(t, carol, "dev-carol")
	dave := auth.Identity{UserID: "uid-dave", Email: "dave@example.com", Name: "Dave"}
	_, d := f.login(t, dave, "dev-dave")

	base := *f.clock
	for i, from := range []*data.User{d, b, c} {
		*f.clock = base.Add(time.Duration(i+1) * time.Second)
		_, err := f.svc.SendMessage(ctx, from, "alice@example.com", data.TypeText, "hi")
		require.NoError(t, err)
	}

	gap := &profileGapStore{Store: f.store, userID: "uid-bob", err: errors.Wrap(data.ErrNotFound, "gone")}
	svc := New(gap, nil, nil, f.push, WithClock(func() time.Time { return *f.clock }))

	chats, err := svc.ListChats(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "uid-carol", chats[0].UserID)
	assert.Equal(t, data.Millis(base.Add(3*time.Second)), chats[0].LastMessageTime)
	assert.Equal(t, "uid-dave", chats[1].UserID)
	assert.Equal(t, data.Millis(base.Add(time.Second)), chats[1].LastMessageTime)

	gap.err = errors.New("disk on fire")
	_, err = svc.ListChats(ctx, a, 10)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

type fixedVerifier struct{ id auth.Identity }

func (v fixedVerifier) Verify(context.Context, string) (*auth.Identity, error) {
	id := v.id
	return &id, nil
}

func TestAuthenticateRejectsUnusableUserID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, _ := f.signer.Sign(auth.Identity{UserID: "uid\x00alice", Email: "x@example.com"}, *f.clock)
	_, _, err := f.svc.Authenticate(ctx, "dev", token)
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	svc := New(f.store, fixedVerifier{auth.Identity{UserID: "uid\x00alice", Email: "x@example.com"}}, auth.NewIssuer("app-secret"), f.push)
	_, _, err = svc.Authenticate(ctx, "dev", "token")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	assert.True(t, errors.Is(err, data.ErrInvalidUserID))
	assert.Empty(t, f.push.sent)
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)
	f.login(t, bob, "dev-bob")

	u, err := f.svc.GetUser(context.Background(), " Bob@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.Name)

	_, err = f.svc.GetUser(context.Background(), "nobody@example.com")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
