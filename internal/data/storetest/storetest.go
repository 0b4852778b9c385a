// Package storetest is a conformance suite every data.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// testNow is far in the future so a backend with server-side expiry (a
// MongoDB TTL index) never reclaims fixtures behind the suite's back.
var testNow = time.Date(2100, 1, 1, 12, 0, 0, 0, time.UTC)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) data.Store

// Run exercises the full data.Store contract against fresh stores from
// newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s data.Store)
	}{
		{"UpsertAndLookup", testUpsertAndLookup},
		{"EmailChange", testEmailChange},
		{"EmailTaken", testEmailTaken},
		{"APIKeyExpiryBoundary", testAPIKeyExpiryBoundary},
		{"PushTokens", testPushTokens},
		{"SweepExpired", testSweepExpired},
		{"RecentWindow", testRecentWindow},
		{"ChatList", testChatList},
		{"ChatListLimit", testChatListLimit},
		{"BinaryPayload", testBinaryPayload},
		{"UnknownUser", testUnknownUser},
		{"InvalidUserID", testInvalidUserID},
		{"DuplicateID", testDuplicateID},
		{"ConcurrentAppends", testConcurrentAppends},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			tc.fn(t, s)
		})
	}
}

func seedUsers(t *testing.T, s data.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.UpsertUser(context.Background(), data.User{
			UserID:  id,
			Email:   id + "@example.com",
			Name:    "User " + id,
			Picture: "https://example.com/" + id + ".png",
		}))
	}
}

func appendAt(t *testing.T, s data.Store, from, to string, ts int64, body string) string {
	t.Helper()
	id, err := s.AppendMessage(context.Background(), &data.Message{
		SenderID:    from,
		RecipientID: to,
		Type:        data.TypeText,
		Payload:     []byte(body),
		Timestamp:   ts,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func testUpsertAndLookup(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice")

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, *u, *byEmail)

	require.NoError(t, s.UpsertUser(ctx, data.User{UserID: "alice", Email: "alice@example.com", Name: "Alice B"}))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", u.Name)
	assert.Empty(t, u.Picture)

	_, err = s.GetUser(ctx, "nobody")
	assert.True(t, errors.Is(err, data.ErrNotFound))
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, data.ErrNotFound))
}

func testEmailChange(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice")
	require.NoError(t, s.UpsertUser(ctx, data.User{UserID: "alice", Email: "new@example.com"}))

	_, err := s.GetUserByEmail(ctx, "alice@example.com")
	assert.True(t, errors.Is(err, data.ErrNotFound))
	u, err := s.GetUserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.UserID)
}

func testEmailTaken(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice")
	err := s.UpsertUser(ctx, data.User{UserID: "mallory", Email: "alice@example.com"})
	assert.True(t, errors.Is(err, data.ErrEmailTaken), "got %v", err)
}

func testAPIKeyExpiryBoundary(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice")
	issued := testNow
	expires := issued.Add(data.CredentialTTL)
	require.NoError(t, s.PutAPIKey(ctx, data.Credential{Key: "k1", UserID: "alice", ExpiresAt: expires}))

	id, err := s.UserIDByAPIKey(ctx, "k1", expires.Add(-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = s.UserIDByAPIKey(ctx, "k1", expires)
	assert.True(t, errors.Is(err, data.ErrNotFound))
	_, err = s.UserIDByAPIKey(ctx, "missing", issued)
	assert.True(t, errors.Is(err, data.ErrNotFound))
}

func testPushTokens(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob")
	now := testNow

	require.NoError(t, s.PutPushToken(ctx, data.PushToken{Token: "dev1", UserID: "alice", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.PutPushToken(ctx, data.PushToken{Token: "dev2", UserID: "alice", ExpiresAt: now.Add(-time.Hour)}))
	tokens, err := s.PushTokens(ctx, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev1"}, tokens)

	// the device signs in as bob
	require.NoError(t, s.PutPushToken(ctx, data.PushToken{Token: "dev1", UserID: "bob", ExpiresAt: now.Add(time.Hour)}))
	tokens, err = s.PushTokens(ctx, "alice", now)
	require.NoError(t, err)
	assert.Empty(t, tokens)
	tokens, err = s.PushTokens(ctx, "bob", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev1"}, tokens)
}

func testSweepExpired(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice")
	now := testNow

	require.NoError(t, s.PutAPIKey(ctx, data.Credential{Key: "old", UserID: "alice", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.PutAPIKey(ctx, data.Credential{Key: "new", UserID: "alice", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.PutPushToken(ctx, data.PushToken{Token: "stale", UserID: "alice", ExpiresAt: now.Add(-time.Minute)}))

	n, err := s.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	id, err := s.UserIDByAPIKey(ctx, "new", now)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}

func testRecentWindow(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a", "b", "c")
	appendAt(t, s, "a", "b", 100, "one")
	appendAt(t, s, "a", "b", 200, "two")
	appendAt(t, s, "a", "c", 250, "elsewhere")
	appendAt(t, s, "a", "b", 300, "three")

	got, err := s.MessagesBetween(ctx, "a", "b", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(200), got[0].Timestamp)
	assert.Equal(t, int64(300), got[1].Timestamp)
	for _, m := range got {
		assert.True(t, m.IsSent)
	}

	flipped, err := s.MessagesBetween(ctx, "b", "a", 2)
	require.NoError(t, err)
	require.Len(t, flipped, 2)
	for i := range flipped {
		assert.Equal(t, got[i].ID, flipped[i].ID)
		assert.False(t, flipped[i].IsSent)
	}

	all, err := s.MessagesBetween(ctx, "a", "b", 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testChatList(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a", "b", "c")
	appendAt(t, s, "a", "b", 100, "one")
	appendAt(t, s, "a", "b", 300, "three")
	// inserted late with an older timestamp; max must still win
	appendAt(t, s, "b", "a", 200, "two")
	appendAt(t, s, "c", "a", 250, "hey")

	chats, err := s.ListChatPartners(ctx, "b", 10)
	require.NoError(t, err)
	assert.Equal(t, []data.ChatPartner{{PartnerID: "a", LastMessageTime: 300}}, chats)

	chats, err = s.ListChatPartners(ctx, "a", 10)
	require.NoError(t, err)
	assert.Equal(t, []data.ChatPartner{
		{PartnerID: "b", LastMessageTime: 300},
		{PartnerID: "c", LastMessageTime: 250},
	}, chats)

	chats, err = s.ListChatPartners(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func testChatListLimit(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "hub", "p1", "p2", "p3")
	appendAt(t, s, "hub", "p1", 10, "x")
	appendAt(t, s, "p2", "hub", 30, "x")
	appendAt(t, s, "hub", "p3", 20, "x")

	chats, err := s.ListChatPartners(ctx, "hub", 2)
	require.NoError(t, err)
	assert.Equal(t, []data.ChatPartner{
		{PartnerID: "p2", LastMessageTime: 30},
		{PartnerID: "p3", LastMessageTime: 20},
	}, chats)
}

func testBinaryPayload(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a", "b")
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := s.AppendMessage(ctx, &data.Message{
		SenderID: "a", RecipientID: "b", Type: data.TypeImage, Payload: payload, Timestamp: 1,
	})
	require.NoError(t, err)

	got, err := s.MessagesBetween(ctx, "b", "a", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0].Payload)
	assert.Equal(t, data.TypeImage, got[0].Type)
}

func testUnknownUser(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a")
	_, err := s.AppendMessage(ctx, &data.Message{SenderID: "a", RecipientID: "ghost", Type: data.TypeText, Timestamp: 1})
	assert.True(t, errors.Is(err, data.ErrUnknownUser), "got %v", err)
	_, err = s.AppendMessage(ctx, &data.Message{SenderID: "ghost", RecipientID: "a", Type: data.TypeText, Timestamp: 1})
	assert.True(t, errors.Is(err, data.ErrUnknownUser), "got %v", err)
}

func testInvalidUserID(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a", "c")

	for _, id := range []string{"", "a\x00b", "b\x00c"} {
		err := s.UpsertUser(ctx, data.User{UserID: id, Email: fmt.Sprintf("%x@example.com", id)})
		assert.True(t, errors.Is(err, data.ErrInvalidUserID), "UpsertUser(%q): got %v", id, err)
	}

	_, err := s.AppendMessage(ctx, &data.Message{SenderID: "a", RecipientID: "b\x00c", Type: data.TypeText, Payload: []byte("secret"), Timestamp: 1})
	assert.True(t, errors.Is(err, data.ErrInvalidUserID), "got %v", err)
	_, err = s.AppendMessage(ctx, &data.Message{SenderID: "a\x00b", RecipientID: "c", Type: data.TypeText, Timestamp: 2})
	assert.True(t, errors.Is(err, data.ErrInvalidUserID), "got %v", err)

	appendAt(t, s, "a", "c", 3, "hello")
	chats, err := s.ListChatPartners(ctx, "a", 10)
	require.NoError(t, err)
	assert.Equal(t, []data.ChatPartner{{PartnerID: "c", LastMessageTime: 3}}, chats)
}

func testDuplicateID(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a", "b")
	m := &data.Message{ID: "fixed", SenderID: "a", RecipientID: "b", Type: data.TypeText, Timestamp: 1}
	_, err := s.AppendMessage(ctx, m)
	require.NoError(t, err)
	dup := *m
	_, err = s.AppendMessage(ctx, &dup)
	assert.Error(t, err)

	got, err := s.MessagesBetween(ctx, "a", "b", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testConcurrentAppends(t *testing.T, s data.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a", "b")

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.AppendMessage(ctx, &data.Message{
				SenderID: "a", RecipientID: "b", Type: data.TypeText,
				Payload: []byte(fmt.Sprintf("m%d", i)), Timestamp: int64(i),
			})
			if assert.NoError(t, err) {
				ids <- id
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	got, err := s.MessagesBetween(ctx, "a", "b", 1000)
	require.NoError(t, err)
	assert.Len(t, got, n)
}
