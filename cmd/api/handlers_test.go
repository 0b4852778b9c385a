package main

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
	"github.com/PaulBabatuyi/relaychat/internal/chatrpc"
	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// fakeResolver accepts exactly one key.
type fakeResolver struct {
	key  string
	user *data.User
}

func (f *fakeResolver) UserByAPIKey(_ context.Context, key string) (*data.User, error) {
	if key == "" || key != f.key {
		return nil, apperr.Unauthenticated("invalid or expired api key")
	}
	return f.user, nil
}

func TestAPIKeyFromMetadata(t *testing.T) {
	cases := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{"bearer", metadata.Pairs("authorization", "Bearer abc"), "abc"},
		{"lower-case scheme", metadata.Pairs("authorization", "bearer abc"), "abc"},
		{"x-api-key", metadata.Pairs("x-api-key", " abc "), "abc"},
		{"non-bearer authorization falls through", metadata.Pairs("authorization", "Basic zzz", "x-api-key", "abc"), "abc"},
		{"empty", metadata.MD{}, ""},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := apiKeyFromMetadata(tc.md); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAuthInterceptor(t *testing.T) {
	alice := &data.User{UserID: "u1", Email: "alice@example.com"}
	intercept := authUnaryInterceptor(&fakeResolver{key: "good", user: alice})

	var seen *data.User
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen, _ = userFromContext(ctx)
		return "ok", nil
	}
	call := func(ctx context.Context, method string) error {
		seen = nil
		_, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	if err := call(context.Background(), chatrpc.MethodAuthenticate); err != nil {
		t.Fatalf("Authenticate should pass without a key: %v", err)
	}
	if seen != nil {
		t.Fatalf("Authenticate should not carry a caller")
	}

	if err := call(context.Background(), "/grpc.health.v1.Health/Check"); err != nil {
		t.Fatalf("health should pass without a key: %v", err)
	}

	err := call(context.Background(), chatrpc.MethodGetChats)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer good"))
	if err := call(ctx, chatrpc.MethodGetChats); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	if seen == nil || seen.UserID != "u1" {
		t.Fatalf("caller not attached, got %+v", seen)
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err     error
		code    codes.Code
		message string
	}{
		{apperr.NotFound("recipient not found"), codes.NotFound, "recipient not found"},
		{apperr.Unsupported("message type not supported"), codes.Unimplemented, "message type not supported"},
		{apperr.Internal("store message", errors.New("disk on fire")), codes.Internal, "store message"},
		{errors.New("raw"), codes.Internal, "internal error"},
		{status.Error(codes.ResourceExhausted, "slow down"), codes.ResourceExhausted, "slow down"},
	}
	for _, tc := range cases {
		st := status.Convert(toStatus(tc.err))
		if st.Code() != tc.code || st.Message() != tc.message {
			t.Fatalf("toStatus(%v) = %v %q, want %v %q", tc.err, st.Code(), st.Message(), tc.code, tc.message)
		}
	}
}

func TestHandlersRequireCaller(t *testing.T) {
	s := newServer(nil)
	if _, err := s.GetChats(context.Background(), &chatrpc.GetChatsRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	if _, err := s.GetUser(context.Background(), &chatrpc.GetUserRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
