package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/PaulBabatuyi/relaychat/internal/auth"
)

func TestDevTokenCommand(t *testing.T) {
	t.Setenv("APP_SECRET", "app")
	t.Setenv("IDP_HMAC_SECRET", "idp")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devtoken", "--sub", "uid-1", "--email", "one@example.com", "--name", "One"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("devtoken: %v", err)
	}

	v, err := auth.NewVerifier(auth.VerifierConfig{HMACSecret: []byte("idp")})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	id, err := v.Verify(context.Background(), strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("printed token does not verify: %v", err)
	}
	if id.UserID != "uid-1" || id.Email != "one@example.com" || id.Name != "One" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestDevTokenRequiresFlags(t *testing.T) {
	t.Setenv("APP_SECRET", "app")
	t.Setenv("IDP_HMAC_SECRET", "idp")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"devtoken", "--sub", "uid-1"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an error without --email")
	}
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("APP_SECRET", "")
	t.Setenv("IDP_HMAC_SECRET", "idp")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "APP_SECRET") {
		t.Fatalf("expected APP_SECRET error, got %v", err)
	}
}
