package auth

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/session"
)

func TestResolveAPIKeyWinsOverSessionCookieAndLocalIPC(t *testing.T) {
	hash, err := HashPassword("secret-value", 19*1024, 2, 1, 16, 32)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	store := &fakeAPIKeyStore{hash: hash, identity: testIdentity()}
	m := New(DefaultConfig(), []byte("secret"), testHashKeyHex, nil, store, nil, zerolog.Nop())

	got, err := m.Resolve(context.Background(), Credentials{
		APIKeyID:      "key-1",
		APIKeySecret:  "secret-value",
		SessionCookie: "some-cookie-value",
		IsLocalIPC:    true,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Method != MethodAPIKey {
		t.Errorf("Method = %q, want API_KEY", got.Method)
	}
}

func TestResolveSessionCookieWinsOverLocalIPC(t *testing.T) {
	store := session.NewMemoryStore()
	m := newTestManager(t, store)
	identity := testIdentity()
	tok, err := m.GenerateAccessToken(context.Background(), identity, "device-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	got, err := m.Resolve(context.Background(), Credentials{SessionCookie: tok, IsLocalIPC: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.UserUUID != identity.UserUUID {
		t.Errorf("UserUUID = %v, want %v", got.UserUUID, identity.UserUUID)
	}
}

func TestResolvePropagatesAuthenticationFailure(t *testing.T) {
	m := newTestManager(t, session.NewMemoryStore())
	if _, err := m.Resolve(context.Background(), Credentials{BearerToken: "not-a-real-token"}); err == nil {
		t.Error("Resolve() with garbage bearer token: want error")
	}
}
