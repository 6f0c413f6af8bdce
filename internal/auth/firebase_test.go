package auth

import (
	"context"
	"errors"
	"testing"

	fbAuth "firebase.google.com/go/v4/auth"

	"github.com/hitoshi/memoria/internal/model"
)

type mockVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*fbAuth.Token, error)
}

func (m *mockVerifier) VerifyIDToken(ctx context.Context, idToken string) (*fbAuth.Token, error) {
	return m.verifyFn(ctx, idToken)
}

var _ idTokenVerifier = (*mockVerifier)(nil)

func TestFirebaseProvider_Exchange_MapsClaims(t *testing.T) {
	provider := newFirebaseProvider(&mockVerifier{
		verifyFn: func(_ context.Context, idToken string) (*fbAuth.Token, error) {
			if idToken != "id-token" {
				t.Errorf("idToken = %q", idToken)
			}
			return &fbAuth.Token{
				UID: "fb-uid-1",
				Claims: map[string]interface{}{
					"name":    "Ana",
					"email":   "ana@x.io",
					"picture": "https://example.com/a.png",
				},
			}, nil
		},
	}, "http://localhost:3000")

	profile, err := provider.Exchange(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if profile.SubjectID != "fb-uid-1" || profile.DisplayName != "Ana" ||
		profile.Email != "ana@x.io" || profile.PhotoURL != "https://example.com/a.png" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestFirebaseProvider_Exchange_Failures(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		verify func(context.Context, string) (*fbAuth.Token, error)
	}{
		{
			name:  "empty token",
			token: "",
			verify: func(context.Context, string) (*fbAuth.Token, error) {
				t.Error("verifier must not be called")
				return nil, nil
			},
		},
		{
			name:  "invalid token",
			token: "bad",
			verify: func(context.Context, string) (*fbAuth.Token, error) {
				return nil, errors.New("ID token has expired")
			},
		},
		{
			name:  "empty uid",
			token: "t",
			verify: func(context.Context, string) (*fbAuth.Token, error) {
				return &fbAuth.Token{}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFirebaseProvider(&mockVerifier{verifyFn: tt.verify}, "http://localhost:3000")
			_, err := provider.Exchange(context.Background(), tt.token)
			if !model.IsAuthProviderError(err) {
				t.Errorf("err = %v, want AuthProviderError", err)
			}
		})
	}
}

func TestFirebaseProvider_AuthCodeURL_PointsToFrontend(t *testing.T) {
	provider := newFirebaseProvider(&mockVerifier{}, "http://localhost:3000")

	if got := provider.AuthCodeURL("ignored"); got != "http://localhost:3000/login" {
		t.Errorf("AuthCodeURL = %q", got)
	}
}

func TestNewFirebaseProvider_RequiresServiceAccount(t *testing.T) {
	if _, err := NewFirebaseProvider(context.Background(), nil, "http://localhost:3000"); err == nil {
		t.Error("expected error for nil service account")
	}
}
