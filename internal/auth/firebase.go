package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbAuth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hitoshi/memoria/internal/config"
	"github.com/hitoshi/memoria/internal/model"
)

// idTokenVerifier はFirebase IDトークンの検証を行う。*fbAuth.Clientが満たす。
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbAuth.Token, error)
}

// FirebaseProvider はFirebase Admin SDKでIDトークンを検証するIdPアダプタ。
// 同意画面はクライアントSDKが担当するため、Exchangeは発行済みIDトークンを受け取る。
type FirebaseProvider struct {
	verifier    idTokenVerifier
	frontendURL string
}

// NewFirebaseProvider はサービスアカウント認証情報からFirebaseProviderを生成する。
func NewFirebaseProvider(ctx context.Context, sa *config.ServiceAccount, frontendURL string) (*FirebaseProvider, error) {
	if sa == nil {
		return nil, errors.New("firebase service account is not configured")
	}

	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: sa.ProjectID},
		option.WithCredentialsJSON(sa.Raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}

	return newFirebaseProvider(client, frontendURL), nil
}

func newFirebaseProvider(verifier idTokenVerifier, frontendURL string) *FirebaseProvider {
	return &FirebaseProvider{verifier: verifier, frontendURL: frontendURL}
}

// AuthCodeURL はフロントエンドのログイン画面を返す。stateは使用しない。
func (p *FirebaseProvider) AuthCodeURL(_ string) string {
	return p.frontendURL + "/login"
}

// Exchange はIDトークンを検証し、クレームからUpstreamProfileを生成する。
func (p *FirebaseProvider) Exchange(ctx context.Context, idToken string) (*UpstreamProfile, error) {
	if idToken == "" {
		return nil, &model.AuthProviderError{Op: "verify_id_token", Err: errors.New("id token is empty")}
	}

	token, err := p.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, &model.AuthProviderError{Op: "verify_id_token", Err: err}
	}
	if token == nil || token.UID == "" {
		return nil, &model.AuthProviderError{Op: "verify_id_token", Err: errors.New("empty uid in id token")}
	}

	return &UpstreamProfile{
		SubjectID:   token.UID,
		DisplayName: stringClaim(token.Claims, "name"),
		Email:       stringClaim(token.Claims, "email"),
		PhotoURL:    stringClaim(token.Claims, "picture"),
		AccessToken: idToken,
	}, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// compile-time interface check
var _ IdentityProvider = (*FirebaseProvider)(nil)
