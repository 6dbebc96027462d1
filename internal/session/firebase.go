package session

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/option"
)

// IDTokenVerifier is the part of the Firebase auth client used here.
type IDTokenVerifier interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier accepts ID tokens minted by Firebase Authentication.
type FirebaseVerifier struct {
	client IDTokenVerifier
}

// NewFirebaseVerifier builds an auth client for the project. Empty
// credentials fall back to application default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsJSON string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func NewFirebaseVerifierWithClient(client IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (Session, error) {
	if raw == "" {
		return Session{}, ErrMissingToken
	}
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, raw)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	s := Session{UserID: token.UID, ExpiresAt: time.Unix(token.Expires, 0)}
	if email, ok := token.Claims["email"].(string); ok {
		s.Email = email
	}
	return s, nil
}
