package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"snapchart-proxy/internal/model"
)

// Verifier validates externally issued identity tokens against the issuer's
// rotating key set. It holds no state between calls.
type Verifier struct {
	jwksURL  string
	issuer   string
	audience string
	client   *http.Client
	now      func() time.Time
}

func NewVerifier(jwksURL string, issuer string, audience string, client *http.Client) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}

	return &Verifier{
		jwksURL:  jwksURL,
		issuer:   issuer,
		audience: audience,
		client:   client,
		now:      time.Now,
	}
}

// Verify checks structure, expiry, audience, issuer and signature, in that
// order, and returns the decoded claims. Each check failing maps to its own
// sentinel error so callers can tell replayed, mis-targeted and forged
// tokens apart.
func (v *Verifier) Verify(ctx context.Context, raw string) (*model.TokenClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTokenInvalidFormat, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: exp claim missing", model.ErrTokenExpired)
	}
	if exp.Before(v.now()) {
		return nil, model.ErrTokenExpired
	}

	aud, _ := claims.GetAudience()
	if !containsAudience(aud, v.audience) {
		return nil, model.ErrTokenWrongAudience
	}

	iss, err := claims.GetIssuer()
	if err != nil || iss != v.issuer {
		return nil, model.ErrTokenWrongIssuer
	}

	if _, err := parser.Parse(raw, func(token *jwt.Token) (any, error) {
		return v.signingKey(ctx, token)
	}); err != nil {
		switch {
		case errors.Is(err, model.ErrTokenKeyNotFound):
			return nil, model.ErrTokenKeyNotFound
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, model.ErrTokenBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, model.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", model.ErrTokenInvalidFormat, err)
		default:
			return nil, fmt.Errorf("%w: %v", model.ErrTokenBadSignature, err)
		}
	}

	return claimsToModel(claims)
}

func (v *Verifier) signingKey(ctx context.Context, token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, model.ErrTokenKeyNotFound
	}

	set, err := fetchKeySet(ctx, v.client, v.jwksURL)
	if err != nil {
		return nil, err
	}

	pub, ok := set.publicKey(kid)
	if !ok {
		return nil, model.ErrTokenKeyNotFound
	}

	return pub, nil
}

func claimsToModel(claims jwt.MapClaims) (*model.TokenClaims, error) {
	uid, _ := claims["user_id"].(string)
	if uid == "" {
		uid, _ = claims["sub"].(string)
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: no subject", model.ErrTokenInvalidFormat)
	}

	email, _ := claims["email"].(string)

	return &model.TokenClaims{UID: uid, Email: email}, nil
}

func containsAudience(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}

	return false
}
