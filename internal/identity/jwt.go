package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/sentinel"
)

// Claims are the JWT claims carried by platform session tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 session tokens and resolves the subject against
// the user directory. Role and KYC always come from the directory, not the
// token, so revocations and role changes take effect immediately.
type JWTProvider struct {
	signingKey []byte
	directory  Directory
}

func NewJWTProvider(signingKey string, directory Directory) *JWTProvider {
	return &JWTProvider{
		signingKey: []byte(signingKey),
		directory:  directory,
	}
}

func (p *JWTProvider) Resolve(ctx context.Context, token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token")
	}

	userID, err := domain.ParseUserID(claims.UserID)
	if err != nil {
		return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "malformed subject claim")
	}

	ident, err := p.directory.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Identity{}, dErrors.New(dErrors.CodeUnauthorized, "unknown user")
		}
		return Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	return ident, nil
}
