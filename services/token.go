package services

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"phixall-server/config"
	"phixall-server/types"
)

// TokenService verifies the bearer tokens the identity provider hands to
// clients. Registration, login and token issuance live outside this server;
// all we need is to recognize a signed (user, role) pair.
type TokenService struct {
	secret []byte
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Secret),
	}
}

func (s *TokenService) Parse(tokenString string) (*types.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &types.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	claims, ok := token.Claims.(*types.Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
