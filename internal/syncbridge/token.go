package syncbridge

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the uploading device and the session being delivered
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// TokenSigner issues short-lived HS256 bearer tokens for uploads
type TokenSigner struct {
	secret   []byte
	deviceID string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenSigner creates a signer. A zero ttl defaults to five minutes.
func NewTokenSigner(secret, deviceID string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenSigner{
		secret:   []byte(secret),
		deviceID: deviceID,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Sign returns a token whose subject is the session id
func (s *TokenSigner) Sign(sessionID string) (string, error) {
	now := s.now()
	claims := Claims{
		DeviceID: s.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a token issued with the same secret
func (s *TokenSigner) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
