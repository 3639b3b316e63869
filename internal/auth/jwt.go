package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "tiretrack"

// JWTClaims are the claims of an access token. SessionID is the hash of
// the session the token was minted from.
type JWTClaims struct {
	UserID      uuid.UUID `json:"sub"`
	SessionID   string    `json:"sid"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the access token lifetime
func (s *JWTService) TTL() time.Duration { return s.ttl }

// SignAccessToken creates a JWT access token bound to the session with the given hash
func (s *JWTService) SignAccessToken(userID uuid.UUID, phoneNumber, sessionHash string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &JWTClaims{
		UserID:      userID,
		SessionID:   sessionHash,
		PhoneNumber: phoneNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

func (s *JWTService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

// VerifyToken verifies and parses a JWT token
func (s *JWTService) VerifyToken(tokenString string) (*JWTClaims, error) {
	return s.parse(tokenString, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
}

// SessionClaims checks the signature and issuer but accepts expired tokens.
// Logout uses it so a stale access token still ends its session.
func (s *JWTService) SessionClaims(tokenString string) (*JWTClaims, error) {
	claims, err := s.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if claims.Issuer != tokenIssuer {
		return nil, fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, opts ...jwt.ParserOption) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, s.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == uuid.Nil || claims.SessionID == "" {
		return nil, fmt.Errorf("token is missing subject or session")
	}

	return claims, nil
}
