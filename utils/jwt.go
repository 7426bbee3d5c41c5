package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the caller on every authenticated request.
type Claims struct {
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ProfileID string `json:"profileId"`
	jwt.RegisteredClaims
}

// ReviewClaims authorize a single feedback submission from a review email.
type ReviewClaims struct {
	ParticipantID string `json:"pid"`
	EventID       string `json:"eid"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (ti *TokenIssuer) GenerateToken(userID int64, email, role, profileID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	})
	return token.SignedString(ti.secret)
}

func (ti *TokenIssuer) VerifyToken(token string) (*Claims, error) {
	var claims Claims
	if err := ti.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, errors.New("invalid token claims")
	}
	return &claims, nil
}

// GenerateReviewToken is valid for ttl and scoped to one participant.
func (ti *TokenIssuer) GenerateReviewToken(participantID, eventID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ReviewClaims{
		ParticipantID: participantID,
		EventID:       eventID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "review",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(ti.secret)
}

func (ti *TokenIssuer) VerifyReviewToken(token string) (*ReviewClaims, error) {
	var claims ReviewClaims
	if err := ti.parse(token, &claims); err != nil {
		return nil, err
	}
	if claims.Subject != "review" || claims.ParticipantID == "" {
		return nil, errors.New("invalid review token")
	}
	return &claims, nil
}

func (ti *TokenIssuer) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	})
	if err != nil {
		return errors.New("could not parse token")
	}
	// a valid signature can still carry an expired token
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}
