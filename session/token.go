package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	errEmptyToken = errors.New("empty session token")
	errBadClaims  = errors.New("invalid session claims")
)

// Signer turns session records into HS256-signed cookie values and back.
type Signer struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewSigner creates a Signer keyed by the session secret.
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}
}

// Sign encodes rec as a compact JWT.
func (s *Signer) Sign(rec Record) (string, error) {
	claims := jwt.MapClaims{
		"sub": rec.User,
		"sid": rec.ID,
		"iat": rec.CreatedAt.Unix(),
		"exp": rec.ExpiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies token and returns the session id and user it names.
func (s *Signer) Parse(token string) (sid, user string, err error) {
	if token == "" {
		return "", "", errEmptyToken
	}
	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errBadClaims
	}

	now := s.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", "", errors.New("session expired")
	}
	if !claims.VerifyIssuedAt(now+60, false) {
		return "", "", errors.New("session used before issued")
	}

	sid, _ = claims["sid"].(string)
	user, _ = claims["sub"].(string)
	if sid == "" || user == "" {
		return "", "", errBadClaims
	}
	return sid, user, nil
}
