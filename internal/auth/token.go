// Package auth resolves the calling actor from bearer tokens issued by
// the identity provider and enforces role and ownership checks.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

type Claims struct {
	UserID string      `json:"id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify validates a raw token and returns the actor it names. Every
// failure is reported as domain.ErrUnauthenticated.
func (v *Verifier) Verify(raw string) (domain.Actor, error) {
	if raw == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	if claims.UserID == "" || !claims.Role.Valid() {
		return domain.Actor{}, fmt.Errorf("%w: incomplete claims", domain.ErrUnauthenticated)
	}

	return domain.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// VerifyRequest reads the bearer token from the Authorization header,
// falling back to the access_token query parameter when allowQuery is
// set (browsers cannot attach headers to WebSocket handshakes).
func (v *Verifier) VerifyRequest(r *http.Request, allowQuery bool) (domain.Actor, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return domain.Actor{}, err
	}
	if raw == "" && allowQuery {
		raw = r.URL.Query().Get("access_token")
	}
	return v.Verify(raw)
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.Join(domain.ErrUnauthenticated, errors.New("malformed authorization header"))
	}
	return strings.TrimSpace(token), nil
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(actor domain.Actor) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: actor.ID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
