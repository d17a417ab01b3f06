package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that are malformed, signed with
// another key or issued for another table.
var ErrInvalidToken = errors.New("invalid table token")

const issuer = "passplay"

// TableTokens issues and checks the tokens that authorize changes to a table.
// Whoever opened a table holds its token; nobody else can place marks on it.
// Tokens carry no expiry: a token is good for as long as its table exists.
type TableTokens struct {
	secret []byte
	now    func() time.Time
}

// NewTableTokens creates a token issuer signing with secret (HS256).
func NewTableTokens(secret string) *TableTokens {
	return &TableTokens{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed token for tableID.
func (t *TableTokens) Issue(tableID string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  tableID,
		IssuedAt: jwt.NewNumericDate(now),
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign table token: %w", err)
	}
	return signed, nil
}

// Verify checks that raw is a valid token for tableID.
func (t *TableTokens) Verify(raw, tableID string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(tableID),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
