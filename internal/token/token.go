// Package token derives the per-dispatch tokens that authorize
// unsubscribe and confirmation links without a login.
//
// A token binds a mailed object to one recipient and to that recipient's
// creation timestamp. Deleting and recreating a recipient therefore
// revokes every token issued for the old record. Rotating the secret
// revokes all tokens.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/ignite/dispatch/internal/domain"
)

// CreatedAtLayout formats the recipient fingerprint to second precision.
const CreatedAtLayout = "2006-01-02-15-04-05"

// sep cannot appear in any component: the content registry rejects NUL in
// content types and object ids, and the other fields are formatted here.
const sep = "\x00"

// ErrEmptySecret is returned by New when no secret is configured.
var ErrEmptySecret = errors.New("token secret is empty")

// Generator issues and verifies tokens under one process-wide secret.
type Generator struct {
	secret []byte
}

// New creates a generator. The secret must be non-empty.
func New(secret string) (*Generator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Generator{secret: []byte(secret)}, nil
}

// Generate returns the hex token for (ref, recipient). It is deterministic
// for fixed inputs.
func (g *Generator) Generate(ref domain.Reference, r domain.Recipient) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(payload(ref, r)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the token and compares it in constant time.
func (g *Generator) Verify(ref domain.Reference, r domain.Recipient, candidate string) bool {
	expected := g.Generate(ref, r)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

func payload(ref domain.Reference, r domain.Recipient) string {
	return ref.ContentType + sep +
		ref.ObjectID + sep +
		strconv.FormatInt(r.ID, 10) + sep +
		r.CreatedAt.UTC().Truncate(time.Second).Format(CreatedAtLayout)
}
