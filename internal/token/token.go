// Package token is the single-use verification token store. Tokens are
// short-lived and consumed on any use attempt, valid or not, which makes
// replay impossible even for expired tokens.
package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/echoboard/echoboard/internal/dynamo"
)

const (
	// DefaultSize is the generated token length.
	DefaultSize = 6
	// DefaultExpiry bounds a token's useful life.
	DefaultExpiry = 15 * time.Minute
)

// Token is a single-use verification token. TargetID and the token string
// form the composite key; both are kept in the body so a consumed record
// can still be verified against the request.
type Token struct {
	TargetID string `dynamodbav:"targetId"`
	Token    string `dynamodbav:"token"`
	TTL      int64  `dynamodbav:"ttlEpochSec"`
}

// Store issues and consumes tokens.
type Store struct {
	store  dynamo.Store
	table  string
	size   int
	expiry time.Duration
	now    func() time.Time
}

// New creates a token Store. Zero size/expiry fall back to defaults.
func New(store dynamo.Store, table string, size int, expiry time.Duration) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Store{
		store:  store,
		table:  table,
		size:   size,
		expiry: expiry,
		now:    time.Now,
	}
}

// Create issues a token for the target identified by the joined parts.
// Collisions are astronomically unlikely and not guarded; the write is
// unconditional.
func (s *Store) Create(ctx context.Context, targetIDParts ...string) (Token, error) {
	tok := Token{
		TargetID: strings.Join(targetIDParts, "-"),
		Token:    generate(s.size),
		TTL:      s.now().Add(s.expiry).Unix(),
	}
	it, err := attributevalue.MarshalMap(tok)
	if err != nil {
		return Token{}, fmt.Errorf("encode token: %w", err)
	}
	if err := s.store.Put(ctx, s.table, it, dynamo.Cond{}); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Use atomically consumes the token and reports whether it was valid:
// a record existed, its stored target and token match the request, and its
// TTL had not elapsed. The record is deleted regardless of validity.
func (s *Store) Use(ctx context.Context, tokenStr string, targetIDParts ...string) (bool, error) {
	targetID := strings.Join(targetIDParts, "-")
	old, err := s.store.Delete(ctx, s.table, dynamo.Key{
		"targetId": targetID,
		"token":    tokenStr,
	}, dynamo.Cond{})
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	var tok Token
	if err := attributevalue.UnmarshalMap(old, &tok); err != nil {
		return false, fmt.Errorf("decode token: %w", err)
	}
	return tok.TargetID == targetID &&
		tok.Token == tokenStr &&
		tok.TTL >= s.now().Unix(), nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func generate(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
