// Package dynamo provides the conditional-write key-value backend the
// directory and token stores run on: a DynamoDB implementation and an
// in-memory implementation with the same conditional semantics for
// self-hosted mode and tests.
package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a stored record in the backend's attribute representation.
type Item = map[string]types.AttributeValue

// Key identifies an item by its string key attributes.
type Key map[string]string

// ErrConditionFailed is returned when a write's precondition did not hold.
// It is distinguishable from every other backend error via errors.Is.
var ErrConditionFailed = errors.New("condition failed")

// Cond is a write precondition the backend evaluates atomically with the
// write. The zero value is unconditional.
type Cond struct {
	// KeyAttr is the partition key attribute name, required whenever
	// KeyAbsent or KeyPresent is set.
	KeyAttr string
	// KeyAbsent requires that no item exists under the key.
	KeyAbsent bool
	// KeyPresent requires that an item exists under the key.
	KeyPresent bool
	// FieldEquals requires each named attribute to equal the given string.
	FieldEquals map[string]string
	// OrKeyAbsent widens FieldEquals to (item absent OR fields equal),
	// allowing an owner to reclaim its own item mid-migration.
	OrKeyAbsent bool
}

// Update describes attribute deltas applied by a conditional update.
type Update struct {
	// Set overwrites attributes.
	Set Item
	// AddToSet unions values into string-set attributes.
	AddToSet map[string][]string
	// DeleteFromSet removes values from string-set attributes.
	DeleteFromSet map[string][]string
}

// TransactPut is one member of an all-or-nothing multi-item write.
type TransactPut struct {
	Table string
	Item  Item
	Cond  Cond
}

// Store is the minimal backend surface required by the directory and token
// stores. Batch operations retry any unprocessed subset internally until
// fully serviced; callers never see partial results.
type Store interface {
	// Get returns the item under key, or nil when absent.
	Get(ctx context.Context, table string, key Key, consistent bool) (Item, error)
	// Put writes item when cond holds.
	Put(ctx context.Context, table string, item Item, cond Cond) error
	// Update applies deltas to the item under key when cond holds.
	Update(ctx context.Context, table string, key Key, upd Update, cond Cond) error
	// Delete removes the item under key when cond holds, returning the old
	// item (nil when nothing existed).
	Delete(ctx context.Context, table string, key Key, cond Cond) (Item, error)
	// TransactPuts commits every put or none. A failed member precondition
	// surfaces as ErrConditionFailed.
	TransactPuts(ctx context.Context, puts []TransactPut) error
	// BatchGet fetches every key, retrying unprocessed keys until done.
	BatchGet(ctx context.Context, table string, keys []Key, consistent bool) ([]Item, error)
	// BatchDelete removes every key, retrying unprocessed deletes until done.
	BatchDelete(ctx context.Context, table string, keys []Key) error
	// QueryIndex drains a secondary-index query for attr == value.
	QueryIndex(ctx context.Context, table, index, attr, value string) ([]Item, error)
}

// S builds a string attribute value.
func S(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// N builds a numeric attribute value.
func N(v string) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: v}
}

func keyItem(key Key) Item {
	it := make(Item, len(key))
	for k, v := range key {
		it[k] = S(v)
	}
	return it
}
