package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Memory is an in-process Store with the same conditional-write semantics
// as DynamoDB. It backs self-hosted single-node deployments and tests.
type Memory struct {
	mu     sync.Mutex
	tables map[string]map[string]Item

	// BatchPageSize caps how many keys a single batch round-trip services,
	// forcing the unprocessed-retry path. Zero means unlimited.
	BatchPageSize int

	batchRoundTrips int
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]Item)}
}

// BatchRoundTrips reports how many batch round-trips have been made.
func (m *Memory) BatchRoundTrips() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchRoundTrips
}

func (m *Memory) table(name string) map[string]Item {
	t, ok := m.tables[name]
	if !ok {
		t = make(map[string]Item)
		m.tables[name] = t
	}
	return t
}

// Get returns the item under key, or nil when absent.
func (m *Memory) Get(_ context.Context, table string, key Key, _ bool) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.table(table)[encodeKey(key)]
	if !ok {
		return nil, nil
	}
	return cloneItem(it), nil
}

// Put writes item when cond holds.
func (m *Memory) Put(_ context.Context, table string, item Item, cond Cond) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	k := itemKey(table, item)
	if err := cond.check(t[k]); err != nil {
		return err
	}
	t[k] = cloneItem(item)
	return nil
}

// Update applies deltas to the item under key when cond holds.
func (m *Memory) Update(_ context.Context, table string, key Key, upd Update, cond Cond) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	k := encodeKey(key)
	existing := t[k]
	if err := cond.check(existing); err != nil {
		return err
	}

	// UpdateItem upserts: an absent item starts from its key attributes.
	var it Item
	if existing != nil {
		it = cloneItem(existing)
	} else {
		it = keyItem(key)
	}
	for attr, v := range upd.Set {
		it[attr] = v
	}
	for attr, add := range upd.AddToSet {
		it[attr] = &types.AttributeValueMemberSS{Value: setUnion(stringSet(it[attr]), add)}
	}
	for attr, del := range upd.DeleteFromSet {
		remaining := setDiff(stringSet(it[attr]), del)
		if len(remaining) == 0 {
			delete(it, attr)
		} else {
			it[attr] = &types.AttributeValueMemberSS{Value: remaining}
		}
	}
	t[k] = it
	return nil
}

// Delete removes the item under key when cond holds and returns the old item.
func (m *Memory) Delete(_ context.Context, table string, key Key, cond Cond) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	k := encodeKey(key)
	existing := t[k]
	if err := cond.check(existing); err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	delete(t, k)
	return existing, nil
}

// TransactPuts commits every put or none. Two puts addressing the same item
// are rejected outright, matching DynamoDB's transaction validation.
func (m *Memory) TransactPuts(_ context.Context, puts []TransactPut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{}, len(puts))
	for _, p := range puts {
		k := p.Table + "\x00" + itemKey(p.Table, p.Item)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("transact puts: duplicate item key in transaction")
		}
		seen[k] = struct{}{}
		t := m.table(p.Table)
		if err := p.Cond.check(t[itemKey(p.Table, p.Item)]); err != nil {
			return fmt.Errorf("transact puts: %w", err)
		}
	}
	for _, p := range puts {
		m.table(p.Table)[itemKey(p.Table, p.Item)] = cloneItem(p.Item)
	}
	return nil
}

// BatchGet fetches every key, simulating partial round-trips when
// BatchPageSize is set.
func (m *Memory) BatchGet(_ context.Context, table string, keys []Key, _ bool) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	var items []Item
	pending := keys
	for len(pending) > 0 {
		m.batchRoundTrips++
		chunk := pending
		if m.BatchPageSize > 0 && len(chunk) > m.BatchPageSize {
			chunk = chunk[:m.BatchPageSize]
		}
		for _, key := range chunk {
			if it, ok := t[encodeKey(key)]; ok {
				items = append(items, cloneItem(it))
			}
		}
		pending = pending[len(chunk):]
	}
	return items, nil
}

// BatchDelete removes every key, simulating partial round-trips when
// BatchPageSize is set.
func (m *Memory) BatchDelete(_ context.Context, table string, keys []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	pending := keys
	for len(pending) > 0 {
		m.batchRoundTrips++
		chunk := pending
		if m.BatchPageSize > 0 && len(chunk) > m.BatchPageSize {
			chunk = chunk[:m.BatchPageSize]
		}
		for _, key := range chunk {
			delete(t, encodeKey(key))
		}
		pending = pending[len(chunk):]
	}
	return nil
}

// QueryIndex scans the table for attr == value; index layout is irrelevant
// in memory.
func (m *Memory) QueryIndex(_ context.Context, table, _, attr, value string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []Item
	for _, it := range m.table(table) {
		if attrString(it[attr]) == value {
			items = append(items, cloneItem(it))
		}
	}
	return items, nil
}

// check evaluates the condition against the current item (nil when absent).
func (c Cond) check(existing Item) error {
	if c.KeyAbsent && existing != nil {
		return ErrConditionFailed
	}
	if c.KeyPresent && existing == nil {
		return ErrConditionFailed
	}
	if len(c.FieldEquals) == 0 {
		return nil
	}
	if existing == nil {
		if c.OrKeyAbsent {
			return nil
		}
		return ErrConditionFailed
	}
	for attr, want := range c.FieldEquals {
		if attrString(existing[attr]) != want {
			return ErrConditionFailed
		}
	}
	return nil
}

// itemKey derives the item's key encoding from its key attributes. Tables
// are keyed the way the directory and token stores key them.
func itemKey(table string, it Item) string {
	key := Key{}
	for _, attr := range tableKeyAttrs(table, it) {
		key[attr] = attrString(it[attr])
	}
	return encodeKey(key)
}

// tableKeyAttrs infers key attributes from the item shape: a composite
// (targetId, token) pair when both are present, otherwise the single
// well-known partition key attribute.
func tableKeyAttrs(_ string, it Item) []string {
	if _, ok := it["targetId"]; ok {
		if _, ok := it["token"]; ok {
			return []string{"targetId", "token"}
		}
	}
	if _, ok := it["slug"]; ok {
		return []string{"slug"}
	}
	return []string{"projectId"}
}

func encodeKey(key Key) string {
	attrs := make([]string, 0, len(key))
	for attr := range key {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, attr+"="+key[attr])
	}
	return strings.Join(parts, "\x00")
}

func attrString(v types.AttributeValue) string {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return av.Value
	case *types.AttributeValueMemberN:
		return av.Value
	default:
		return ""
	}
}

func stringSet(v types.AttributeValue) []string {
	if ss, ok := v.(*types.AttributeValueMemberSS); ok {
		return ss.Value
	}
	return nil
}

func setUnion(set, add []string) []string {
	out := append([]string(nil), set...)
	for _, v := range add {
		found := false
		for _, existing := range out {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

func setDiff(set, del []string) []string {
	var out []string
	for _, v := range set {
		remove := false
		for _, d := range del {
			if v == d {
				remove = true
				break
			}
		}
		if !remove {
			out = append(out, v)
		}
	}
	return out
}

func cloneItem(it Item) Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
