// Package store defines the document store contract the rest of the server
// is written against. Backends live in the couch and memory subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Collections used by the server.
const (
	Notes    = "notes"
	Versions = "versions"
	Presence = "presence"
	Projects = "projects"
	Folders  = "folders"
	Tasks    = "tasks"
	Messages = "messages"
	Users    = "users"
)

// FieldID is the document field that carries the document id.
const FieldID = "id"

var ErrNotFound = errors.New("document not found")

// Document is the schemaless record exchanged with a store.
type Document map[string]interface{}

func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value. The store replaces it with
// its own clock reading when the write is applied.
var ServerTimestamp = serverTimestamp{}

type Op int

const (
	OpEq Op = iota
	OpArrayContains
)

type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

func ArrayContains(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

// Match reports whether doc satisfies the filter. Eq with a nil value also
// matches a missing field.
func (f Filter) Match(doc Document) bool {
	v, ok := doc[f.Field]
	switch f.Op {
	case OpEq:
		if f.Value == nil {
			return !ok || v == nil
		}
		return ok && equal(v, f.Value)
	case OpArrayContains:
		arr, isArr := v.([]interface{})
		if !isArr {
			return false
		}
		for _, item := range arr {
			if equal(item, f.Value) {
				return true
			}
		}
	}
	return false
}

func MatchAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(doc) {
			return false
		}
	}
	return true
}

// Change is delivered to document subscribers. Doc is nil when Deleted.
type Change struct {
	ID      string
	Doc     Document
	Deleted bool
}

type Subscription interface {
	Close() error
}

// Store is implemented by every backend. Subscriptions deliver an initial
// snapshot first and then one notification per applied change, including
// changes caused by the subscriber itself. Callbacks of one subscription are
// never run concurrently. Update returns the document as written, with
// ServerTimestamp fields resolved.
type Store interface {
	Create(ctx context.Context, coll string, doc Document) (string, error)
	Put(ctx context.Context, coll, id string, doc Document) error
	Get(ctx context.Context, coll, id string) (Document, error)
	Query(ctx context.Context, coll string, filters ...Filter) ([]Document, error)
	Update(ctx context.Context, coll, id string, fields Document) (Document, error)
	Delete(ctx context.Context, coll, id string) error
	SubscribeDoc(ctx context.Context, coll, id string, fn func(Change)) (Subscription, error)
	SubscribeQuery(ctx context.Context, coll string, filters []Filter, fn func([]Document)) (Subscription, error)
}

// Encode converts a tagged struct into a Document.
func Encode(v interface{}) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from doc.
func Decode(doc Document, v interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Resolve returns a copy of doc with every ServerTimestamp replaced by now.
func Resolve(doc Document, now time.Time) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now.Format(time.RFC3339Nano)
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return copyValue(map[string]interface{}(doc)).(map[string]interface{})
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return Document(copyValue(map[string]interface{}(t)).(map[string]interface{}))
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, item := range t {
			m[k] = copyValue(item)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, item := range t {
			s[i] = copyValue(item)
		}
		return s
	default:
		return v
	}
}

func equal(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// Clock hands out strictly increasing UTC timestamps.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
