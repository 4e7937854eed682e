package repository

import (
	"errors"
	"sort"

	"notemv-server/internal/store"
)

// ErrNotFound is returned (wrapped) when a record is missing.
var ErrNotFound = store.ErrNotFound

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// encodeNew prepares a struct for a create: the store assigns the id and the
// timestamps.
func encodeNew(v interface{}) (store.Document, error) {
	doc, err := store.Encode(v)
	if err != nil {
		return nil, err
	}
	delete(doc, store.FieldID)
	doc["created_at"] = store.ServerTimestamp
	doc["updated_at"] = store.ServerTimestamp
	return doc, nil
}

func decodeAll[T any](docs []store.Document) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := store.Decode(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, nil
}

func sortBy[T any](items []*T, less func(a, b *T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// optional maps a nil or empty pointer to a null field.
func optional(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
