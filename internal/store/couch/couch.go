// Package couch implements store.Store on a single CouchDB database. Every
// collection shares the database; documents are keyed "<collection>:<id>"
// and tagged with doc_type. Subscriptions are served from one continuous
// _changes feed per process.
package couch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"notemv-server/internal/store"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	docTypeField   = "doc_type"
	maxConflictTry = 5
	queryLimit     = 10000
	feedHeartbeat  = 30 * time.Second
	maxBackoff     = 30 * time.Second
)

type Store struct {
	db     *kivik.DB
	logger zerolog.Logger
	clock  store.Clock

	mu       sync.Mutex
	watchers map[int]*watcher
	nextID   int

	cancel context.CancelFunc
	done   chan struct{}
}

// Open makes sure dbName exists, creates the doc_type index and starts the
// changes feed. Close stops the feed.
func Open(ctx context.Context, client *kivik.Client, dbName string, logger zerolog.Logger) (*Store, error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to check database: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		logger.Info().Str("db", dbName).Msg("database created")
	}

	db := client.DB(dbName)
	if err := db.CreateIndex(ctx, "", "", map[string]interface{}{
		"fields": []string{docTypeField},
	}); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		logger:   logger.With().Str("component", "couch").Logger(),
		watchers: make(map[int]*watcher),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.runFeed(feedCtx)
	return s, nil
}

func (s *Store) Close() error {
	s.cancel()
	<-s.done

	s.mu.Lock()
	watchers := s.watchers
	s.watchers = make(map[int]*watcher)
	s.mu.Unlock()

	for _, w := range watchers {
		w.dispatch.Close()
	}
	return nil
}

func (s *Store) Create(ctx context.Context, coll string, doc store.Document) (string, error) {
	id := uuid.New().String()
	if err := s.Put(ctx, coll, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Put(ctx context.Context, coll, id string, doc store.Document) error {
	_, err := s.write(ctx, coll, id, func(existing store.Document) (store.Document, error) {
		return doc, nil
	})
	return err
}

func (s *Store) Update(ctx context.Context, coll, id string, fields store.Document) (store.Document, error) {
	return s.write(ctx, coll, id, func(existing store.Document) (store.Document, error) {
		if existing == nil {
			return nil, store.ErrNotFound
		}
		merged := existing
		for k, v := range fields {
			merged[k] = v
		}
		return merged, nil
	})
}

// write applies mutate to the current revision and saves it. A 409 means
// another writer got in first; the write is re-applied on top of theirs.
// The saved document is returned without CouchDB's bookkeeping fields.
func (s *Store) write(ctx context.Context, coll, id string, mutate func(store.Document) (store.Document, error)) (store.Document, error) {
	key := docID(coll, id)

	for attempt := 0; attempt < maxConflictTry; attempt++ {
		existing, rev, err := s.fetch(ctx, key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		next, err := mutate(existing)
		if err != nil {
			return nil, err
		}

		raw := map[string]interface{}(store.Resolve(next, s.clock.Now()))
		raw["_id"] = key
		raw[docTypeField] = coll
		raw[store.FieldID] = id
		if rev != "" {
			raw["_rev"] = rev
		} else {
			delete(raw, "_rev")
		}

		_, err = s.db.Put(ctx, key, raw)
		if err == nil {
			return strip(raw), nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return nil, fmt.Errorf("failed to write %s: %w", key, err)
		}
		s.logger.Debug().Str("doc", key).Int("attempt", attempt+1).Msg("write conflict, retrying")
	}

	return nil, fmt.Errorf("failed to write %s: too many conflicts", key)
}

func (s *Store) Get(ctx context.Context, coll, id string) (store.Document, error) {
	doc, _, err := s.fetch(ctx, docID(coll, id))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) fetch(ctx context.Context, key string) (store.Document, string, error) {
	var raw map[string]interface{}
	if err := s.db.Get(ctx, key).ScanDoc(&raw); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, "", store.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	rev, _ := raw["_rev"].(string)
	return strip(raw), rev, nil
}

func (s *Store) Query(ctx context.Context, coll string, filters ...store.Filter) ([]store.Document, error) {
	rows := s.db.Find(ctx, map[string]interface{}{
		"selector": Selector(coll, filters),
		"limit":    queryLimit,
	})
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var raw map[string]interface{}
		if err := rows.ScanDoc(&raw); err != nil {
			id, _ := rows.ID()
			s.logger.Warn().Err(err).Str("collection", coll).Str("doc", id).Msg("skipping unreadable document")
			continue
		}
		docs = append(docs, strip(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", coll, err)
	}

	return docs, nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	key := docID(coll, id)

	for attempt := 0; attempt < maxConflictTry; attempt++ {
		_, rev, err := s.fetch(ctx, key)
		if err != nil {
			return err
		}

		_, err = s.db.Delete(ctx, key, rev)
		if err == nil {
			return nil
		}
		switch kivik.HTTPStatus(err) {
		case http.StatusNotFound:
			return store.ErrNotFound
		case http.StatusConflict:
			continue
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return fmt.Errorf("failed to delete %s: too many conflicts", key)
}

// Selector builds the Mango selector for a collection query.
func Selector(coll string, filters []store.Filter) map[string]interface{} {
	clauses := []interface{}{
		map[string]interface{}{docTypeField: coll},
	}

	for _, f := range filters {
		switch f.Op {
		case store.OpEq:
			if f.Value == nil {
				clauses = append(clauses, map[string]interface{}{
					"$or": []interface{}{
						map[string]interface{}{f.Field: map[string]interface{}{"$exists": false}},
						map[string]interface{}{f.Field: nil},
					},
				})
				continue
			}
			clauses = append(clauses, map[string]interface{}{f.Field: map[string]interface{}{"$eq": f.Value}})
		case store.OpArrayContains:
			clauses = append(clauses, map[string]interface{}{
				f.Field: map[string]interface{}{"$elemMatch": map[string]interface{}{"$eq": f.Value}},
			})
		}
	}

	return map[string]interface{}{"$and": clauses}
}

func docID(coll, id string) string {
	return coll + ":" + id
}

// splitID is the inverse of docID.
func splitID(key string) (coll, id string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func strip(raw map[string]interface{}) store.Document {
	doc := make(store.Document, len(raw))
	for k, v := range raw {
		switch k {
		case "_id", "_rev", docTypeField:
			continue
		}
		doc[k] = v
	}
	if _, ok := doc[store.FieldID]; !ok {
		if key, ok := raw["_id"].(string); ok {
			if _, id, ok := splitID(key); ok {
				doc[store.FieldID] = id
			}
		}
	}
	return doc
}
