package couch

import (
	"context"
	"errors"
	"sync"
	"time"

	"notemv-server/internal/store"

	"github.com/go-kivik/kivik/v4"
)

type watcher struct {
	id       int
	coll     string
	docID    string
	query    bool
	filters  []store.Filter
	onChange func(store.Change)
	onDocs   func([]store.Document)
	dispatch *store.Dispatcher
	owner    *Store

	mu      sync.Mutex
	members map[string]bool
	once    sync.Once
}

func (s *Store) SubscribeDoc(ctx context.Context, coll, id string, fn func(store.Change)) (store.Subscription, error) {
	w := s.addWatcher(coll)
	w.docID = id
	w.onChange = fn

	w.dispatch.Enqueue(func() {
		doc, err := s.Get(context.Background(), coll, id)
		switch {
		case err == nil:
			fn(store.Change{ID: id, Doc: doc})
		case errors.Is(err, store.ErrNotFound):
			fn(store.Change{ID: id, Deleted: true})
		default:
			s.logger.Error().Err(err).Str("coll", coll).Str("id", id).Msg("initial snapshot failed")
		}
	})
	return w, nil
}

func (s *Store) SubscribeQuery(ctx context.Context, coll string, filters []store.Filter, fn func([]store.Document)) (store.Subscription, error) {
	w := s.addWatcher(coll)
	w.query = true
	w.filters = filters
	w.onDocs = fn
	w.members = make(map[string]bool)

	w.dispatch.Enqueue(w.refresh)
	return w, nil
}

func (s *Store) addWatcher(coll string) *watcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	w := &watcher{
		id:       s.nextID,
		coll:     coll,
		dispatch: store.NewDispatcher(),
		owner:    s,
	}
	s.watchers[w.id] = w
	return w
}

func (w *watcher) Close() error {
	w.once.Do(func() {
		w.owner.mu.Lock()
		delete(w.owner.watchers, w.id)
		w.owner.mu.Unlock()
		w.dispatch.Close()
	})
	return nil
}

// refresh re-runs the query and hands the full result to the subscriber.
func (w *watcher) refresh() {
	docs, err := w.owner.Query(context.Background(), w.coll, w.filters...)
	if err != nil {
		w.owner.logger.Error().Err(err).Str("coll", w.coll).Msg("query refresh failed")
		return
	}

	w.mu.Lock()
	w.members = make(map[string]bool, len(docs))
	for _, d := range docs {
		w.members[d.ID()] = true
	}
	w.mu.Unlock()

	w.onDocs(docs)
}

// affected reports whether a change to id can alter the query result.
func (w *watcher) affected(id string, doc store.Document) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if doc != nil && store.MatchAll(doc, w.filters) {
		w.members[id] = true
		return true
	}
	if w.members[id] {
		delete(w.members, id)
		return true
	}
	return false
}

// runFeed follows _changes from "now" and resumes from the last seen
// sequence after any error.
func (s *Store) runFeed(ctx context.Context) {
	defer close(s.done)

	since := "now"
	backoff := time.Second

	for ctx.Err() == nil {
		changes := s.db.Changes(ctx, kivik.Params(map[string]interface{}{
			"feed":         "continuous",
			"since":        since,
			"include_docs": true,
			"heartbeat":    int(feedHeartbeat / time.Millisecond),
		}))

		for changes.Next() {
			backoff = time.Second
			since = changes.Seq()

			var raw map[string]interface{}
			deleted := changes.Deleted()
			if !deleted {
				if err := changes.ScanDoc(&raw); err != nil {
					s.logger.Warn().Err(err).Str("doc", changes.ID()).Msg("failed to decode change")
					continue
				}
			}
			s.fanOut(changes.ID(), raw, deleted)
		}

		err := changes.Err()
		_ = changes.Close()
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn().Err(err).Str("since", since).Dur("backoff", backoff).Msg("changes feed interrupted, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (s *Store) fanOut(key string, raw map[string]interface{}, deleted bool) {
	coll, id, ok := splitID(key)
	if !ok {
		return
	}

	var doc store.Document
	if !deleted && raw != nil {
		doc = strip(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers {
		if w.coll != coll {
			continue
		}
		if !w.query {
			if w.docID != id {
				continue
			}
			change := store.Change{ID: id, Deleted: doc == nil, Doc: store.Clone(doc)}
			fn := w.onChange
			w.dispatch.Enqueue(func() { fn(change) })
			continue
		}
		if w.affected(id, doc) {
			w.dispatch.Enqueue(w.refresh)
		}
	}
}
