// Package memory is an in-process store.Store. It backs the test suites and
// single-node development runs without CouchDB.
package memory

import (
	"context"
	"sync"

	"notemv-server/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu      sync.Mutex
	clock   store.Clock
	colls   map[string]map[string]store.Document
	order   map[string][]string
	subs    map[string]map[int]*subscriber
	nextSub int
}

type subscriber struct {
	id         int
	coll       string
	docID      string
	filters    []store.Filter
	query      bool
	members    map[string]bool
	onChange   func(store.Change)
	onSnapshot func([]store.Document)
	dispatch   *store.Dispatcher
	owner      *Store
	once       sync.Once
}

func New() *Store {
	return &Store{
		colls: make(map[string]map[string]store.Document),
		order: make(map[string][]string),
		subs:  make(map[string]map[int]*subscriber),
	}
}

func (s *Store) Create(ctx context.Context, coll string, doc store.Document) (string, error) {
	id := uuid.New().String()
	if err := s.Put(ctx, coll, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Put(ctx context.Context, coll, id string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := store.Resolve(doc, s.clock.Now())
	resolved[store.FieldID] = id
	s.write(coll, id, resolved)
	return nil
}

func (s *Store) Get(ctx context.Context, coll, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.colls[coll][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Clone(doc), nil
}

func (s *Store) Query(ctx context.Context, coll string, filters ...store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.query(coll, filters), nil
}

func (s *Store) Update(ctx context.Context, coll, id string, fields store.Document) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.colls[coll][id]
	if !ok {
		return nil, store.ErrNotFound
	}

	merged := store.Clone(existing)
	for k, v := range store.Resolve(fields, s.clock.Now()) {
		merged[k] = v
	}
	merged[store.FieldID] = id
	s.write(coll, id, merged)
	return store.Clone(merged), nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.colls[coll][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.colls[coll], id)
	ids := s.order[coll]
	for i, existing := range ids {
		if existing == id {
			s.order[coll] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}

	s.notify(coll, id, nil)
	return nil
}

func (s *Store) SubscribeDoc(ctx context.Context, coll, id string, fn func(store.Change)) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.addSubscriber(coll)
	sub.docID = id
	sub.onChange = fn

	initial := store.Change{ID: id, Deleted: true}
	if doc, ok := s.colls[coll][id]; ok {
		initial = store.Change{ID: id, Doc: store.Clone(doc)}
	}
	sub.dispatch.Enqueue(func() { fn(initial) })
	return sub, nil
}

func (s *Store) SubscribeQuery(ctx context.Context, coll string, filters []store.Filter, fn func([]store.Document)) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.addSubscriber(coll)
	sub.query = true
	sub.filters = filters
	sub.onSnapshot = fn
	sub.members = make(map[string]bool)

	docs := s.query(coll, filters)
	for _, d := range docs {
		sub.members[d.ID()] = true
	}
	sub.dispatch.Enqueue(func() { fn(docs) })
	return sub, nil
}

// Len returns the number of documents in coll.
func (s *Store) Len(coll string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.colls[coll])
}

func (s *Store) addSubscriber(coll string) *subscriber {
	s.nextSub++
	sub := &subscriber{
		id:       s.nextSub,
		coll:     coll,
		dispatch: store.NewDispatcher(),
		owner:    s,
	}
	if s.subs[coll] == nil {
		s.subs[coll] = make(map[int]*subscriber)
	}
	s.subs[coll][sub.id] = sub
	return sub
}

// write must be called with s.mu held.
func (s *Store) write(coll, id string, doc store.Document) {
	if s.colls[coll] == nil {
		s.colls[coll] = make(map[string]store.Document)
	}
	if _, exists := s.colls[coll][id]; !exists {
		s.order[coll] = append(s.order[coll], id)
	}
	s.colls[coll][id] = doc
	s.notify(coll, id, doc)
}

// notify must be called with s.mu held. A nil doc means deleted.
func (s *Store) notify(coll, id string, doc store.Document) {
	for _, sub := range s.subs[coll] {
		if !sub.query {
			if sub.docID != id {
				continue
			}
			change := store.Change{ID: id, Deleted: doc == nil, Doc: store.Clone(doc)}
			fn := sub.onChange
			sub.dispatch.Enqueue(func() { fn(change) })
			continue
		}

		matches := doc != nil && store.MatchAll(doc, sub.filters)
		if !matches && !sub.members[id] {
			continue
		}
		if matches {
			sub.members[id] = true
		} else {
			delete(sub.members, id)
		}
		docs := s.query(coll, sub.filters)
		fn := sub.onSnapshot
		sub.dispatch.Enqueue(func() { fn(docs) })
	}
}

// query must be called with s.mu held. Results follow insertion order.
func (s *Store) query(coll string, filters []store.Filter) []store.Document {
	var out []store.Document
	for _, id := range s.order[coll] {
		doc := s.colls[coll][id]
		if store.MatchAll(doc, filters) {
			out = append(out, store.Clone(doc))
		}
	}
	return out
}

func (sub *subscriber) Close() error {
	sub.once.Do(func() {
		s := sub.owner
		s.mu.Lock()
		delete(s.subs[sub.coll], sub.id)
		s.mu.Unlock()
		sub.dispatch.Close()
	})
	return nil
}
