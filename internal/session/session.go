// Package session runs the editing session of one user on one note. A
// session keeps the in-memory note in step with the store: local edits are
// pushed after a quiet period, the session's own echoes are ignored, and
// remote changes are adopted field by field (last writer wins). It also
// drives the interval and on-exit snapshots and the presence heartbeat.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"notemv-server/internal/domain"
	"notemv-server/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultDebounce         = 2 * time.Second
	DefaultSnapshotInterval = 20 * time.Minute
	DefaultHeartbeat        = 15 * time.Second

	writeTimeout = 15 * time.Second
	inboxSize    = 64

	// echoWindow bounds how long a write waits for its echo. The CouchDB
	// feed may coalesce revisions, so an echo can be skipped entirely.
	echoWindow = 5 * time.Second
)

var (
	ErrNotFound      = errors.New("note not found")
	ErrClosed        = errors.New("session closed")
	ErrReadOnly      = errors.New("session is read-only")
	ErrTitleRequired = errors.New("title is required")
	ErrInvalidField  = errors.New("invalid field")
)

type Notes interface {
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	// SaveContent returns the store's timestamp for the write.
	SaveContent(ctx context.Context, id string, content domain.NoteContent, writeID, editorID string) (time.Time, error)
	Watch(ctx context.Context, id string, fn func(*domain.Note)) (store.Subscription, error)
}

type Snapshotter interface {
	Snapshot(ctx context.Context, noteID string, content domain.NoteContent, editor domain.Identity, label domain.VersionLabel, name string) (*domain.NoteVersion, error)
}

type Presence interface {
	Register(ctx context.Context, noteID string, who domain.Identity, sessionID string) error
	// Heartbeat refreshes the record, re-creating it if it was removed.
	Heartbeat(ctx context.Context, noteID string, who domain.Identity, sessionID string) error
	Unregister(ctx context.Context, noteID, userID string) error
}

type Deps struct {
	Notes    Notes
	Versions Snapshotter
	Presence Presence
}

type Options struct {
	Debounce         time.Duration
	SnapshotInterval time.Duration
	Heartbeat        time.Duration
	ReadOnly         bool
	DisableAutosave  bool
	OnEvent          func(Event)
	Logger           zerolog.Logger
}

// Event reports something the editor UI should reflect. Content is the
// session's in-memory state at the time of the event.
type Event struct {
	Type      EventType
	NoteID    string
	SessionID string
	Content   domain.NoteContent
	Fields    []domain.NoteField
	Kind      SaveKind
	At        time.Time
	Err       error
}

type Session struct {
	id     string
	noteID string
	editor domain.Identity
	deps   Deps
	opts   Options
	logger zerolog.Logger

	inbox     chan input
	remote    chan *domain.Note
	writeDone chan writeResult
	done      chan struct{}
	state     atomic.Int32
	sub       store.Subscription

	mu        sync.Mutex
	view      domain.NoteContent
	lastSaved time.Time
	lastKind  SaveKind

	beating atomic.Bool
	beats   sync.WaitGroup

	// Owned by the loop goroutine.
	content   domain.NoteContent
	dirty     bool
	autosave  bool
	inflight  bool
	flushNext bool
	issued    int
	pending   map[int]pendingWrite
	held      *domain.Note
	seen      time.Time
	debounce  *time.Timer
	debounceC <-chan time.Time
}

type inputKind int

const (
	inputEdit inputKind = iota
	inputSave
	inputRestore
	inputAutosave
	inputClose
)

type input struct {
	kind    inputKind
	field   domain.NoteField
	value   string
	name    string
	version *domain.NoteVersion
	enabled bool
	ctx     context.Context
	reply   chan error
}

// pendingWrite is one of our writes whose echo has not come back yet. at is
// the store's timestamp for it, zero while the write is in flight.
type pendingWrite struct {
	issued time.Time
	at     time.Time
}

type writeResult struct {
	seq     int
	content domain.NoteContent
	kind    SaveKind
	at      time.Time
	err     error
}

// Open starts a session on a persisted note.
func Open(ctx context.Context, deps Deps, noteID string, editor domain.Identity, opts Options) (*Session, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = DefaultSnapshotInterval
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}

	note, err := deps.Notes.FindByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	if note.Trashed {
		return nil, ErrNotFound
	}

	s := &Session{
		id:        uuid.New().String(),
		noteID:    noteID,
		editor:    editor,
		deps:      deps,
		opts:      opts,
		inbox:     make(chan input, inboxSize),
		remote:    make(chan *domain.Note, 16),
		writeDone: make(chan writeResult, 1),
		done:      make(chan struct{}),
		content:   note.ContentFields(),
		autosave:  !opts.DisableAutosave,
		pending:   make(map[int]pendingWrite),
		seen:      note.UpdatedAt,
	}
	s.logger = opts.Logger.With().
		Str("component", "session").
		Str("note_id", noteID).
		Str("session_id", s.id).
		Logger()
	s.view = s.content
	s.state.Store(int32(Idle))

	if !opts.ReadOnly && deps.Presence != nil {
		if err := deps.Presence.Register(ctx, noteID, editor, s.id); err != nil {
			s.logger.Warn().Err(err).Msg("presence register failed")
		}
	}

	sub, err := deps.Notes.Watch(ctx, noteID, s.onRemote)
	if err != nil {
		s.unregister()
		return nil, fmt.Errorf("failed to subscribe to note: %w", err)
	}
	s.sub = sub
	s.state.Store(int32(Watching))

	go s.run()

	s.logger.Debug().Bool("read_only", opts.ReadOnly).Msg("session opened")
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) NoteID() string { return s.noteID }

func (s *Session) ReadOnly() bool { return s.opts.ReadOnly }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has ended, either by Close or because the
// note went away.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Editor() domain.Identity { return s.editor }

// Content returns the in-memory note fields.
func (s *Session) Content() domain.NoteContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// LastSaved returns when the last successful push happened and what caused it.
func (s *Session) LastSaved() (time.Time, SaveKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved, s.lastKind
}

// Edit applies a local change. Edits are applied in call order and never
// block on the store.
func (s *Session) Edit(field domain.NoteField, value string) error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	if !field.Valid() {
		return ErrInvalidField
	}
	return s.send(input{kind: inputEdit, field: field, value: value})
}

// Save pushes immediately and records a manual snapshot named name.
func (s *Session) Save(ctx context.Context, name string) error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	return s.call(ctx, input{kind: inputSave, name: name})
}

// Restore replaces title and content with the version's and pushes them.
// No snapshot of the replaced state is taken.
func (s *Session) Restore(ctx context.Context, version *domain.NoteVersion) error {
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	return s.call(ctx, input{kind: inputRestore, version: version})
}

func (s *Session) SetAutosave(enabled bool) error {
	return s.send(input{kind: inputAutosave, enabled: enabled})
}

// Close flushes unsaved edits, records the on-exit snapshot, unsubscribes and
// finally drops presence, in that order. Calling Close again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	err := s.call(ctx, input{kind: inputClose})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (s *Session) send(in input) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- in:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) call(ctx context.Context, in input) error {
	in.ctx = ctx
	in.reply = make(chan error, 1)
	if err := s.send(in); err != nil {
		return err
	}
	select {
	case err := <-in.reply:
		return err
	case <-s.done:
		select {
		case err := <-in.reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) onRemote(n *domain.Note) {
	select {
	case s.remote <- n:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)

	interval := time.NewTicker(s.opts.SnapshotInterval)
	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer interval.Stop()
	defer heartbeat.Stop()

	if s.opts.ReadOnly {
		interval.Stop()
		heartbeat.Stop()
	}

	for {
		select {
		case in := <-s.inbox:
			if s.handle(in) {
				return
			}
		case n := <-s.remote:
			if n == nil || n.Trashed {
				s.gone()
				return
			}
			s.adopt(n)
		case res := <-s.writeDone:
			s.finishWrite(res)
		case <-s.debounceC:
			s.debounceC = nil
			s.debounce = nil
			s.pushAsync()
		case <-interval.C:
			s.snapshotAsync(domain.LabelInterval)
		case <-heartbeat.C:
			s.heartbeat()
		}
		s.updateState()
	}
}

// handle returns true once the session is closed.
func (s *Session) handle(in input) bool {
	switch in.kind {
	case inputEdit:
		s.content.Set(in.field, in.value)
		s.dirty = true
		s.publishView()
		if s.autosave {
			s.armDebounce()
		}

	case inputAutosave:
		s.autosave = in.enabled
		if !in.enabled {
			s.stopDebounce()
		} else if s.dirty {
			s.armDebounce()
		}

	case inputSave:
		if s.content.Title == "" {
			in.reply <- ErrTitleRequired
			return false
		}
		err := s.pushNow(in.ctx, SaveManual)
		if err == nil {
			if _, serr := s.deps.Versions.Snapshot(in.ctx, s.noteID, s.content, s.editor, domain.LabelManual, in.name); serr != nil {
				s.logger.Warn().Err(serr).Msg("manual snapshot failed")
			}
		}
		in.reply <- err

	case inputRestore:
		s.content.Title = in.version.Title
		s.content.Content = in.version.Content
		s.dirty = true
		s.publishView()
		in.reply <- s.pushNow(in.ctx, SaveRestore)

	case inputClose:
		err := s.shutdown(in.ctx)
		in.reply <- err
		return true
	}
	return false
}

// adopt applies a change notification from the store.
func (s *Session) adopt(n *domain.Note) {
	if n.UpdatedAt.Equal(s.seen) {
		return
	}
	s.seen = n.UpdatedAt

	if seq, ok := parseWriteID(s.id, n.LastWriteID); ok {
		for k := range s.pending {
			if k <= seq {
				delete(s.pending, k)
			}
		}
		// The feed is ordered, so a held change came before this echo.
		if s.held != nil && !s.held.UpdatedAt.After(n.UpdatedAt) {
			s.held = nil
		}
		return
	}

	s.adoptForeign(n)
}

// adoptForeign applies a change made by another writer. A change stamped no
// later than one of our unechoed writes has been overwritten by it and is
// dropped. While a write is in flight its stamp is unknown, so the latest
// foreign change is held until the write lands.
func (s *Session) adoptForeign(n *domain.Note) {
	s.expirePending()
	for _, p := range s.pending {
		if p.at.IsZero() {
			s.held = n
			return
		}
	}
	for _, p := range s.pending {
		if !n.UpdatedAt.After(p.at) {
			s.logger.Debug().Str("write_id", n.LastWriteID).Msg("remote change superseded by local write")
			return
		}
	}
	// Newer than every unechoed write: the feed folded their echoes into it.
	clear(s.pending)

	remote := n.ContentFields()
	fields := s.content.Diff(remote)
	if len(fields) == 0 {
		return
	}
	for _, f := range fields {
		s.content.Set(f, remote.Get(f))
	}
	s.publishView()
	s.emit(Event{Type: EventRemoteChange, Fields: fields})
}

func (s *Session) armDebounce() {
	s.stopDebounce()
	s.debounce = time.NewTimer(s.opts.Debounce)
	s.debounceC = s.debounce.C
}

func (s *Session) stopDebounce() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = nil
	s.debounceC = nil
}

func (s *Session) nextWrite() (int, string) {
	s.issued++
	s.pending[s.issued] = pendingWrite{issued: time.Now()}
	return s.issued, writeID(s.id, s.issued)
}

// expirePending forgets landed writes whose echo never came.
func (s *Session) expirePending() {
	cutoff := time.Now().Add(-echoWindow)
	for seq, p := range s.pending {
		if !p.at.IsZero() && p.issued.Before(cutoff) {
			delete(s.pending, seq)
		}
	}
}

// releaseHeld re-examines a change held back while a write was in flight.
func (s *Session) releaseHeld() {
	if s.held == nil {
		return
	}
	n := s.held
	s.held = nil
	s.adoptForeign(n)
}

// pushAsync starts a background write of the current content. Only one write
// is in flight at a time; a push requested meanwhile runs when it lands.
func (s *Session) pushAsync() {
	if !s.dirty {
		return
	}
	if s.inflight {
		s.flushNext = true
		return
	}

	seq, id := s.nextWrite()
	content := s.content
	s.dirty = false
	s.inflight = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		at, err := s.deps.Notes.SaveContent(ctx, s.noteID, content, id, s.editor.ID)
		s.writeDone <- writeResult{seq: seq, content: content, kind: SaveAuto, at: at, err: err}
	}()
}

func (s *Session) finishWrite(res writeResult) {
	s.inflight = false
	s.recordWrite(res)
	s.releaseHeld()

	if s.flushNext && s.dirty && s.autosave {
		s.flushNext = false
		s.pushAsync()
	}
}

func (s *Session) recordWrite(res writeResult) {
	if res.err != nil {
		delete(s.pending, res.seq)
		s.dirty = true
		s.logger.Warn().Err(res.err).Str("kind", string(res.kind)).Msg("save failed")
		s.emit(Event{Type: EventSaveFailed, Kind: res.kind, Err: res.err})
		return
	}
	// The echo may have arrived first and cleared the entry already.
	if p, ok := s.pending[res.seq]; ok {
		p.at = res.at
		s.pending[res.seq] = p
	}

	now := time.Now()
	s.mu.Lock()
	s.lastSaved = now
	s.lastKind = res.kind
	s.mu.Unlock()
	s.emit(Event{Type: EventSaved, Kind: res.kind, At: now})
}

// drain waits for the in-flight write, if any.
func (s *Session) drain() {
	if !s.inflight {
		return
	}
	res := <-s.writeDone
	s.inflight = false
	s.recordWrite(res)
	s.releaseHeld()
}

// pushNow writes synchronously on the loop goroutine.
func (s *Session) pushNow(ctx context.Context, kind SaveKind) error {
	s.stopDebounce()
	s.drain()
	s.flushNext = false

	seq, id := s.nextWrite()
	content := s.content
	s.state.Store(int32(Writing))
	at, err := s.deps.Notes.SaveContent(ctx, s.noteID, content, id, s.editor.ID)
	if err == nil {
		s.dirty = false
	}
	s.recordWrite(writeResult{seq: seq, content: content, kind: kind, at: at, err: err})
	return err
}

func (s *Session) shutdown(ctx context.Context) error {
	s.stopDebounce()
	s.drain()

	var err error
	if !s.opts.ReadOnly {
		if s.dirty {
			err = s.pushNow(ctx, SaveExit)
		}
		if _, serr := s.deps.Versions.Snapshot(ctx, s.noteID, s.content, s.editor, domain.LabelOnExit, ""); serr != nil {
			s.logger.Warn().Err(serr).Msg("on-exit snapshot failed")
		}
	}

	s.teardown()
	s.logger.Debug().Msg("session closed")
	return err
}

// gone ends the session after the note was deleted or trashed elsewhere.
// Nothing is written back.
func (s *Session) gone() {
	s.stopDebounce()
	s.drain()
	s.emit(Event{Type: EventGone})
	s.teardown()
	s.logger.Info().Msg("note removed, session ended")
}

func (s *Session) teardown() {
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
	s.unregister()
	s.state.Store(int32(Closed))
}

func (s *Session) unregister() {
	if s.opts.ReadOnly || s.deps.Presence == nil {
		return
	}
	// A heartbeat landing afterwards would bring the record back.
	s.beats.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.deps.Presence.Unregister(ctx, s.noteID, s.editor.ID); err != nil {
		s.logger.Warn().Err(err).Msg("presence unregister failed")
	}
}

func (s *Session) snapshotAsync(label domain.VersionLabel) {
	content := s.content
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if _, err := s.deps.Versions.Snapshot(ctx, s.noteID, content, s.editor, label, ""); err != nil {
			s.logger.Warn().Err(err).Str("label", string(label)).Msg("snapshot failed")
		}
	}()
}

// heartbeat refreshes presence off the loop. A tick is skipped while the
// previous heartbeat is still running; unregister waits for it.
func (s *Session) heartbeat() {
	if s.deps.Presence == nil || !s.beating.CompareAndSwap(false, true) {
		return
	}
	s.beats.Add(1)
	go func() {
		defer s.beats.Done()
		defer s.beating.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Heartbeat)
		defer cancel()
		if err := s.deps.Presence.Heartbeat(ctx, s.noteID, s.editor, s.id); err != nil {
			s.logger.Debug().Err(err).Msg("presence heartbeat failed")
		}
	}()
}

func (s *Session) publishView() {
	s.mu.Lock()
	s.view = s.content
	s.mu.Unlock()
}

func (s *Session) updateState() {
	switch {
	case s.inflight:
		s.state.Store(int32(Writing))
	case s.debounceC != nil:
		s.state.Store(int32(PendingWrite))
	default:
		s.state.Store(int32(Watching))
	}
}

func (s *Session) emit(e Event) {
	if s.opts.OnEvent == nil {
		return
	}
	e.NoteID = s.noteID
	e.SessionID = s.id
	e.Content = s.content
	s.opts.OnEvent(e)
}
