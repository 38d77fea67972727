// Package session holds the per-client document context accumulated across
// uploads. Sessions are keyed by an opaque client-supplied identifier and
// live only for the process lifetime; an idle TTL reclaims abandoned ones.
package session

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxContextChars caps the accumulated document text per session. When an
// append pushes past the cap, only the most recent suffix is kept.
const MaxContextChars = 100_000

const (
	defaultIdleTTL       = 24 * time.Hour
	defaultSweepInterval = 10 * time.Minute
	shardCount           = 16
)

// Image is an uploaded image reference served back from the upload dir.
type Image struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Document is the metadata derived from one uploaded file.
type Document struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Citation string `json:"citation"`
	Summary  string `json:"summary"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Session accumulates the uploaded context of one client. All mutation goes
// through the session's own mutex so concurrent uploads to the same id
// serialize instead of interleaving.
type Session struct {
	mu sync.Mutex

	id         string
	context    strings.Builder
	images     []Image
	docs       []Document
	createdAt  time.Time
	lastAccess time.Time
}

// ID returns the client-supplied session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was first referenced.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Context returns the accumulated document text.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.String()
}

// Images returns a copy of the appended image references.
func (s *Session) Images() []Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Image, len(s.images))
	copy(out, s.images)
	return out
}

// Documents returns a copy of the appended document metadata.
func (s *Session) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// AppendContext adds extracted text to the session, enforcing the character
// cap by dropping the oldest content from the front.
func (s *Session) AppendContext(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.context.WriteString(text)
	s.capLocked()
}

// capLocked drops the oldest content once the cap is exceeded. The cut is
// advanced to the next rune boundary so the kept suffix stays valid UTF-8.
// Callers hold s.mu.
func (s *Session) capLocked() {
	if s.context.Len() <= MaxContextChars {
		return
	}
	kept := s.context.String()
	cut := len(kept) - MaxContextChars
	for cut < len(kept) && !utf8.RuneStart(kept[cut]) {
		cut++
	}
	s.context.Reset()
	s.context.WriteString(kept[cut:])
}

// AppendDocuments records document metadata and inlines each document's text
// into the context as a delimited block so it can be re-located by filename.
func (s *Session) AppendDocuments(texts []string, docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, doc := range docs {
		s.docs = append(s.docs, doc)
		if i < len(texts) && texts[i] != "" {
			s.context.WriteString("\n--- Document: " + doc.Name + " ---\n")
			s.context.WriteString(texts[i])
		}
	}
	s.capLocked()
}

// AppendImages records uploaded image references.
func (s *Session) AppendImages(images []Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, images...)
}

// Store is a sharded in-memory session map with idle-TTL eviction.
type Store struct {
	shards [shardCount]shard
	clock  func() time.Time

	idleTTL       time.Duration
	sweepInterval time.Duration

	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source. Tests use a fake clock to drive TTL
// eviction deterministically.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIdleTTL sets how long an untouched session survives.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) { s.idleTTL = ttl }
}

// WithSweepInterval sets how often the janitor scans for expired sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// NewStore creates a store and starts its eviction janitor.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		clock:         time.Now,
		idleTTL:       defaultIdleTTL,
		sweepInterval: defaultSweepInterval,
		logger:        logger,
		done:          make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*Session)
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.janitor(ctx)

	return s
}

// Close stops the eviction janitor.
func (s *Store) Close() {
	s.cancel()
	<-s.done
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the session for id, creating it on first reference.
// Repeated calls with the same id return the same session.
func (s *Store) GetOrCreate(id string) *Session {
	sh := s.shardFor(id)

	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		s.touch(sess)
		return sess
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.sessions[id]; ok {
		s.touch(sess)
		return sess
	}

	now := s.clock()
	sess = &Session{id: id, createdAt: now, lastAccess: now}
	sh.sessions[id] = sess
	return sess
}

// Get returns the session for id, or nil when it does not exist.
func (s *Store) Get(id string) *Session {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if sess, ok := sh.sessions[id]; ok {
		s.touch(sess)
		return sess
	}
	return nil
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

func (s *Store) touch(sess *Session) {
	sess.mu.Lock()
	sess.lastAccess = s.clock()
	sess.mu.Unlock()
}

func (s *Store) janitor(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep evicts sessions idle longer than the TTL and returns how many were
// removed. Exposed so tests can drive eviction without waiting on the ticker.
func (s *Store) Sweep() int {
	deadline := s.clock().Add(-s.idleTTL)
	evicted := 0

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			sess.mu.Lock()
			expired := sess.lastAccess.Before(deadline)
			sess.mu.Unlock()
			if expired {
				delete(sh.sessions, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}

	if evicted > 0 {
		s.logger.Info("evicted idle sessions", zap.Int("count", evicted))
	}
	return evicted
}
