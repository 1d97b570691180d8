// Package session maps opaque session ids to open documents and owns their lifecycle.
//
// Lock order is always Store.mutex then Session.mu. Readers take the session read lock
// before releasing the store lock, and Close releases a handle only under the session
// write lock, so no reader can observe a released document.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/security"
	"github.com/sirupsen/logrus"
)

// DefaultMaxFileSize is the largest file Open accepts unless configured otherwise
const DefaultMaxFileSize int64 = 200 * 1024 * 1024

// Info is an immutable snapshot of a session
type Info struct {
	ID        string
	Path      string
	OpenedAt  time.Time
	PageCount int
}

// Name returns the base name of the document file
func (i Info) Name() string {
	return filepath.Base(i.Path)
}

// Observer is notified after sessions open and close. Callbacks run outside all locks.
type Observer struct {
	OnOpen  func(Info)
	OnClose func(Info)
}

// session is one open document
type session struct {
	info Info
	mu   sync.RWMutex
	doc  document.Document
}

// Store is the session registry
type Store struct {
	opener      document.Opener
	logger      *logrus.Logger
	policy      *security.Policy
	maxFileSize int64
	newID       func() string

	mutex     sync.RWMutex
	sessions  map[string]*session
	observers []Observer
}

// Option configures a Store
type Option func(*Store)

// WithPolicy checks every opened path against the access policy
func WithPolicy(policy *security.Policy) Option {
	return func(s *Store) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithMaxFileSize rejects files larger than size bytes; zero or less keeps the default
func WithMaxFileSize(size int64) Option {
	return func(s *Store) {
		if size > 0 {
			s.maxFileSize = size
		}
	}
}

// WithIDGenerator replaces the random id generator
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithObserver registers lifecycle callbacks
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observers = append(s.observers, o)
	}
}

// NewStore creates an empty registry opening documents with opener
func NewStore(opener document.Opener, logger *logrus.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		opener:      opener,
		logger:      logger,
		policy:      security.DisabledPolicy(),
		maxFileSize: DefaultMaxFileSize,
		newID:       NewID,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns 12 hex characters taken from a random UUID
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// AddObserver registers lifecycle callbacks after construction
func (s *Store) AddObserver(o Observer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.observers = append(s.observers, o)
}

// Open parses the file at path and registers a new session for it
func (s *Store) Open(ctx context.Context, path string) (Info, error) {
	const op = "open"

	if strings.TrimSpace(path) == "" {
		return Info{}, docerr.Argument(op, "path", "path must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return Info{}, docerr.Cancelled(op, err)
	}

	absPath, err := filepath.Abs(security.ExpandHomePath(path))
	if err != nil {
		return Info{}, docerr.Wrap(docerr.IOError, op, err, fmt.Sprintf("invalid path %s", path))
	}

	if err := s.policy.Check(absPath); err != nil {
		return Info{}, docerr.Wrap(docerr.IOError, op, err, fmt.Sprintf("cannot open %s", absPath))
	}

	stat, err := os.Stat(absPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Info{}, docerr.Wrap(docerr.NotFound, op, err, fmt.Sprintf("file not found: %s", absPath))
	case err != nil:
		return Info{}, docerr.Wrap(docerr.IOError, op, err, fmt.Sprintf("cannot access %s", absPath))
	case stat.IsDir():
		return Info{}, docerr.New(docerr.IOError, op, "%s is a directory", absPath)
	case stat.Size() > s.maxFileSize:
		return Info{}, docerr.Argument(op, "path", "file %s is too large (%d bytes, maximum %d)", absPath, stat.Size(), s.maxFileSize)
	}
	if err := s.policy.CheckTarget(absPath); err != nil {
		return Info{}, docerr.Wrap(docerr.IOError, op, err, fmt.Sprintf("cannot open %s", absPath))
	}

	doc, err := s.opener(absPath)
	if err != nil {
		if docerr.KindOf(err) == "" {
			err = docerr.Wrap(docerr.InvalidDocument, op, err, fmt.Sprintf("failed to open %s", absPath))
		}
		return Info{}, err
	}

	sess := &session{
		info: Info{
			Path:      absPath,
			OpenedAt:  time.Now(),
			PageCount: doc.PageCount(),
		},
		doc: doc,
	}

	s.mutex.Lock()
	id := s.newID()
	for _, exists := s.sessions[id]; exists; _, exists = s.sessions[id] {
		id = s.newID()
	}
	sess.info.ID = id
	s.sessions[id] = sess
	observers := slices.Clone(s.observers)
	s.mutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"pdf_id":     id,
		"path":       absPath,
		"page_count": sess.info.PageCount,
	}).Info("PDF opened")

	for _, o := range observers {
		if o.OnOpen != nil {
			o.OnOpen(sess.info)
		}
	}

	return sess.info, nil
}

// Close removes the session and releases its document
func (s *Store) Close(id string) (Info, error) {
	s.mutex.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mutex.Unlock()
		return Info{}, docerr.SessionNotFound("close", id)
	}
	delete(s.sessions, id)
	observers := slices.Clone(s.observers)
	s.mutex.Unlock()

	s.release(sess)

	for _, o := range observers {
		if o.OnClose != nil {
			o.OnClose(sess.info)
		}
	}

	return sess.info, nil
}

// release waits for in-flight readers, then disposes of the handle
func (s *Store) release(sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.doc.Release()
	sess.doc = nil

	s.logger.WithFields(logrus.Fields{
		"pdf_id": sess.info.ID,
		"path":   sess.info.Path,
	}).Info("PDF closed")
}

// With runs fn with the session's document while holding its read lock
func (s *Store) With(id string, fn func(Info, document.Document) error) error {
	s.mutex.RLock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mutex.RUnlock()
		return docerr.SessionNotFound("lookup", id)
	}
	sess.mu.RLock()
	s.mutex.RUnlock()
	defer sess.mu.RUnlock()

	return fn(sess.info, sess.doc)
}

// Get returns the session snapshot for id
func (s *Store) Get(id string) (Info, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Info{}, docerr.SessionNotFound("lookup", id)
	}
	return sess.info, nil
}

// Metadata returns the declared document information fields of the session's document
func (s *Store) Metadata(id string) (Info, map[string]string, error) {
	var (
		info     Info
		metadata map[string]string
	)
	err := s.With(id, func(i Info, doc document.Document) error {
		info = i
		metadata = doc.Metadata()
		return nil
	})
	return info, metadata, err
}

// PageCount returns the number of pages of the session's document
func (s *Store) PageCount(id string) (Info, int, error) {
	var (
		info  Info
		count int
	)
	err := s.With(id, func(i Info, doc document.Document) error {
		info = i
		count = doc.PageCount()
		return nil
	})
	return info, count, err
}

// List returns every open session ordered by open time
func (s *Store) List() []Info {
	s.mutex.RLock()
	list := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess.info)
	}
	s.mutex.RUnlock()

	slices.SortFunc(list, func(a, b Info) int {
		if c := a.OpenedAt.Compare(b.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// Len returns the number of open sessions
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}

// CloseAll closes every open session, used at shutdown
func (s *Store) CloseAll() {
	for _, info := range s.List() {
		if _, err := s.Close(info.ID); err != nil {
			s.logger.WithError(err).WithField("pdf_id", info.ID).Debug("Session already closed during shutdown")
		}
	}
}
