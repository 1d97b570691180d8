package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/security"
	"github.com/sammcj/mcp-pdf-reader/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocument records releases and can block readers
type fakeDocument struct {
	pages    int
	released atomic.Bool
}

func (f *fakeDocument) PageCount() int { return f.pages }

func (f *fakeDocument) PageText(index int) (string, error) {
	if f.released.Load() {
		return "", errors.New("read after release")
	}
	return fmt.Sprintf("page %d", index), nil
}

func (f *fakeDocument) Metadata() map[string]string { return map[string]string{"Title": "Fake"} }

func (f *fakeDocument) Release() { f.released.Store(true) }

func fakeOpener(docs *sync.Map) document.Opener {
	return func(path string) (document.Document, error) {
		doc := &fakeDocument{pages: 3}
		if docs != nil {
			docs.Store(path, doc)
		}
		return doc, nil
	}
}

func existingFile(t *testing.T, name string) string {
	t.Helper()
	return testutils.WriteTestFile(t, name, []byte("%PDF-1.4 placeholder"))
}

func TestOpenCloseLifecycle(t *testing.T) {
	store := NewStore(fakeOpener(nil), testutils.CreateTestLogger())
	ctx := testutils.CreateTestContext()

	info, err := store.Open(ctx, existingFile(t, "report.pdf"))
	require.NoError(t, err)
	assert.Len(t, info.ID, 12)
	assert.Equal(t, "report.pdf", info.Name())
	assert.Equal(t, 3, info.PageCount)
	assert.True(t, filepath.IsAbs(info.Path))
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	closed, err := store.Close(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, closed.ID)
	assert.Equal(t, 0, store.Len())

	_, err = store.Get(info.ID)
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err))

	_, err = store.Close(info.ID)
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err), "double close")

	_, _, err = store.PageCount(info.ID)
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err))
}

func TestCloseReleasesDocument(t *testing.T) {
	var docs sync.Map
	store := NewStore(fakeOpener(&docs), testutils.CreateTestLogger())

	path := existingFile(t, "a.pdf")
	info, err := store.Open(context.Background(), path)
	require.NoError(t, err)

	value, ok := docs.Load(info.Path)
	require.True(t, ok)
	doc := value.(*fakeDocument)
	assert.False(t, doc.released.Load())

	_, err = store.Close(info.ID)
	require.NoError(t, err)
	assert.True(t, doc.released.Load())
}

func TestOpenErrors(t *testing.T) {
	logger := testutils.CreateTestLogger()
	ctx := context.Background()

	t.Run("nonexistent path is NotFound", func(t *testing.T) {
		store := NewStore(fakeOpener(nil), logger)
		_, err := store.Open(ctx, "/nonexistent.pdf")
		assert.Equal(t, docerr.NotFound, docerr.KindOf(err))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("empty path is InvalidArgument", func(t *testing.T) {
		store := NewStore(fakeOpener(nil), logger)
		_, err := store.Open(ctx, "  ")
		assert.Equal(t, docerr.InvalidArgument, docerr.KindOf(err))
	})

	t.Run("directory is IOError", func(t *testing.T) {
		store := NewStore(fakeOpener(nil), logger)
		_, err := store.Open(ctx, t.TempDir())
		assert.Equal(t, docerr.IOError, docerr.KindOf(err))
	})

	t.Run("oversized file is InvalidArgument", func(t *testing.T) {
		store := NewStore(fakeOpener(nil), logger, WithMaxFileSize(4))
		_, err := store.Open(ctx, existingFile(t, "big.pdf"))
		assert.Equal(t, docerr.InvalidArgument, docerr.KindOf(err))
	})

	t.Run("unparseable file is InvalidDocument", func(t *testing.T) {
		store := NewStore(document.NewOpener(logger, false), logger)
		_, err := store.Open(ctx, testutils.WriteTestFile(t, "bad.pdf", []byte("not a pdf")))
		assert.Equal(t, docerr.InvalidDocument, docerr.KindOf(err))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("opener error without kind becomes InvalidDocument", func(t *testing.T) {
		store := NewStore(func(string) (document.Document, error) {
			return nil, errors.New("boom")
		}, logger)
		_, err := store.Open(ctx, existingFile(t, "a.pdf"))
		assert.Equal(t, docerr.InvalidDocument, docerr.KindOf(err))
	})

	t.Run("denied path is IOError", func(t *testing.T) {
		dir := t.TempDir()
		policyPath := filepath.Join(dir, "access.yaml")
		require.NoError(t, os.WriteFile(policyPath, []byte("enabled: true\ndeny_files: [\"*.pdf\"]\n"), 0600))
		policy, err := security.NewPolicy(policyPath, logger)
		require.NoError(t, err)

		store := NewStore(fakeOpener(nil), logger, WithPolicy(policy))
		_, err = store.Open(ctx, existingFile(t, "a.pdf"))
		assert.Equal(t, docerr.IOError, docerr.KindOf(err))
		assert.True(t, errors.Is(err, security.ErrDenied))
	})

	t.Run("symlink out of allowed directory is IOError", func(t *testing.T) {
		root := t.TempDir()
		allowed := filepath.Join(root, "allowed")
		require.NoError(t, os.MkdirAll(allowed, 0700))
		target := filepath.Join(root, "secret.pdf")
		require.NoError(t, os.WriteFile(target, []byte("%PDF-1.4 placeholder"), 0600))
		link := filepath.Join(allowed, "link.pdf")
		require.NoError(t, os.Symlink(target, link))

		policyPath := filepath.Join(root, "access.yaml")
		require.NoError(t, os.WriteFile(policyPath, []byte("enabled: true\nallow_dirs: [\""+allowed+"\"]\n"), 0600))
		policy, err := security.NewPolicy(policyPath, logger)
		require.NoError(t, err)
		defer policy.Close()

		store := NewStore(fakeOpener(nil), logger, WithPolicy(policy))
		_, err = store.Open(ctx, link)
		assert.Equal(t, docerr.IOError, docerr.KindOf(err))
		assert.ErrorIs(t, err, security.ErrDenied)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := NewStore(fakeOpener(nil), logger)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Open(cancelled, existingFile(t, "a.pdf"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, docerr.IOError, docerr.KindOf(err))
	})
}

func TestOpenRealDocument(t *testing.T) {
	logger := testutils.CreateTestLogger()
	store := NewStore(document.NewOpener(logger, false), logger)
	path := testutils.WriteTestPDF(t, "real.pdf", map[string]string{"Title": "Real"}, "one", "two")

	info, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	defer store.CloseAll()

	_, count, err := store.PageCount(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, metadata, err := store.Metadata(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "Real", metadata["Title"])
}

func TestConcurrentOpensYieldDistinctIDs(t *testing.T) {
	store := NewStore(fakeOpener(nil), testutils.CreateTestLogger())
	path := existingFile(t, "shared.pdf")

	const n = 32
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := store.Open(context.Background(), path)
			assert.NoError(t, err)
			ids[i] = info.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, n, store.Len())

	_, err := store.Close(ids[0])
	require.NoError(t, err)
	_, err = store.Get(ids[1])
	assert.NoError(t, err, "closing one session must leave the others usable")
}

func TestIDCollisionRegenerates(t *testing.T) {
	ids := []string{"abc123", "abc123", "def456"}
	var next int
	store := NewStore(fakeOpener(nil), testutils.CreateTestLogger(), WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	first, err := store.Open(context.Background(), existingFile(t, "a.pdf"))
	require.NoError(t, err)
	second, err := store.Open(context.Background(), existingFile(t, "b.pdf"))
	require.NoError(t, err)

	assert.Equal(t, "abc123", first.ID)
	assert.Equal(t, "def456", second.ID)
}

func TestObservers(t *testing.T) {
	var opened, closed []string
	store := NewStore(fakeOpener(nil), testutils.CreateTestLogger(), WithObserver(Observer{
		OnOpen:  func(i Info) { opened = append(opened, i.ID) },
		OnClose: func(i Info) { closed = append(closed, i.ID) },
	}))

	info, err := store.Open(context.Background(), existingFile(t, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []string{info.ID}, opened)
	assert.Empty(t, closed)

	store.CloseAll()
	assert.Equal(t, []string{info.ID}, closed)
	assert.Equal(t, 0, store.Len())
}

func TestListOrderedByOpenTime(t *testing.T) {
	store := NewStore(fakeOpener(nil), testutils.CreateTestLogger())

	first, err := store.Open(context.Background(), existingFile(t, "first.pdf"))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := store.Open(context.Background(), existingFile(t, "second.pdf"))
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestCloseWaitsForReaders(t *testing.T) {
	var docs sync.Map
	store := NewStore(fakeOpener(&docs), testutils.CreateTestLogger())
	info, err := store.Open(context.Background(), existingFile(t, "a.pdf"))
	require.NoError(t, err)

	inside := make(chan struct{})
	proceed := make(chan struct{})
	readDone := make(chan error, 1)

	go func() {
		readDone <- store.With(info.ID, func(_ Info, doc document.Document) error {
			close(inside)
			<-proceed
			_, err := doc.PageText(0)
			return err
		})
	}()

	<-inside
	closeDone := make(chan struct{})
	go func() {
		_, _ = store.Close(info.ID)
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("close returned while a reader was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	require.NoError(t, <-readDone, "reader must never observe a released document")
	<-closeDone

	err = store.With(info.ID, func(Info, document.Document) error { return nil })
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err))
}

func TestConcurrentReadsAndCloses(t *testing.T) {
	store := NewStore(fakeOpener(nil), testutils.CreateTestLogger())
	path := existingFile(t, "a.pdf")

	var wg sync.WaitGroup
	for range 8 {
		info, err := store.Open(context.Background(), path)
		require.NoError(t, err)

		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.With(info.ID, func(_ Info, doc document.Document) error {
					_, err := doc.PageText(1)
					return err
				})
				if err != nil {
					assert.Equal(t, docerr.NotFound, docerr.KindOf(err))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Close(info.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, store.Len())
}
