package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sirupsen/logrus"
)

// ImageExtractor persists page images below a per-session directory. It only exists in
// image-capable configurations.
type ImageExtractor struct {
	store  *session.Store
	dir    string
	logger *logrus.Logger
}

// ImageResult lists the files written for one page
type ImageResult struct {
	Session session.Info
	Page    int
	Paths   []string
}

// NewImageExtractor writes images below dir, or the system temp dir when dir is empty.
// Session directories are removed when their session closes.
func NewImageExtractor(store *session.Store, dir string, logger *logrus.Logger) *ImageExtractor {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = logrus.New()
	}
	e := &ImageExtractor{store: store, dir: dir, logger: logger}
	store.AddObserver(session.Observer{
		OnClose: func(info session.Info) {
			if err := e.Cleanup(info.ID); err != nil {
				logger.WithError(err).WithField("pdf_id", info.ID).Warn("Failed to remove extracted images")
			}
		},
	})
	return e
}

// SessionDir is the directory holding a session's extracted images
func (e *ImageExtractor) SessionDir(id string) string {
	return filepath.Join(e.dir, "pdf_reader_"+id)
}

// ExtractImages writes every image of the zero-based page to
// <dir>/pdf_reader_<id>/page_<page>_img_<k>.<ext> and returns the paths
func (e *ImageExtractor) ExtractImages(ctx context.Context, id string, page int) (*ImageResult, error) {
	result := &ImageResult{Page: page, Paths: []string{}}

	err := e.withImages(id, page, func(info session.Info, source document.ImageSource) error {
		result.Session = info

		images, err := source.PageImages(page)
		if err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return docerr.Cancelled("extract-images", err)
		}

		dir := e.SessionDir(id)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return docerr.Wrap(docerr.IOError, "extract-images", err, fmt.Sprintf("failed to create %s", dir))
		}

		for k, img := range images {
			path := filepath.Join(dir, fmt.Sprintf("page_%d_img_%d.%s", page, k, img.Format))
			if err := os.WriteFile(path, img.Data, 0600); err != nil {
				return docerr.Wrap(docerr.IOError, "extract-images", err, fmt.Sprintf("failed to write %s", path))
			}
			result.Paths = append(result.Paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"pdf_id": id,
		"page":   page,
		"images": len(result.Paths),
	}).Debug("Extracted images")

	return result, nil
}

// Cleanup removes the image directory of a session
func (e *ImageExtractor) Cleanup(id string) error {
	return os.RemoveAll(e.SessionDir(id))
}

// withImages resolves the session and page, then runs fn under the session read lock
func (e *ImageExtractor) withImages(id string, page int, fn func(session.Info, document.ImageSource) error) error {
	return e.store.With(id, func(info session.Info, doc document.Document) error {
		if _, _, err := Single(page).Resolve(doc.PageCount()); err != nil {
			return err
		}
		source, ok := doc.(document.ImageSource)
		if !ok {
			return docerr.New(docerr.InvalidArgument, "extract-images", "image extraction is not available for text-only documents")
		}
		return fn(info, source)
	})
}
