// Package document adapts the third-party PDF libraries into the handle the rest of the
// server works with. pdfcpu parses and validates the file and supplies metadata and images;
// ledongthuc/pdf supplies page text, with pdfcpu content-stream parsing as the fallback.
//
// No pdfcpu or ledongthuc error type crosses this package boundary: every failure is
// translated into a *docerr.Error.
package document

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sirupsen/logrus"
)

// Document is an open, parsed PDF. Implementations are safe for concurrent use.
type Document interface {
	// PageCount returns the number of pages, never negative
	PageCount() int

	// PageText returns the text of the zero-based page index
	PageText(index int) (string, error)

	// Metadata returns the fields declared in the document information dictionary.
	// Fields the document does not declare are absent.
	Metadata() map[string]string

	// Release disposes of the parsed document. Only the first call has an effect.
	Release()
}

// ImageSource is implemented by documents opened with the image capability
type ImageSource interface {
	// PageImages returns the raw images used by the zero-based page index,
	// ordered by object number. A page without images yields an empty slice.
	PageImages(index int) ([]Image, error)

	// ImageCount returns the number of images the zero-based page references,
	// without decoding them
	ImageCount(index int) (int, error)
}

// Image is one raw image buffer decoded from a page
type Image struct {
	// Name is the resource name of the image on its page, e.g. "Im0"
	Name string
	// Format is the file extension the image data is encoded as (png, jpg, tif, jpx)
	Format string
	// ObjNr is the PDF object number the image was read from
	ObjNr int
	Data  []byte
}

// Opener parses the file at path into a Document
type Opener func(path string) (Document, error)

// NewOpener returns the opener for the configured capability set. With images enabled the
// returned documents also implement ImageSource; otherwise they do not, so image extraction
// is simply unavailable rather than checked at run time.
func NewOpener(logger *logrus.Logger, images bool) Opener {
	if images {
		return func(path string) (Document, error) {
			doc, err := open(path, logger)
			if err != nil {
				return nil, err
			}
			return &imageDocument{pdfDocument: doc}, nil
		}
	}
	return func(path string) (Document, error) {
		return open(path, logger)
	}
}

// pdfDocument is the text-only document handle
type pdfDocument struct {
	path   string
	logger *logrus.Logger

	// mu serialises calls into the libraries, neither of which documents concurrent use
	mu       sync.Mutex
	released bool
	data     []byte
	ctx      *model.Context
	// reader is nil when ledongthuc could not parse the file; text then comes from pdfcpu
	reader *pdf.Reader
}

// open reads and parses the file at path
func open(path string, logger *logrus.Logger) (*pdfDocument, error) {
	if logger == nil {
		logger = logrus.New()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, docerr.Wrap(docerr.IOError, "open", err, fmt.Sprintf("failed to read %s", path))
	}

	ctx, err := readContext(data)
	if err != nil {
		return nil, docerr.Wrap(docerr.InvalidDocument, "open", err, fmt.Sprintf("failed to parse %s as PDF", path))
	}

	doc := &pdfDocument{
		path:   path,
		logger: logger,
		data:   data,
		ctx:    ctx,
	}

	reader, err := textReader(data)
	if err != nil {
		logger.WithError(err).WithField("path", path).Debug("Text reader unavailable, falling back to content stream parsing")
	} else {
		doc.reader = reader
	}

	logger.WithFields(logrus.Fields{
		"path":       path,
		"page_count": ctx.PageCount,
		"size":       len(data),
	}).Debug("PDF parsed")

	return doc, nil
}

// readContext parses and validates data with pdfcpu, recovering from parser panics
func readContext(data []byte) (ctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
}

// textReader opens data with ledongthuc/pdf, recovering from parser panics
func textReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("text reader panic: %v", rec)
		}
	}()

	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func (d *pdfDocument) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return 0
	}
	return d.ctx.PageCount
}

func (d *pdfDocument) Metadata() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return map[string]string{}
	}
	return infoDict(d.ctx, d.logger)
}

func (d *pdfDocument) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return
	}
	d.released = true
	d.ctx = nil
	d.reader = nil
	d.data = nil
	d.logger.WithField("path", d.path).Debug("PDF released")
}

// checkPage validates index while d.mu is held
func (d *pdfDocument) checkPage(op string, index int) error {
	if d.released {
		return docerr.New(docerr.NotFound, op, "document %s has been released", d.path)
	}
	if index < 0 || index >= d.ctx.PageCount {
		return docerr.PageOutOfRange(op, index, d.ctx.PageCount)
	}
	return nil
}
