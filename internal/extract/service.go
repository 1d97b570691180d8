package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// EmptyPageText stands in for pages without text when page markers are requested
const EmptyPageText = "[No extractable text on this page]"

// Service extracts text from open sessions
type Service struct {
	store  *session.Store
	logger *logrus.Logger
}

// NewService creates an extraction service over store
func NewService(store *session.Store, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: store, logger: logger}
}

// Store returns the session registry the service reads from
func (s *Service) Store() *session.Store {
	return s.store
}

// PageResult is the text of a single page
type PageResult struct {
	Session session.Info
	Page    int
	Text    string
	// Images is the number of images on the page, nil for text-only documents
	Images *int
}

// PageText returns the text of one zero-based page with no formatting
func (s *Service) PageText(ctx context.Context, id string, page int) (*PageResult, error) {
	sel := Single(page)
	result := &PageResult{Page: page}

	err := s.store.With(id, func(info session.Info, doc document.Document) error {
		result.Session = info
		if _, _, err := sel.Resolve(doc.PageCount()); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return docerr.Cancelled("page-text", err)
		}

		text, err := doc.PageText(page)
		if err != nil {
			return err
		}
		result.Text = text

		if source, ok := doc.(document.ImageSource); ok {
			count, err := source.ImageCount(page)
			if err != nil {
				return err
			}
			result.Images = &count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordPagesExtracted(ctx, 1)
	return result, nil
}

// TextOptions controls FullText
type TextOptions struct {
	// IncludePageNumbers precedes each page with a "--- PAGE n/total ---" marker line
	IncludePageNumbers bool
	Pages              Selector
}

// Page is the text of one page of a TextResult
type Page struct {
	Index int
	Text  string
}

// TextResult is the text of a resolved page range
type TextResult struct {
	Session   session.Info
	First     int
	Last      int
	PageCount int
	Pages     []Page
	// Text is the formatted concatenation of Pages
	Text string
}

// Description names the covered pages, e.g. "pages 2-4"
func (r *TextResult) Description() string {
	return Describe(r.First, r.Last, r.PageCount)
}

// FullText concatenates the text of the selected pages in ascending order
func (s *Service) FullText(ctx context.Context, id string, opts TextOptions) (*TextResult, error) {
	if err := opts.Pages.Validate(); err != nil {
		return nil, err
	}

	result := &TextResult{}
	err := s.store.With(id, func(info session.Info, doc document.Document) error {
		result.Session = info
		result.PageCount = doc.PageCount()

		first, last, err := opts.Pages.Resolve(result.PageCount)
		if err != nil {
			return err
		}
		result.First, result.Last = first, last

		for i := first; i <= last; i++ {
			if err := ctx.Err(); err != nil {
				return docerr.Cancelled("full-text", err)
			}
			text, err := doc.PageText(i)
			if err != nil {
				return err
			}
			result.Pages = append(result.Pages, Page{Index: i, Text: text})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Text = FormatPages(result.Pages, result.PageCount, opts.IncludePageNumbers)
	telemetry.RecordPagesExtracted(ctx, len(result.Pages))

	s.logger.WithFields(logrus.Fields{
		"pdf_id": id,
		"first":  result.First,
		"last":   result.Last,
		"chars":  len(result.Text),
	}).Debug("Extracted text")

	return result, nil
}

// FormatPages joins page texts. With markers every page gets exactly one marker and empty
// pages show EmptyPageText; without markers empty pages are skipped.
func FormatPages(pages []Page, pageCount int, includePageNumbers bool) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		switch {
		case includePageNumbers && p.Text == "":
			parts = append(parts, fmt.Sprintf("%s\n%s", PageMarker(p.Index, pageCount), EmptyPageText))
		case includePageNumbers:
			parts = append(parts, fmt.Sprintf("%s\n%s", PageMarker(p.Index, pageCount), p.Text))
		case p.Text != "":
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// PageMarker is the marker line for a zero-based page index
func PageMarker(index, pageCount int) string {
	return fmt.Sprintf("--- PAGE %d/%d ---", index+1, pageCount)
}
