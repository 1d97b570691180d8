// Package extract turns session ids and page selectors into text and images.
package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
)

// Selector chooses the zero-based pages an extraction covers. The zero value selects the
// whole document.
type Selector struct {
	start *int
	end   *int
	// names of the arguments the bounds came from, used in error messages
	startArg string
	endArg   string
}

// All selects every page
func All() Selector {
	return Selector{}
}

// Single selects one page
func Single(page int) Selector {
	return Selector{start: &page, end: &page, startArg: "page_number", endArg: "page_number"}
}

// Range selects the inclusive pages [start, end]; nil bounds default to the first and last page
func Range(start, end *int) Selector {
	return Selector{start: start, end: end, startArg: "start_page", endArg: "end_page"}
}

// ParseRange parses "a-b" or "n" into a selector; an empty string selects the whole document
func ParseRange(arg, value string) (Selector, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return All(), nil
	}

	parse := func(s string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, docerr.Argument("page-range", arg, "invalid page range %q: expected \"start-end\" or a single page number", value)
		}
		return n, nil
	}

	before, after, found := strings.Cut(value, "-")
	if !found {
		page, err := parse(value)
		if err != nil {
			return Selector{}, err
		}
		s := Single(page)
		s.startArg, s.endArg = arg, arg
		return s, nil
	}

	start, err := parse(before)
	if err != nil {
		return Selector{}, err
	}
	end, err := parse(after)
	if err != nil {
		return Selector{}, err
	}
	return Selector{start: &start, end: &end, startArg: arg, endArg: arg}, nil
}

// Validate checks the bounds against each other, independently of any document
func (s Selector) Validate() error {
	if s.start != nil && s.end != nil && *s.start > *s.end {
		return docerr.Argument("page-range", s.startArg, "%s (%d) is greater than %s (%d)", s.startArg, *s.start, s.endArg, *s.end)
	}
	return nil
}

// Resolve returns the inclusive [first, last] page indexes for a document of pageCount pages.
// An empty document with no explicit bounds resolves to first=0, last=-1.
func (s Selector) Resolve(pageCount int) (first, last int, err error) {
	if err := s.Validate(); err != nil {
		return 0, 0, err
	}

	first, last = 0, pageCount-1
	if s.start != nil {
		if *s.start < 0 || *s.start >= pageCount {
			return 0, 0, docerr.PageOutOfRange("page-range", *s.start, pageCount)
		}
		first = *s.start
	}
	if s.end != nil {
		if *s.end < 0 || *s.end >= pageCount {
			return 0, 0, docerr.PageOutOfRange("page-range", *s.end, pageCount)
		}
		last = *s.end
	}
	return first, last, nil
}

// Describe renders resolved bounds for humans, numbering pages from 1
func Describe(first, last, pageCount int) string {
	switch {
	case pageCount == 0:
		return "no pages"
	case first == 0 && last == pageCount-1:
		return fmt.Sprintf("all pages (1-%d)", pageCount)
	case first == last:
		return fmt.Sprintf("page %d", first+1)
	default:
		return fmt.Sprintf("pages %d-%d", first+1, last+1)
	}
}
