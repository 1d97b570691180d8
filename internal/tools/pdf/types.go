package pdf

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
)

// OpenRequest is the validated argument set of open-pdf
type OpenRequest struct {
	// Path is the PDF file to open; ~ is expanded and relative paths are resolved
	Path string `json:"path"`
}

// CloseRequest is the validated argument set of close-pdf
type CloseRequest struct {
	PDFID string `json:"pdf_id"`
}

// MetadataRequest is the validated argument set of list-pdf-metadata
type MetadataRequest struct {
	PDFID string `json:"pdf_id"`
}

// PageCountRequest is the validated argument set of get-pdf-page-count
type PageCountRequest struct {
	PDFID string `json:"pdf_id"`
}

// PageTextRequest is the validated argument set of get-pdf-page-text
type PageTextRequest struct {
	PDFID string `json:"pdf_id"`
	// PageNumber is zero-based
	PageNumber int `json:"page_number"`
}

// ToTextRequest is the validated argument set of pdf-to-text
type ToTextRequest struct {
	PDFID              string `json:"pdf_id"`
	IncludePageNumbers bool   `json:"include_page_numbers"`
	// StartPage and EndPage are zero-based and inclusive; nil selects the first or last page
	StartPage *int `json:"start_page,omitempty"`
	EndPage   *int `json:"end_page,omitempty"`
}

// ExtractImagesRequest is the validated argument set of extract-images
type ExtractImagesRequest struct {
	PDFID string `json:"pdf_id"`
	// PageNumber is zero-based
	PageNumber int `json:"page_number"`
}

// ParseOpenRequest validates open-pdf arguments
func ParseOpenRequest(args map[string]any) (OpenRequest, error) {
	path, err := requiredString("open-pdf", args, "path")
	return OpenRequest{Path: path}, err
}

// ParseCloseRequest validates close-pdf arguments
func ParseCloseRequest(args map[string]any) (CloseRequest, error) {
	id, err := requiredString("close-pdf", args, "pdf_id")
	return CloseRequest{PDFID: id}, err
}

// ParseMetadataRequest validates list-pdf-metadata arguments
func ParseMetadataRequest(args map[string]any) (MetadataRequest, error) {
	id, err := requiredString("list-pdf-metadata", args, "pdf_id")
	return MetadataRequest{PDFID: id}, err
}

// ParsePageCountRequest validates get-pdf-page-count arguments
func ParsePageCountRequest(args map[string]any) (PageCountRequest, error) {
	id, err := requiredString("get-pdf-page-count", args, "pdf_id")
	return PageCountRequest{PDFID: id}, err
}

// ParsePageTextRequest validates get-pdf-page-text arguments
func ParsePageTextRequest(args map[string]any) (PageTextRequest, error) {
	const op = "get-pdf-page-text"
	id, err := requiredString(op, args, "pdf_id")
	if err != nil {
		return PageTextRequest{}, err
	}
	page, err := requiredInt(op, args, "page_number")
	if err != nil {
		return PageTextRequest{}, err
	}
	return PageTextRequest{PDFID: id, PageNumber: page}, nil
}

// ParseToTextRequest validates pdf-to-text arguments. A start page after the end page is
// rejected here, before any session is consulted.
func ParseToTextRequest(args map[string]any) (ToTextRequest, error) {
	const op = "pdf-to-text"
	id, err := requiredString(op, args, "pdf_id")
	if err != nil {
		return ToTextRequest{}, err
	}

	req := ToTextRequest{PDFID: id}

	if req.IncludePageNumbers, err = optionalBool(op, args, "include_page_numbers", true); err != nil {
		return ToTextRequest{}, err
	}
	if req.StartPage, err = optionalInt(op, args, "start_page"); err != nil {
		return ToTextRequest{}, err
	}
	if req.EndPage, err = optionalInt(op, args, "end_page"); err != nil {
		return ToTextRequest{}, err
	}

	if req.StartPage != nil && req.EndPage != nil && *req.StartPage > *req.EndPage {
		return ToTextRequest{}, docerr.Argument(op, "start_page", "start_page (%d) is greater than end_page (%d)", *req.StartPage, *req.EndPage)
	}
	return req, nil
}

// ParseExtractImagesRequest validates extract-images arguments
func ParseExtractImagesRequest(args map[string]any) (ExtractImagesRequest, error) {
	const op = "extract-images"
	id, err := requiredString(op, args, "pdf_id")
	if err != nil {
		return ExtractImagesRequest{}, err
	}
	page, err := requiredInt(op, args, "page_number")
	if err != nil {
		return ExtractImagesRequest{}, err
	}
	return ExtractImagesRequest{PDFID: id, PageNumber: page}, nil
}

func requiredString(op string, args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return "", docerr.Argument(op, name, "missing required argument %s", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", docerr.Argument(op, name, "%s must be a string, got %T", name, raw)
	}
	if strings.TrimSpace(s) == "" {
		return "", docerr.Argument(op, name, "%s must not be empty", name)
	}
	return s, nil
}

func requiredInt(op string, args map[string]any, name string) (int, error) {
	v, err := optionalInt(op, args, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, docerr.Argument(op, name, "missing required argument %s", name)
	}
	return *v, nil
}

// optionalInt accepts JSON numbers without a fractional part
func optionalInt(op string, args map[string]any, name string) (*int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		return &v, nil
	case int64:
		i := int(v)
		return &i, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, docerr.Argument(op, name, "%s must be an integer, got %s", name, v.String())
		}
		n := int(i)
		return &n, nil
	default:
		return nil, docerr.Argument(op, name, "%s must be an integer, got %T", name, raw)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, docerr.Argument(op, name, "%s must be an integer, got %s", name, formatFloat(f))
	}
	i := int(f)
	return &i, nil
}

func optionalBool(op string, args map[string]any, name string, def bool) (bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, docerr.Argument(op, name, "%s must be a boolean, got %T", name, raw)
	}
	return b, nil
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
