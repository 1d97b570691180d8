package document

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

func (d *pdfDocument) PageText(index int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPage("page-text", index); err != nil {
		return "", err
	}

	pageNr := index + 1

	if d.reader != nil {
		text, err := plainText(d.reader, pageNr)
		if err == nil {
			return NormaliseText(text), nil
		}
		d.logger.WithError(err).WithField("page", index).Debug("Text reader failed, falling back to content stream parsing")
	}

	text, err := contentStreamText(d, pageNr)
	if err != nil {
		return "", docerr.Wrap(docerr.InvalidDocument, "page-text", err, fmt.Sprintf("failed to extract text from page %d", index))
	}
	return NormaliseText(text), nil
}

// plainText extracts the text of a one-based page number with ledongthuc/pdf
func plainText(r *pdf.Reader, pageNr int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("text reader panic on page %d: %v", pageNr, rec)
		}
	}()

	p := r.Page(pageNr)
	if p.V.IsNull() {
		return "", nil
	}

	fonts := make(map[string]*pdf.Font)
	for _, name := range p.Fonts() {
		f := p.Font(name)
		fonts[name] = &f
	}

	return p.GetPlainText(fonts)
}

// contentStreamText reads the raw content stream of a one-based page with pdfcpu and pulls
// the strings out of its text-showing operators
func contentStreamText(d *pdfDocument, pageNr int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("content stream panic on page %d: %v", pageNr, rec)
		}
	}()

	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	d.logger.WithFields(logrus.Fields{
		"page":         pageNr,
		"content_size": len(content),
	}).Debug("Parsing page content stream")

	texts := textFromContent(string(content))
	if len(texts) == 0 {
		return readableText(string(content)), nil
	}
	return cleanupExtractedText(strings.Join(texts, " ")), nil
}

var blankLineRuns = regexp.MustCompile(`\n{3,}`)

// NormaliseText composes Unicode to NFC, unifies line endings, trims surrounding
// whitespace and shortens runs of blank lines to one, keeping paragraph breaks
func NormaliseText(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// textFromContent extracts all strings shown by Tj, TJ, ' and " operators
func textFromContent(content string) []string {
	var texts []string
	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.Contains(line, " Tj") || strings.Contains(line, " TJ") ||
			strings.Contains(line, "' ") || strings.Contains(line, "\" ") ||
			strings.HasSuffix(line, "Tj") || strings.HasSuffix(line, "TJ") {
			for _, text := range stringOperands(line) {
				if text != "" {
					texts = append(texts, text)
				}
			}
		}
	}
	return texts
}

// stringOperands returns the literal strings in a single content stream operation
func stringOperands(operation string) []string {
	var texts []string
	depth := 0
	start := -1

	for i := 0; i < len(operation); i++ {
		c := operation[i]
		if c == '\\' {
			i++
			continue
		}
		switch c {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				text := unescapeLiteral(operation[start:i])
				if strings.TrimSpace(text) != "" {
					texts = append(texts, text)
				}
				start = -1
			}
		}
	}
	return texts
}

// unescapeLiteral resolves the escape sequences of a PDF literal string
func unescapeLiteral(raw string) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b', 'f':
			// backspace and form feed carry no text
		case '(', ')', '\\':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			end := i + 1
			for end < len(raw) && end < i+3 && raw[end] >= '0' && raw[end] <= '7' {
				end++
			}
			v, _ := strconv.ParseUint(raw[i:end], 8, 8)
			sb.WriteRune(pdfDocRune(byte(v)))
			i = end - 1
		}
	}
	return sb.String()
}

// pdfDocRune maps the WinAnsi punctuation commonly written as octal escapes; everything
// else is read as Latin-1
func pdfDocRune(b byte) rune {
	switch b {
	case 0x91, 0x92:
		return '\''
	case 0x93, 0x94:
		return '"'
	case 0x96:
		return '–'
	case 0x97:
		return '—'
	case 0xa0:
		return ' '
	}
	return rune(b)
}

// readableText keeps the lines of content that look like prose rather than operators
func readableText(content string) string {
	var lines []string
	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isContentOperator(line) || !isReadable(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, " ")
}

var contentOperators = []string{
	"BT", "ET", "Tf", "Td", "TD", "Tm", "T*", "Tj", "TJ", "'", "\"",
	"q", "Q", "cm", "w", "J", "j", "M", "d", "ri", "i", "gs",
	"CS", "cs", "SC", "SCN", "sc", "scn", "G", "g", "RG", "rg", "K", "k",
	"m", "l", "c", "v", "y", "h", "re", "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n",
	"W", "W*", "BX", "EX", "MP", "DP", "BMC", "BDC", "EMC", "Do",
}

// isContentOperator reports whether line is a content stream operation rather than text
func isContentOperator(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 {
		return false
	}
	if slices.Contains(contentOperators, words[len(words)-1]) {
		return true
	}

	nonNumeric := 0
	for _, word := range words {
		if _, err := strconv.ParseFloat(word, 64); err != nil {
			nonNumeric++
		}
	}
	return float64(nonNumeric)/float64(len(words)) < 0.3
}

// isReadable requires at least 30% alphabetic characters
func isReadable(line string) bool {
	if len(line) < 2 {
		return false
	}
	alpha := 0
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alpha++
		}
	}
	return float64(alpha)/float64(len(line)) >= 0.3
}

// cleanupExtractedText drops control characters and tidies spacing around punctuation
func cleanupExtractedText(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			sb.WriteRune(r)
		case r == 0:
		case r < 32:
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	text = sb.String()

	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	for _, p := range []string{".", ",", "!", "?"} {
		text = strings.ReplaceAll(text, " "+p, p)
	}
	return strings.TrimSpace(text)
}
