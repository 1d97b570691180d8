package testutils

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"slices"
	"strings"
)

const (
	catalogObj = 1
	pagesObj   = 2
	fontObj    = 3
	infoObj    = 4
	firstPage  = 5

	imageSide = 8
)

// Page is one generated page: its text, lines separated by "\n", and the number of
// 8x8 DeviceRGB images drawn on it
type Page struct {
	Text   string
	Images int
}

// BuildPDF generates a minimal, valid PDF 1.4 file with one Helvetica text page per
// element of pages and an information dictionary holding info.
func BuildPDF(info map[string]string, pages ...string) []byte {
	specs := make([]Page, len(pages))
	for i, text := range pages {
		specs[i] = Page{Text: text}
	}
	return BuildPages(info, specs...)
}

// BuildPages is BuildPDF with images. Every image has a distinct colour so none are
// merged as duplicates, and images are numbered in drawing order.
func BuildPages(info map[string]string, pages ...Page) []byte {
	var buf bytes.Buffer
	offsets := map[int]int{}

	writeObj := func(nr int, body string) {
		offsets[nr] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", nr, body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// page i occupies pageNrs[i], its content stream pageNrs[i]+1, then its images
	pageNrs := make([]int, len(pages))
	kids := make([]string, len(pages))
	next := firstPage
	for i, p := range pages {
		pageNrs[i] = next
		kids[i] = fmt.Sprintf("%d 0 R", next)
		next += 2 + p.Images
	}

	writeObj(catalogObj, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))
	writeObj(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>",
		strings.Join(kids, " "), len(pages)))
	writeObj(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var infoBody strings.Builder
	infoBody.WriteString("<<")
	for _, k := range keys {
		fmt.Fprintf(&infoBody, " /%s (%s)", k, escapeLiteral(info[k]))
	}
	infoBody.WriteString(" >>")
	writeObj(infoObj, infoBody.String())

	colour := 0
	for i, p := range pages {
		pageNr := pageNrs[i]
		contentNr := pageNr + 1

		resources := fmt.Sprintf("/Font << /F1 %d 0 R >>", fontObj)
		if p.Images > 0 {
			var xobjects strings.Builder
			for k := range p.Images {
				fmt.Fprintf(&xobjects, " /Im%d %d 0 R", k, contentNr+1+k)
			}
			resources += fmt.Sprintf(" /XObject <<%s >>", xobjects.String())
		}

		writeObj(pageNr, fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << %s >> /Contents %d 0 R >>",
			pagesObj, resources, contentNr))

		content := pageContent(p)
		writeObj(contentNr, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

		for k := range p.Images {
			colour++
			data := imageData(colour)
			writeObj(contentNr+1+k, fmt.Sprintf(
				"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /FlateDecode /Length %d >>\nstream\n%s\nendstream",
				imageSide, imageSide, len(data), data))
		}
	}

	size := next
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for nr := 1; nr < size; nr++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[nr])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		size, catalogObj, infoObj, xref)

	return buf.Bytes()
}

// pageContent draws the page images in a row, then the text, one text line per input line
func pageContent(p Page) string {
	var sb strings.Builder
	for k := range p.Images {
		fmt.Fprintf(&sb, "q 64 0 0 64 %d 600 cm /Im%d Do Q\n", 72+80*k, k)
	}

	if strings.TrimSpace(p.Text) == "" {
		return strings.TrimSuffix(sb.String(), "\n")
	}

	sb.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
	for i, line := range strings.Split(p.Text, "\n") {
		if i > 0 {
			sb.WriteString("T*\n")
		}
		fmt.Fprintf(&sb, "(%s) Tj\n", escapeLiteral(line))
	}
	sb.WriteString("ET")
	return sb.String()
}

// imageData returns zlib-compressed RGB samples of a solid colour derived from seed
func imageData(seed int) string {
	pixel := []byte{byte(seed * 40), byte(255 - seed*30), byte(seed * 70)}
	raw := bytes.Repeat(pixel, imageSide*imageSide)

	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	_, _ = w.Write(raw)
	_ = w.Close()
	return out.String()
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
