package document

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sirupsen/logrus"
)

// imageDocument is a pdfDocument that can also decode page images
type imageDocument struct {
	*pdfDocument
}

func (d *imageDocument) PageImages(index int) ([]Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPage("page-images", index); err != nil {
		return nil, err
	}

	pageImages, err := extractPageImages(d.ctx, index+1)
	if err != nil {
		return nil, docerr.Wrap(docerr.InvalidDocument, "page-images", err, fmt.Sprintf("failed to extract images from page %d", index))
	}

	objNrs := make([]int, 0, len(pageImages))
	for objNr := range pageImages {
		objNrs = append(objNrs, objNr)
	}
	slices.Sort(objNrs)

	images := make([]Image, 0, len(objNrs))
	for _, objNr := range objNrs {
		img := pageImages[objNr]
		if img.Reader == nil {
			continue
		}

		data, err := io.ReadAll(img)
		if err != nil {
			return nil, docerr.Wrap(docerr.InvalidDocument, "page-images", err, fmt.Sprintf("failed to decode image object %d", objNr))
		}
		if len(data) == 0 {
			continue
		}

		images = append(images, Image{
			Name:   img.Name,
			Format: imageFormat(img.FileType),
			ObjNr:  objNr,
			Data:   data,
		})
	}

	d.logger.WithFields(logrus.Fields{
		"page":   index,
		"images": len(images),
	}).Debug("Page images decoded")

	return images, nil
}

func (d *imageDocument) ImageCount(index int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPage("image-count", index); err != nil {
		return 0, err
	}
	return len(pdfcpu.ImageObjNrs(d.ctx, index+1)), nil
}

// extractPageImages recovers from pdfcpu panics on malformed image streams
func extractPageImages(ctx *model.Context, pageNr int) (images map[int]model.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			images, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	return pdfcpu.ExtractPageImages(ctx, pageNr, false)
}

// imageFormat maps a pdfcpu file type onto a file extension
func imageFormat(fileType string) string {
	switch ft := strings.ToLower(strings.TrimPrefix(fileType, ".")); ft {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	case "":
		return "png"
	default:
		return ft
	}
}
