package document

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"
)

// infoDict reads the document information dictionary. Entries that cannot be resolved or
// decoded are skipped; an absent dictionary yields an empty map.
func infoDict(ctx *model.Context, logger *logrus.Logger) (fields map[string]string) {
	fields = make(map[string]string)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Warn("Failed to read document info dictionary")
		}
	}()

	if ctx == nil || ctx.Info == nil {
		return fields
	}

	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		logger.WithError(err).Debug("Document info dictionary unavailable")
		return fields
	}

	for key, value := range d {
		obj, err := ctx.Dereference(value)
		if err != nil || obj == nil {
			continue
		}

		s, ok := objectString(obj)
		if !ok {
			continue
		}
		s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
		if s == "" {
			continue
		}
		fields[key] = s
	}

	return fields
}

// objectString decodes the string-like PDF objects found in info dictionaries
func objectString(obj types.Object) (string, bool) {
	switch o := obj.(type) {
	case types.StringLiteral:
		s, err := types.StringLiteralToString(o)
		if err != nil {
			return o.Value(), true
		}
		return s, true
	case types.HexLiteral:
		s, err := types.HexLiteralToString(o)
		if err != nil {
			return "", false
		}
		return s, true
	case types.Name:
		return o.Value(), true
	case types.Boolean, types.Integer, types.Float:
		return o.String(), true
	}
	return "", false
}
