// Package resources publishes every open PDF as a pdf://<id> MCP resource.
package resources

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	// Scheme prefixes every resource URI
	Scheme = "pdf://"
	// MIMEType is reported for every resource
	MIMEType = "application/pdf"
)

// Registrar is the part of an MCP server resources are published to
type Registrar interface {
	AddResource(resource mcp.Resource, handler server.ResourceHandlerFunc)
	RemoveResource(uri string)
}

// Publisher keeps the registrar's resource list in step with the open sessions
type Publisher struct {
	store     *session.Store
	registrar Registrar
	logger    *logrus.Logger
}

// NewPublisher registers the publisher as a store observer. Sessions opened before the call
// are published immediately.
func NewPublisher(store *session.Store, registrar Registrar, logger *logrus.Logger) *Publisher {
	p := &Publisher{store: store, registrar: registrar, logger: logger}
	for _, info := range store.List() {
		p.publish(info)
	}
	store.AddObserver(session.Observer{
		OnOpen:  p.publish,
		OnClose: p.withdraw,
	})
	return p
}

// URI returns the resource URI of a session
func URI(id string) string {
	return Scheme + id
}

// ParseURI returns the session id of a pdf:// URI
func ParseURI(uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, Scheme)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", docerr.Argument("read-resource", "uri", "invalid PDF resource URI %q", uri)
	}
	return id, nil
}

// Resource describes the resource of a session
func Resource(info session.Info) mcp.Resource {
	return mcp.NewResource(URI(info.ID), "PDF: "+info.Name(),
		mcp.WithResourceDescription("PDF document: "+info.Path),
		mcp.WithMIMEType(MIMEType),
	)
}

// Read returns the raw bytes of an open PDF as a base64 blob
func (p *Publisher) Read(_ context.Context, uri string) ([]mcp.ResourceContents, error) {
	const op = "read-resource"

	id, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = p.store.With(id, func(info session.Info, _ document.Document) error {
		b, err := os.ReadFile(info.Path)
		if err != nil {
			return docerr.Wrap(docerr.IOError, op, err, "failed to read "+info.Path)
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.BlobResourceContents{
			URI:      uri,
			MIMEType: MIMEType,
			Blob:     base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}

func (p *Publisher) publish(info session.Info) {
	p.registrar.AddResource(Resource(info), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return p.Read(ctx, request.Params.URI)
	})
	p.logger.WithField("uri", URI(info.ID)).Debug("Resource published")
}

func (p *Publisher) withdraw(info session.Info) {
	p.registrar.RemoveResource(URI(info.ID))
	p.logger.WithField("uri", URI(info.ID)).Debug("Resource withdrawn")
}
