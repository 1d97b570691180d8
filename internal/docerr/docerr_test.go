package docerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := SessionNotFound("close", "abc123")
	wrapped := fmt.Errorf("tool execution failed: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, NotFound))
	assert.True(t, errors.Is(wrapped, &Error{Kind: NotFound}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: IOError}))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "argument error names the argument",
			err:      Argument("pdf-to-text", "start_page", "start_page (%d) is greater than end_page (%d)", 2, 1),
			expected: "InvalidArgument: start_page (2) is greater than end_page (1) (argument: start_page)",
		},
		{
			name:     "wrapped cause is appended",
			err:      Wrap(IOError, "open", errors.New("permission denied"), "cannot read /tmp/a.pdf"),
			expected: "IOError: cannot read /tmp/a.pdf: permission denied",
		},
		{
			name:     "page out of range",
			err:      PageOutOfRange("page-text", 3, 3),
			expected: "OutOfRange: page 3 is out of range (document has 3 pages, valid 0-2)",
		},
		{
			name:     "empty document",
			err:      PageOutOfRange("page-text", 0, 0),
			expected: "OutOfRange: page 0 is out of range (document has no pages)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Cancelled("page-text", ctx.Err())
	assert.Equal(t, IOError, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "[IOError] request cancelled: context canceled", Tagged(err))
	assert.NoError(t, Cancelled("page-text", nil))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(IOError, "open", nil, "ignored"))
}

func TestTagged(t *testing.T) {
	assert.Equal(t, "[NotFound] no open PDF with id \"abc123\" (argument: pdf_id)",
		Tagged(SessionNotFound("close", "abc123")))
	assert.Equal(t, "[OutOfRange] page 5 is out of range (document has 3 pages, valid 0-2)",
		Tagged(fmt.Errorf("extracting: %w", PageOutOfRange("page-text", 5, 3))))
	assert.Equal(t, "[IOError] disk on fire", Tagged(errors.New("disk on fire")))

	assert.Equal(t, IOError, KindOrDefault(errors.New("unclassified")))
	assert.Equal(t, InvalidDocument, KindOrDefault(New(InvalidDocument, "open", "not a PDF")))
}
