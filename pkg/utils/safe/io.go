package safe

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
)

// Close closes c and logs a failure. A nil closer and an already closed
// file are ignored.
func Close(ctx context.Context, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logging.From(ctx).Warn("failed to close", "error", err.Error())
	}
}

// Write writes data to w and logs a failure, including short writes
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	n, err := w.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		logging.From(ctx).Warn("failed to write",
			"error", err.Error(),
			"written", n,
			"size", len(data))
	}
}
