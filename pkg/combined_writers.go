package pkg

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter writes every chunk to all of its writers. A failing writer does not
// stop the others; the chunk counts as written when at least one writer took it whole.
type CombinedWriter struct {
	writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		writers: writers,
	}
}

func (cw *CombinedWriter) Len() int {
	return len(cw.writers)
}

func (cw *CombinedWriter) Write(p []byte) (int, error) {
	var errs error
	delivered := false
	for i, w := range cw.writers {
		n, err := w.Write(p)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("writer %d: %w", i, err))
			continue
		}
		delivered = true
	}

	if !delivered && len(cw.writers) > 0 {
		return 0, errs
	}
	return len(p), errs
}
