// Package dump writes backup artifacts to a directory and lists them for
// download.
package dump

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrClosed is returned when writing to a closed sink.
var ErrClosed = errors.New("dump: sink closed")

// FileSink appends to one artifact file. Compressed artifacts get one gzip
// member per open, which gzip readers concatenate transparently.
type FileSink struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	gz     *gzip.Writer
	closed bool
}

func openSink(path string, compress bool, level int) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", path, err)
	}
	s := &FileSink{path: path, f: f}
	if compress {
		gz, err := gzip.NewWriterLevel(f, level)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("dump: gzip %s: %w", path, err)
		}
		s.gz = gz
	}
	return s, nil
}

// Path returns the file backing the sink.
func (s *FileSink) Path() string { return s.path }

// Write appends p to the artifact.
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.gz != nil {
		return s.gz.Write(p)
	}
	return s.f.Write(p)
}

// Close flushes and closes the artifact. Later calls are no-ops.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
	}
	errs = append(errs, s.f.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dump: close %s: %w", s.path, err)
	}
	return nil
}
