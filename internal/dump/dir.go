package dump

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// DefaultPrefix starts every artifact name.
const DefaultPrefix = "dbpurge_"

const (
	sqlExt  = ".sql"
	gzipExt = ".gz"
)

// ServiceName is the AppContext service under which the backup directory
// is published.
const ServiceName = "dump.dir"

// ErrNotFound indicates the requested artifact does not exist.
var ErrNotFound = errors.New("dump: artifact not found")

// Config configures the backup directory.
type Config struct {
	Dir      string
	Prefix   string
	Compress bool

	// Level is the gzip level. Zero means gzip.BestCompression.
	Level int
}

// Dir manages the artifacts of one backup directory.
type Dir struct {
	dir      string
	prefix   string
	compress bool
	level    int
}

// New creates the directory if needed.
func New(cfg Config) (*Dir, error) {
	if cfg.Dir == "" {
		return nil, errors.New("dump: directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("dump: create %s: %w", cfg.Dir, err)
	}
	d := &Dir{dir: cfg.Dir, prefix: cfg.Prefix, compress: cfg.Compress, level: cfg.Level}
	if d.prefix == "" {
		d.prefix = DefaultPrefix
	}
	if d.level == 0 {
		d.level = gzip.BestCompression
	}
	return d, nil
}

// Path returns the file an artifact is written to.
func (d *Dir) Path(artifact string) string {
	name := artifact + sqlExt
	if d.compress {
		name += gzipExt
	}
	return filepath.Join(d.dir, name)
}

// Open opens an artifact for appending.
func (d *Dir) Open(artifact string) (*FileSink, error) {
	if artifact == "" || artifact != filepath.Base(artifact) {
		return nil, fmt.Errorf("dump: invalid artifact name %q", artifact)
	}
	return openSink(d.Path(artifact), d.compress, d.level)
}

// ArtifactName derives the artifact name of a new job. Optimize jobs write
// no artifact.
func (d *Dir) ArtifactName(kind checkpoint.Kind, cfg checkpoint.Config) string {
	switch kind {
	case checkpoint.KindSitePurge:
		return d.prefix + strconv.FormatInt(cfg.SiteID, 10) + "_" + url.QueryEscape(cfg.SiteName)
	case checkpoint.KindLogPurge:
		return d.prefix + "until_" + cfg.Until.UTC().Format("20060102_150405")
	}
	return ""
}

// Artifact describes one backup file.
type Artifact struct {
	Name     string    `json:"name"`
	Path     string    `json:"-"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	MIME     string    `json:"mime"`
}

// Open returns the raw artifact bytes.
func (a Artifact) Open() (io.ReadCloser, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", a.Name, err)
	}
	return f, nil
}

// List returns the artifacts in the directory, sorted by name.
func (d *Dir) List() ([]Artifact, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, globEscape(d.prefix)+"*"))
	if err != nil {
		return nil, fmt.Errorf("dump: list: %w", err)
	}
	out := make([]Artifact, 0, len(matches))
	for _, path := range matches {
		a, ok := stat(path)
		if ok {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Lookup returns the artifact with the given file name.
func (d *Dir) Lookup(name string) (Artifact, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasPrefix(name, d.prefix) {
		return Artifact{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	a, ok := stat(filepath.Join(d.dir, name))
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

func stat(path string) (Artifact, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Artifact{}, false
	}
	return Artifact{
		Name:     info.Name(),
		Path:     path,
		Size:     info.Size(),
		Created:  changeTime(info),
		Modified: info.ModTime(),
		MIME:     mimeType(info.Name()),
	}, true
}

func mimeType(name string) string {
	switch {
	case strings.HasSuffix(name, gzipExt):
		return "application/gzip"
	case strings.HasSuffix(name, sqlExt):
		return "application/sql"
	}
	return "application/octet-stream"
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
