package cache

import (
	"path/filepath"
	"strings"

	"mill-presenter/internal/errors"
)

// Writer receives frame records in frame order. Close finalises the cache
// and must be called exactly once, also after a failed Append.
type Writer interface {
	Append(rec FrameRecord) error
	Close() error
}

// Format is a cache storage format.
type Format int

const (
	FormatJSONL Format = iota
	FormatSQLite
)

func (f Format) String() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return FormatJSONL, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		err := errors.Newf("unsupported cache format %q", filepath.Ext(path))
		return 0, errors.WithHint(err, "use a .jsonl, .db or .sqlite file")
	}
}

// Create opens a writer for path and writes the header.
func Create(path string, h Header) (Writer, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatSQLite:
		return createSQLite(path, h)
	default:
		return createJSONL(path, h)
	}
}

// Load reads a cache written by Create. Records are returned in the order
// they were appended.
func Load(path string) (Header, []FrameRecord, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Header{}, nil, err
	}
	switch format {
	case FormatSQLite:
		return loadSQLite(path, "")
	default:
		return loadJSONL(path)
	}
}

// Memory is a Writer that keeps records in memory.
type Memory struct {
	Header  Header
	Records []FrameRecord
	Closed  bool
}

var _ Writer = (*Memory)(nil)

// NewMemory creates an in-memory cache.
func NewMemory(h Header) *Memory {
	return &Memory{Header: h}
}

func (m *Memory) Append(rec FrameRecord) error {
	if m.Closed {
		return errors.New("append to closed cache")
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *Memory) Close() error {
	m.Closed = true
	return nil
}
