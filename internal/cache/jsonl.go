package cache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"mill-presenter/internal/errors"
)

// jsonlWriter streams the header and then one record per line. Each line
// is written straight to the file so a crash loses at most the line being
// written.
type jsonlWriter struct {
	f   *os.File
	enc *json.Encoder
}

func createJSONL(path string, h Header) (*jsonlWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create cache %s", path)
	}
	w := &jsonlWriter{f: f, enc: json.NewEncoder(f)}
	if err := w.enc.Encode(h); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write cache header")
	}
	return w, nil
}

func (w *jsonlWriter) Append(rec FrameRecord) error {
	if err := w.enc.Encode(rec); err != nil {
		return errors.Wrapf(err, "write frame %d", rec.FrameIndex)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return errors.Wrap(err, "sync cache")
	}
	return w.f.Close()
}

// loadJSONL reads a JSONL cache. A final line without a newline that does
// not parse is a write interrupted by a crash and is dropped.
func loadJSONL(path string) (Header, []FrameRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, errors.Wrapf(err, "open cache %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var h Header
	line, err := r.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Header{}, nil, errors.Wrapf(err, "read cache %s", path)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, nil, errors.Wrapf(err, "cache %s: bad header", path)
	}
	if h.Version != FormatVersion {
		return Header{}, nil, errors.Newf("cache %s: unsupported version %q", path, h.Version)
	}

	records := []FrameRecord{}
	for lineNo := 2; ; lineNo++ {
		line, err := r.ReadBytes('\n')
		complete := err == nil
		if err != nil && !errors.Is(err, io.EOF) {
			return Header{}, nil, errors.Wrapf(err, "read cache %s", path)
		}
		if len(bytes.TrimSpace(line)) > 0 {
			var rec FrameRecord
			if uerr := json.Unmarshal(line, &rec); uerr != nil {
				if !complete {
					break
				}
				return Header{}, nil, errors.Wrapf(uerr, "cache %s line %d", path, lineNo)
			}
			records = append(records, rec)
		}
		if !complete {
			break
		}
	}
	return h, records, nil
}

// exportDoc is the single-document JSON layout used for interchange:
// frames keyed by their index.
type exportDoc struct {
	Version  string                 `json:"version"`
	Metadata exportMetadata         `json:"metadata"`
	Config   interface{}            `json:"config"`
	Frames   map[string]FrameRecord `json:"frames"`
}

type exportMetadata struct {
	RunID     string      `json:"run_id"`
	CreatedAt string      `json:"created_at"`
	Video     VideoInfo   `json:"video"`
	Geometry  interface{} `json:"geometry"`
}

// Export writes header and records as one indented JSON document.
func Export(w io.Writer, h Header, records []FrameRecord) error {
	doc := exportDoc{
		Version: h.Version,
		Metadata: exportMetadata{
			RunID:     h.RunID,
			CreatedAt: h.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			Video:     h.Video,
			Geometry:  h.Geometry,
		},
		Config: h.Config,
		Frames: make(map[string]FrameRecord, len(records)),
	}
	for _, rec := range records {
		doc.Frames[strconv.Itoa(rec.FrameIndex)] = rec
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(doc), "export cache")
}
