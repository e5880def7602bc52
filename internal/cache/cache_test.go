package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mill-presenter/internal/bead"
	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"
)

var labels = []int{4, 6, 8, 10}

func testHeader(t *testing.T) Header {
	t.Helper()
	g, err := drum.New(960, 540, 400, 200)
	require.NoError(t, err)
	h := NewHeader(VideoInfo{Path: "mill.mp4", Width: 1920, Height: 1080, FPS: 30, TotalFrames: 3}, g, config.Default())
	h.ToolVersion = "test"
	return h
}

func testRecords() []FrameRecord {
	return []FrameRecord{
		NewFrameRecord(0, 30, []bead.Ball{
			{X: 100, Y: 120, RPx: 12, DiameterMM: 6, Class: 6, Conf: 0.93},
			{X: 300, Y: 310, RPx: 20.5, DiameterMM: 10.25, Class: 10, Conf: 1},
		}, labels),
		DegradedRecord(1, 30, labels),
		NewFrameRecord(2, 30, []bead.Ball{
			{X: 5, Y: 6, RPx: 2, DiameterMM: 1, Class: 0, Conf: 0.5},
		}, labels),
	}
}

func TestNewFrameRecord(t *testing.T) {
	rec := NewFrameRecord(45, 30, []bead.Ball{
		{Class: 6, Conf: 0.55},
		{Class: 6, Conf: 0.99},
		{Class: 10, Conf: 1.0},
		{Class: 0, Conf: 0.05},
	}, labels)

	assert.Equal(t, 45, rec.FrameIndex)
	assert.InDelta(t, 1.5, rec.Timestamp, 1e-12)
	assert.Equal(t, map[int]int{4: 0, 6: 2, 8: 0, 10: 1}, rec.Counts)
	assert.Equal(t, 3, rec.Total())
	assert.Equal(t, [HistogramBins]int{1, 0, 0, 0, 0, 1, 0, 0, 0, 2}, rec.ConfHistogram)
	assert.False(t, rec.Degraded)
}

func TestNewFrameRecordEmpty(t *testing.T) {
	rec := NewFrameRecord(0, 0, nil, labels)
	assert.NotNil(t, rec.Balls)
	assert.Empty(t, rec.Balls)
	assert.Zero(t, rec.Timestamp)
	assert.Equal(t, [HistogramBins]int{}, rec.ConfHistogram)
	assert.Len(t, rec.Counts, 4)
}

func TestDegradedRecord(t *testing.T) {
	rec := DegradedRecord(7, 25, labels)
	assert.True(t, rec.Degraded)
	assert.Empty(t, rec.Balls)
	assert.Equal(t, 0, rec.Total())
	assert.InDelta(t, 0.28, rec.Timestamp, 1e-12)
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range []string{".jsonl", ".db", ".sqlite"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache"+ext)
			h := testHeader(t)
			want := testRecords()

			w, err := Create(path, h)
			require.NoError(t, err)
			for _, rec := range want {
				require.NoError(t, w.Append(rec))
			}
			require.NoError(t, w.Close())

			gotHeader, got, err := Load(path)
			require.NoError(t, err)
			if diff := cmp.Diff(h, gotHeader); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadEmptyRun(t *testing.T) {
	for _, ext := range []string{".jsonl", ".db"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache"+ext)
			w, err := Create(path, testHeader(t))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			_, got, err := Load(path)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestJSONLTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonl")
	w, err := Create(path, testHeader(t))
	require.NoError(t, err)
	for _, rec := range testRecords() {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	// Simulate a crash halfway through writing one more record.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`{"frame_id":3,"timestamp":0.1,"ba`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(testRecords(), got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONLCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonl")
	raw, err := json.Marshal(testHeader(t))
	require.NoError(t, err)
	content := string(raw) + "\nnot json\n" + `{"frame_id":1}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, _, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestJSONLRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0"}`+"\n"), 0o644))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestSQLiteMultipleRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	first := testHeader(t)
	first.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	second := testHeader(t)
	second.CreatedAt = first.CreatedAt.Add(time.Hour)

	for i, h := range []Header{first, second} {
		w, err := Create(path, h)
		require.NoError(t, err)
		require.NoError(t, w.Append(NewFrameRecord(i, 30, nil, labels)))
		require.NoError(t, w.Close())
	}

	runs, err := ListRuns(path)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.RunID, runs[0].RunID)
	assert.Equal(t, second.RunID, runs[1].RunID)

	latest, recs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].FrameIndex)

	h, recs, err := LoadRun(path, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, h.RunID)
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].FrameIndex)

	_, _, err = LoadRun(path, "missing")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"none.jsonl", "none.db"} {
		_, _, err := Load(filepath.Join(dir, name))
		assert.Error(t, err, name)
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(statErr), "Load must not create %s", name)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "cache.csv"), testHeader(t))
	assert.Error(t, err)

	_, err = FormatFor("x.parquet")
	assert.Error(t, err)

	f, err := FormatFor("x.SQLITE")
	require.NoError(t, err)
	assert.Equal(t, FormatSQLite, f)
	assert.Equal(t, "sqlite", f.String())
}

func TestExport(t *testing.T) {
	var buf bytes.Buffer
	h := testHeader(t)
	require.NoError(t, Export(&buf, h, testRecords()))

	var doc struct {
		Version  string                     `json:"version"`
		Metadata map[string]json.RawMessage `json:"metadata"`
		Config   config.PipelineConfig      `json:"config"`
		Frames   map[string]FrameRecord     `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, FormatVersion, doc.Version)
	assert.Contains(t, doc.Metadata, "geometry")
	assert.Contains(t, doc.Metadata, "video")
	assert.Equal(t, config.Default().MinConf, doc.Config.MinConf)
	require.Len(t, doc.Frames, 3)
	assert.True(t, doc.Frames["1"].Degraded)
	assert.Len(t, doc.Frames["0"].Balls, 2)
}

func TestMemory(t *testing.T) {
	m := NewMemory(testHeader(t))
	require.NoError(t, m.Append(DegradedRecord(0, 0, labels)))
	require.NoError(t, m.Close())
	assert.True(t, m.Closed)
	assert.Len(t, m.Records, 1)
	assert.Error(t, m.Append(DegradedRecord(1, 0, labels)))
}
