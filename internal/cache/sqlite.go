package cache

import (
	"database/sql"
	"encoding/json"
	"os"

	"mill-presenter/internal/bead"
	"mill-presenter/internal/errors"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id            TEXT PRIMARY KEY,
		created_at_ns     BIGINT,
		version           TEXT,
		header            TEXT
	);
	CREATE TABLE IF NOT EXISTS frames (
		run_id            TEXT,
		frame_index       BIGINT,
		timestamp         DOUBLE,
		degraded          INTEGER,
		counts            TEXT,
		conf_histogram    TEXT,
		PRIMARY KEY (run_id, frame_index),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
	CREATE TABLE IF NOT EXISTS balls (
		run_id            TEXT,
		frame_index       BIGINT,
		seq               INTEGER,
		x                 INTEGER,
		y                 INTEGER,
		r_px              DOUBLE,
		diameter_mm       DOUBLE,
		cls               INTEGER,
		conf              DOUBLE,
		PRIMARY KEY (run_id, frame_index, seq)
	);
`

// sqliteWriter stores each run as a row in runs plus its frames and balls.
// Several runs can share one database file.
type sqliteWriter struct {
	db    *sql.DB
	runID string
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open cache %s", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "create cache schema in %s", path)
	}
	return db, nil
}

func createSQLite(path string, h Header) (*sqliteWriter, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(h)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "encode cache header")
	}
	_, err = db.Exec(`INSERT INTO runs (run_id, created_at_ns, version, header) VALUES (?, ?, ?, ?)`,
		h.RunID, h.CreatedAt.UnixNano(), h.Version, string(raw))
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "record run %s", h.RunID)
	}
	return &sqliteWriter{db: db, runID: h.RunID}, nil
}

func (w *sqliteWriter) Append(rec FrameRecord) error {
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return errors.Wrap(err, "encode counts")
	}
	hist, err := json.Marshal(rec.ConfHistogram)
	if err != nil {
		return errors.Wrap(err, "encode histogram")
	}

	tx, err := w.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin frame insert")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO frames (run_id, frame_index, timestamp, degraded, counts, conf_histogram)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.runID, rec.FrameIndex, rec.Timestamp, rec.Degraded, string(counts), string(hist))
	if err != nil {
		return errors.Wrapf(err, "insert frame %d", rec.FrameIndex)
	}

	stmt, err := tx.Prepare(`INSERT INTO balls (run_id, frame_index, seq, x, y, r_px, diameter_mm, cls, conf)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare ball insert")
	}
	defer stmt.Close()

	for i, b := range rec.Balls {
		if _, err := stmt.Exec(w.runID, rec.FrameIndex, i, b.X, b.Y, b.RPx, b.DiameterMM, b.Class, b.Conf); err != nil {
			return errors.Wrapf(err, "insert ball %d of frame %d", i, rec.FrameIndex)
		}
	}
	return errors.Wrapf(tx.Commit(), "commit frame %d", rec.FrameIndex)
}

func (w *sqliteWriter) Close() error {
	return w.db.Close()
}

// ListRuns returns the headers of every run in a SQLite cache, oldest first.
func ListRuns(path string) ([]Header, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT header FROM runs ORDER BY created_at_ns, rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var headers []Header
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		var h Header
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, errors.Wrap(err, "decode run header")
		}
		headers = append(headers, h)
	}
	return headers, errors.Wrap(rows.Err(), "list runs")
}

// LoadRun reads one run from a SQLite cache. An empty runID selects the
// most recent run.
func LoadRun(path, runID string) (Header, []FrameRecord, error) {
	return loadSQLite(path, runID)
}

func openExisting(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "open cache %s", path)
	}
	return openSQLite(path)
}

func loadSQLite(path, runID string) (Header, []FrameRecord, error) {
	db, err := openExisting(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer db.Close()

	var raw string
	if runID == "" {
		err = db.QueryRow(`SELECT header FROM runs ORDER BY created_at_ns DESC, rowid DESC LIMIT 1`).Scan(&raw)
	} else {
		err = db.QueryRow(`SELECT header FROM runs WHERE run_id = ?`, runID).Scan(&raw)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Header{}, nil, errors.Newf("cache %s: no run %q", path, runID)
	}
	if err != nil {
		return Header{}, nil, errors.Wrapf(err, "read run from %s", path)
	}

	var h Header
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return Header{}, nil, errors.Wrapf(err, "cache %s: bad header", path)
	}

	balls, err := loadBalls(db, h.RunID)
	if err != nil {
		return Header{}, nil, err
	}

	rows, err := db.Query(`SELECT frame_index, timestamp, degraded, counts, conf_histogram
		FROM frames WHERE run_id = ? ORDER BY frame_index`, h.RunID)
	if err != nil {
		return Header{}, nil, errors.Wrap(err, "query frames")
	}
	defer rows.Close()

	records := []FrameRecord{}
	for rows.Next() {
		var rec FrameRecord
		var counts, hist string
		if err := rows.Scan(&rec.FrameIndex, &rec.Timestamp, &rec.Degraded, &counts, &hist); err != nil {
			return Header{}, nil, errors.Wrap(err, "scan frame")
		}
		if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
			return Header{}, nil, errors.Wrapf(err, "frame %d counts", rec.FrameIndex)
		}
		if err := json.Unmarshal([]byte(hist), &rec.ConfHistogram); err != nil {
			return Header{}, nil, errors.Wrapf(err, "frame %d histogram", rec.FrameIndex)
		}
		rec.Balls = balls[rec.FrameIndex]
		if rec.Balls == nil {
			rec.Balls = []bead.Ball{}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Header{}, nil, errors.Wrap(err, "read frames")
	}
	return h, records, nil
}

func loadBalls(db *sql.DB, runID string) (map[int][]bead.Ball, error) {
	rows, err := db.Query(`SELECT frame_index, x, y, r_px, diameter_mm, cls, conf
		FROM balls WHERE run_id = ? ORDER BY frame_index, seq`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query balls")
	}
	defer rows.Close()

	out := make(map[int][]bead.Ball)
	for rows.Next() {
		var frame int
		var b bead.Ball
		if err := rows.Scan(&frame, &b.X, &b.Y, &b.RPx, &b.DiameterMM, &b.Class, &b.Conf); err != nil {
			return nil, errors.Wrap(err, "scan ball")
		}
		out[frame] = append(out[frame], b)
	}
	return out, errors.Wrap(rows.Err(), "read balls")
}
