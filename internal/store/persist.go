package store

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OxCom/llvm-source-agent/internal/errors"
	"github.com/OxCom/llvm-source-agent/internal/source"
)

// Storage artifact names.
const (
	vectorsFile = "vectors.hnsw"
	chunksFile  = "chunks.db"
)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	pos        INTEGER PRIMARY KEY,
	id         TEXT NOT NULL,
	path       TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	text       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Save persists a snapshot into dir. Each artifact is written to a
// temp file and renamed into place, so a crash mid-save never leaves a
// partially written artifact under its final name.
func Save(snap *Snapshot, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := saveChunks(snap, filepath.Join(dir, chunksFile)); err != nil {
		return err
	}

	return saveGraph(snap, filepath.Join(dir, vectorsFile))
}

// saveGraph exports the HNSW graph to path atomically.
func saveGraph(snap *Snapshot, path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	snap.mu.RLock()
	err = snap.graph.Export(file)
	snap.mu.RUnlock()
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return nil
}

// saveChunks writes the chunk table and metadata to path atomically.
func saveChunks(snap *Snapshot, path string) error {
	tmpPath := path + ".tmp"
	os.Remove(tmpPath)

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open chunk db: %w", err)
	}

	if err := writeChunkDB(db, snap); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close chunk db: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename chunk db: %w", err)
	}

	return nil
}

func writeChunkDB(db *sql.DB, snap *Snapshot) error {
	if _, err := db.Exec(chunksSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare("INSERT INTO chunks (pos, id, path, start_line, end_line, text) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for pos, ch := range snap.chunks {
		if _, err := stmt.Exec(pos, ch.ID, ch.Path, ch.StartLine, ch.EndLine, ch.Text); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", pos, err)
		}
	}

	meta := map[string]string{
		"model":    snap.model,
		"dims":     strconv.Itoa(snap.dims),
		"count":    strconv.Itoa(len(snap.chunks)),
		"built_at": snap.built.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write meta %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Load reads a snapshot from dir. A missing or inconsistent storage
// directory returns an error; the caller decides whether that means
// initial build or fallback to a previous snapshot.
func Load(dir string) (*Snapshot, error) {
	chunksPath := filepath.Join(dir, chunksFile)
	vectorsPath := filepath.Join(dir, vectorsFile)

	if _, err := os.Stat(chunksPath); err != nil {
		return nil, errors.New(errors.ErrCodeStorageMissing,
			fmt.Sprintf("chunk store not found at %s", chunksPath), err)
	}

	db, err := sql.Open("sqlite", chunksPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
	}
	defer db.Close()

	meta, err := readMeta(db)
	if err != nil {
		return nil, err
	}

	chunks, err := readChunks(db)
	if err != nil {
		return nil, err
	}

	if len(chunks) != meta.count {
		return nil, errors.New(errors.ErrCodeIndexCorrupt,
			fmt.Sprintf("chunk store has %d rows, metadata says %d", len(chunks), meta.count), nil)
	}

	file, err := os.Open(vectorsPath)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageMissing,
			fmt.Sprintf("vector index not found at %s", vectorsPath), err)
	}
	defer file.Close()

	graph := newGraph()
	// bufio.Reader because coder/hnsw Import requires io.ByteReader
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, errors.New(errors.ErrCodeIndexCorrupt,
			fmt.Sprintf("failed to import vector graph: %v", err), err)
	}

	if graph.Len() != len(chunks) {
		return nil, errors.New(errors.ErrCodeIndexCorrupt,
			fmt.Sprintf("vector graph has %d nodes, chunk store has %d", graph.Len(), len(chunks)), nil)
	}

	return &Snapshot{
		graph:  graph,
		chunks: chunks,
		dims:   meta.dims,
		model:  meta.model,
		built:  meta.builtAt,
	}, nil
}

type storeMeta struct {
	model   string
	dims    int
	count   int
	builtAt time.Time
}

func readMeta(db *sql.DB) (storeMeta, error) {
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return storeMeta{}, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return storeMeta{}, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return storeMeta{}, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
	}

	var meta storeMeta
	meta.model = values["model"]

	meta.dims, err = strconv.Atoi(values["dims"])
	if err != nil {
		return storeMeta{}, errors.New(errors.ErrCodeIndexCorrupt,
			fmt.Sprintf("invalid dims metadata %q", values["dims"]), err)
	}

	meta.count, err = strconv.Atoi(values["count"])
	if err != nil {
		return storeMeta{}, errors.New(errors.ErrCodeIndexCorrupt,
			fmt.Sprintf("invalid count metadata %q", values["count"]), err)
	}

	meta.builtAt, err = time.Parse(time.RFC3339Nano, values["built_at"])
	if err != nil {
		return storeMeta{}, errors.New(errors.ErrCodeIndexCorrupt,
			fmt.Sprintf("invalid built_at metadata %q", values["built_at"]), err)
	}

	return meta, nil
}

func readChunks(db *sql.DB) ([]source.Chunk, error) {
	rows, err := db.Query("SELECT id, path, start_line, end_line, text FROM chunks ORDER BY pos")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
	}
	defer rows.Close()

	var chunks []source.Chunk
	for rows.Next() {
		var ch source.Chunk
		if err := rows.Scan(&ch.ID, &ch.Path, &ch.StartLine, &ch.EndLine, &ch.Text); err != nil {
			return nil, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
	}

	return chunks, nil
}

// artifactFiles are the files that constitute a persisted index. Other
// files in the storage directory, such as the writer's lock file, are
// not part of the index.
var artifactFiles = []string{chunksFile, vectorsFile}

// Exists reports whether dir holds a persisted index: both artifacts
// are present.
func Exists(dir string) bool {
	for _, name := range artifactFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// StalenessTimestamp returns the newest modification time across the
// index artifacts in dir. A missing or incomplete set of artifacts
// returns the zero time, which callers treat as "no persisted index".
func StalenessTimestamp(dir string) time.Time {
	var latest time.Time
	for _, name := range artifactFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return time.Time{}
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest
}
