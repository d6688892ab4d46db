package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/model"
	"github.com/rcliao/memory-router/internal/rank"
)

// SQLiteStore implements Store using SQLite. Vectors are stored as little-
// endian float32 blobs and scored in Go: modernc's SQLite build has no
// vector functions, and layer candidate sets are small enough for a linear
// scan.
type SQLiteStore struct {
	db   *sql.DB
	path string
	// entropy is shared by concurrent Upserts; the locked reader keeps
	// ULID generation goroutine-safe.
	entropy *ulid.LockedMonotonicReader
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// Schema creation is lazy, on first open.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Layers write concurrently through this one store. A single connection
	// queues their transactions instead of surfacing SQLITE_BUSY; the
	// busy_timeout covers other processes holding the file.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:   db,
		path: dbPath,
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		},
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		layer       TEXT NOT NULL,
		kind        TEXT NOT NULL,
		skey        TEXT NOT NULL,
		text        TEXT NOT NULL,
		vector      BLOB,
		meta        TEXT,
		occurred_at TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_layer ON records(layer);
	CREATE INDEX IF NOT EXISTS idx_records_layer_key ON records(layer, skey);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);

	CREATE TABLE IF NOT EXISTS record_index (
		layer      TEXT NOT NULL,
		skey       TEXT NOT NULL,
		record_id  TEXT NOT NULL REFERENCES records(id),
		updated_at TEXT NOT NULL,
		PRIMARY KEY (layer, skey)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.Record, appendOnDuplicate bool) (model.Record, bool, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rec, false, err
	}
	defer tx.Rollback()

	var existingID, existingCreated string
	err = tx.QueryRowContext(ctx,
		`SELECT r.id, r.created_at FROM record_index i
		 JOIN records r ON r.id = i.record_id
		 WHERE i.layer = ? AND i.skey = ?`,
		rec.Layer, rec.Key).Scan(&existingID, &existingCreated)
	known := err == nil

	if known && !appendOnDuplicate {
		// Refresh in place: one row per semantic key.
		_, err = tx.ExecContext(ctx,
			`UPDATE records SET text = ?, vector = ?, updated_at = ? WHERE id = ?`,
			rec.Text, encodeVector(rec.Vector), now.Format(time.RFC3339), existingID)
		if err != nil {
			return rec, false, fmt.Errorf("refresh record: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE record_index SET updated_at = ? WHERE layer = ? AND skey = ?`,
			now.Format(time.RFC3339), rec.Layer, rec.Key)
		if err != nil {
			return rec, false, fmt.Errorf("refresh index: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return rec, false, err
		}
		rec.ID = existingID
		rec.CreatedAt, _ = time.Parse(time.RFC3339, existingCreated)
		rec.UpdatedAt = now
		return rec, false, nil
	}

	// Insert a fresh row; for append layers this also preserves history.
	rec.ID = s.newID()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	var metaJSON *string
	if len(rec.Meta) > 0 {
		b, _ := json.Marshal(rec.Meta)
		v := string(b)
		metaJSON = &v
	}
	var occurred *string
	if rec.OccurredAt != nil {
		v := rec.OccurredAt.UTC().Format(time.RFC3339)
		occurred = &v
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, layer, kind, skey, text, vector, meta, occurred_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Layer, rec.Kind, rec.Key, rec.Text, encodeVector(rec.Vector),
		metaJSON, occurred, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return rec, false, fmt.Errorf("insert record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO record_index (layer, skey, record_id, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(layer, skey) DO UPDATE SET record_id = excluded.record_id, updated_at = excluded.updated_at`,
		rec.Layer, rec.Key, rec.ID, now.Format(time.RFC3339))
	if err != nil {
		return rec, false, fmt.Errorf("update index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) Search(ctx context.Context, layer string, vec embedding.Vector, limit int) ([]model.Scored, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, layer, kind, skey, text, vector, meta, occurred_at, created_at, updated_at
		 FROM records WHERE layer = ? AND vector IS NOT NULL`, layer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []model.Scored
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		sim := embedding.CosineSimilarity(vec, rec.Vector)
		distance := 1 - sim
		scored = append(scored, model.Scored{
			Record: rec,
			Score:  rank.ScoreFromDistance(distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *SQLiteStore) FindKey(ctx context.Context, layer, key string) (*model.Record, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_id FROM record_index WHERE layer = ? AND skey = ?`,
		layer, key).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, layer, kind, skey, text, vector, meta, occurred_at, created_at, updated_at
		 FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		Path:    s.path,
		ByLayer: map[string]int{},
		ByKind:  map[string]int{},
	}
	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.TotalRecords)

	rows, err := s.db.QueryContext(ctx, `SELECT layer, kind, COUNT(*) FROM records GROUP BY layer, kind`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var layer, kind string
		var n int
		rows.Scan(&layer, &kind, &n)
		st.ByLayer[layer] += n
		st.ByKind[kind] += n
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.Record, error) {
	var rec model.Record
	var vec []byte
	var metaJSON, occurred sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.Layer, &rec.Kind, &rec.Key, &rec.Text,
		&vec, &metaJSON, &occurred, &createdAt, &updatedAt)
	if err != nil {
		return rec, err
	}

	rec.Vector = decodeVector(vec)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if metaJSON.Valid {
		json.Unmarshal([]byte(metaJSON.String), &rec.Meta)
	}
	if occurred.Valid {
		t, err := time.Parse(time.RFC3339, occurred.String)
		if err == nil {
			rec.OccurredAt = &t
		}
	}
	return rec, nil
}

// encodeVector serializes a vector as little-endian float32 bytes.
func encodeVector(vec embedding.Vector) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) embedding.Vector {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	vec := make(embedding.Vector, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}
