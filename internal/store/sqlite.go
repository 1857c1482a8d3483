package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository persists abstract records across process lifetimes.
// The server loads all records into the in-memory Store at startup; the
// ingestion job writes through it.
type SQLiteRepository struct {
	db *sqlx.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	schema := `CREATE TABLE IF NOT EXISTS abstracts (
		id        TEXT PRIMARY KEY,
		title     TEXT NOT NULL DEFAULT '',
		text      TEXT NOT NULL,
		session   TEXT NOT NULL DEFAULT '',
		topic     TEXT NOT NULL DEFAULT '',
		eventtype TEXT NOT NULL DEFAULT '',
		embedding BLOB NOT NULL
	)`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create abstracts table: %w", err)
	}
	return nil
}

// SaveAbstracts writes records in one transaction, replacing rows whose id
// already exists.
func (r *SQLiteRepository) SaveAbstracts(ctx context.Context, records []AbstractRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT OR REPLACE INTO abstracts (id, title, text, session, topic, eventtype, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.Title,
			rec.Text,
			rec.Metadata[FacetSession],
			rec.Metadata[FacetTopic],
			rec.Metadata[FacetEventType],
			encodeEmbedding(rec.Embedding),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadAbstracts reads all persisted records, ordered by id.
func (r *SQLiteRepository) LoadAbstracts(ctx context.Context) ([]AbstractRecord, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, title, text, session, topic, eventtype, embedding FROM abstracts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query abstracts: %w", err)
	}
	defer rows.Close()

	var records []AbstractRecord
	for rows.Next() {
		var (
			rec                       AbstractRecord
			session, topic, eventtype string
			blob                      []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Text, &session, &topic, &eventtype, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.Embedding = decodeEmbedding(blob)
		rec.Metadata = map[string]string{
			FacetSession:   session,
			FacetTopic:     topic,
			FacetEventType: eventtype,
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return records, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Embeddings are stored as little-endian float32 bytes.

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
