package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"noteboard/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// InsertNote writes a note and lets Postgres stamp created_at, so ordering
// never depends on an application clock.
func (s *PostgresStore) InsertNote(ctx context.Context, input NewNote) (Note, error) {
	note := Note{
		ID:         util.NewSortableID(),
		Text:       input.Text,
		OwnerID:    input.OwnerID,
		OwnerName:  input.OwnerName,
		OwnerColor: input.OwnerColor,
	}
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, text, owner_id, owner_name, owner_color)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, note.ID, note.Text, note.OwnerID, note.OwnerName, note.OwnerColor).Scan(&createdAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	createdAt = createdAt.UTC()
	note.CreatedAt = &createdAt
	return note, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, owner_id, owner_name, owner_color, created_at
		FROM notes
		WHERE id = $1
	`, noteID)
	return scanNote(row)
}

// DeleteNoteOwnedBy re-checks ownership in the same statement that deletes.
func (s *PostgresStore) DeleteNoteOwnedBy(ctx context.Context, noteID, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND owner_id = $2`, noteID, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note rows: %w", err)
	}
	return affected > 0, nil
}

// ListNotes returns every note in id (insertion) order.
func (s *PostgresStore) ListNotes(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, owner_id, owner_name, owner_color, created_at
		FROM notes
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var (
		note      Note
		createdAt sql.NullTime
	)
	if err := row.Scan(&note.ID, &note.Text, &note.OwnerID, &note.OwnerName, &note.OwnerColor, &createdAt); err != nil {
		return Note{}, err
	}
	if createdAt.Valid {
		ts := createdAt.Time.UTC()
		note.CreatedAt = &ts
	}
	return note, nil
}
