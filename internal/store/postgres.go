package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// PostgresStore is the durable Store backend. It implements the same
// contract as MemoryStore so the two are interchangeable at wiring time.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	page_count  INTEGER NOT NULL DEFAULT 0,
	full_text   TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL,
	document_id TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	snippets    JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_document ON messages (document_id, created_at, seq);
`

// NewPostgresStore connects to PostgreSQL and bootstraps the schema.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *Document) error {
	doc.ID = uuid.NewString()
	doc.UploadedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, page_count, full_text, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Filename, doc.PageCount, doc.FullText, doc.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, page_count, full_text, uploaded_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.PageCount, &doc.FullText, &doc.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return &doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, page_count, full_text, uploaded_at FROM documents ORDER BY uploaded_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.PageCount, &doc.FullText, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC()

	var snippets any
	if len(msg.Snippets) > 0 {
		data, err := json.Marshal(msg.Snippets)
		if err != nil {
			return fmt.Errorf("marshal snippets: %w", err)
		}
		snippets = data
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, document_id, role, content, snippets, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.DocumentID, string(msg.Role), msg.Content, snippets, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessagesByDocument(ctx context.Context, documentID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, role, content, snippets, created_at
		 FROM messages WHERE document_id = $1 ORDER BY created_at, seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			msg      Message
			role     string
			snippets []byte
		)
		if err := rows.Scan(&msg.ID, &msg.DocumentID, &role, &msg.Content, &snippets, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = Role(role)
		if len(snippets) > 0 {
			if err := json.Unmarshal(snippets, &msg.Snippets); err != nil {
				return nil, fmt.Errorf("unmarshal snippets of message %s: %w", msg.ID, err)
			}
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) DeleteMessagesByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
