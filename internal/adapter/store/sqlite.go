// Package store persists agent profiles and conversation transcripts in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"switchboard-ai/internal/domain"
)

// SQLiteStore implements domain.AgentStore and domain.ConversationStore
// using a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL UNIQUE,
			description   TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			model         TEXT NOT NULL DEFAULT '',
			temperature   REAL NOT NULL DEFAULT 0,
			max_tokens    INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT NOT NULL,
			user       TEXT NOT NULL,
			messages   TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user, id)
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- domain.AgentStore ---

// ListAgents returns all agents in creation order. That order is the
// registry's stable tie-break order for scoring.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.AgentProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, description, system_prompt, model, temperature, max_tokens FROM agents ORDER BY id")
	if err != nil {
		return nil, domain.WrapOp("list agents", err)
	}
	defer rows.Close()

	var agents []domain.AgentProfile
	for rows.Next() {
		var a domain.AgentProfile
		if err := rows.Scan(&a.Name, &a.Description, &a.SystemPrompt, &a.Model, &a.Temperature, &a.MaxTokens); err != nil {
			return nil, domain.WrapOp("scan agent", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) AddAgent(ctx context.Context, agent domain.AgentProfile) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO agents (name, description, system_prompt, model, temperature, max_tokens, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		agent.Name, agent.Description, agent.SystemPrompt, agent.Model, agent.Temperature, agent.MaxTokens,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("add agent", domain.ErrDuplicate, agent.Name)
		}
		return domain.WrapOp("add agent", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, name string, agent domain.AgentProfile) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE agents SET name = ?, description = ?, system_prompt = ?, model = ?, temperature = ?, max_tokens = ? WHERE name = ?",
		agent.Name, agent.Description, agent.SystemPrompt, agent.Model, agent.Temperature, agent.MaxTokens, name,
	)
	if err != nil {
		return domain.WrapOp("update agent", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("update agent", domain.ErrNotFound, name)
	}
	return nil
}

func (s *SQLiteStore) RemoveAgent(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE name = ?", name)
	if err != nil {
		return domain.WrapOp("remove agent", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("remove agent", domain.ErrNotFound, name)
	}
	return nil
}

// --- domain.ConversationStore ---

// Save replaces the stored transcript wholesale.
func (s *SQLiteStore) Save(ctx context.Context, conv domain.Conversation) error {
	msgJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return domain.WrapOp("marshal messages", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user, id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		conv.ID, conv.User, string(msgJSON),
		conv.CreatedAt.UTC().Format(time.RFC3339Nano),
		conv.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError("save conversation", domain.ErrPersistence, err.Error())
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, user, conversationID string) (domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user, messages, created_at, updated_at FROM conversations WHERE user = ? AND id = ?",
		user, conversationID,
	)

	var (
		conv                   domain.Conversation
		msgStr                 string
		createdStr, updatedStr string
	)
	if err := row.Scan(&conv.ID, &conv.User, &msgStr, &createdStr, &updatedStr); err != nil {
		if err == sql.ErrNoRows {
			return domain.Conversation{}, domain.NewDomainError("load conversation", domain.ErrNotFound, conversationID)
		}
		return domain.Conversation{}, domain.WrapOp("load conversation", err)
	}
	if err := json.Unmarshal([]byte(msgStr), &conv.Messages); err != nil {
		return domain.Conversation{}, domain.WrapOp("unmarshal messages", err)
	}
	conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, user string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM conversations WHERE user = ? ORDER BY updated_at DESC", user)
	if err != nil {
		return nil, domain.WrapOp("list conversations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.WrapOp("scan conversation id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ domain.AgentStore        = (*SQLiteStore)(nil)
	_ domain.ConversationStore = (*SQLiteStore)(nil)
)
