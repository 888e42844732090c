package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/errdefs"
	"github.com/localbook/backend/pkg/logger"
)

// Client is the durable record store for sources, conversations, and
// turns. It is the single source of truth for source lifecycle status;
// SQLite serializes concurrent writes to the same record.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		origin TEXT NOT NULL,
		remote INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		processed_path TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sources_status ON sources(status);
	CREATE INDEX IF NOT EXISTS idx_sources_created ON sources(created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		cited_source_ids TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateSource(src *models.Source) error {
	query := `
		INSERT INTO sources (id, name, origin, remote, kind, status, processed_path, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	remote := 0
	if src.Remote {
		remote = 1
	}

	_, err := c.db.Exec(
		query,
		src.ID,
		src.Name,
		src.Origin,
		remote,
		string(src.Kind),
		string(src.Status),
		src.ProcessedPath,
		src.ErrorMessage,
		src.CreatedAt.Unix(),
		src.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}

	logger.Debug("Source created", zap.String("source_id", src.ID), zap.String("origin", src.Origin))
	return nil
}

func (c *Client) GetSource(id string) (*models.Source, error) {
	query := `SELECT id, name, origin, remote, kind, status, processed_path, error_message, created_at, updated_at
		FROM sources WHERE id = ?`

	src, err := scanSource(c.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "source", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// ListSources returns sources newest first. A limit of zero or less
// means no limit.
func (c *Client) ListSources(offset, limit int) ([]models.Source, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, name, origin, remote, kind, status, processed_path, error_message, created_at, updated_at
		FROM sources ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := c.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func (c *Client) GetSourcesByIDs(ids []string) ([]models.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT id, name, origin, remote, kind, status, processed_path, error_message, created_at, updated_at
		FROM sources WHERE id IN (%s)`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources by ids: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateSourceStatus writes the new status and error message. Reaching
// completed always clears the error message.
func (c *Client) UpdateSourceStatus(id string, status models.SourceStatus, errorMessage string) error {
	if status == models.StatusCompleted {
		errorMessage = ""
	}

	query := `UPDATE sources SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`
	res, err := c.db.Exec(query, string(status), errorMessage, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update source status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errdefs.NotFoundError{Resource: "source", ID: id}
	}

	logger.Info("Source status updated",
		zap.String("source_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

func (c *Client) SetProcessedPath(id, processedPath string) error {
	query := `UPDATE sources SET processed_path = ?, updated_at = ? WHERE id = ?`
	res, err := c.db.Exec(query, processedPath, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set processed path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errdefs.NotFoundError{Resource: "source", ID: id}
	}
	return nil
}

func (c *Client) SetSourceKind(id string, kind models.SourceKind) error {
	query := `UPDATE sources SET kind = ?, updated_at = ? WHERE id = ?`
	if _, err := c.db.Exec(query, string(kind), time.Now().Unix(), id); err != nil {
		return fmt.Errorf("failed to set source kind: %w", err)
	}
	return nil
}

func (c *Client) CreateConversation(conv *models.Conversation) error {
	query := `INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, err := c.db.Exec(query, conv.ID, conv.Title, conv.CreatedAt.Unix(), conv.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (c *Client) GetConversation(id string) (*models.Conversation, error) {
	query := `SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`

	var conv models.Conversation
	var createdAt, updatedAt int64
	err := c.db.QueryRow(query, id).Scan(&conv.ID, &conv.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "conversation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)
	return &conv, nil
}

func (c *Client) AppendTurn(turn *models.Turn) error {
	citedJSON, err := json.Marshal(turn.CitedSourceIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal cited source ids: %w", err)
	}

	query := `INSERT INTO turns (id, conversation_id, role, content, cited_source_ids, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = c.db.Exec(query, turn.ID, turn.ConversationID, string(turn.Role), turn.Content, string(citedJSON), turn.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if _, err := c.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, turn.CreatedAt.Unix(), turn.ConversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// ListTurns returns a conversation's turns in append order. Timestamps
// have second granularity, so a question/answer pair shares created_at;
// rowid reflects insertion order and breaks the tie.
func (c *Client) ListTurns(conversationID string) ([]models.Turn, error) {
	query := `SELECT id, conversation_id, role, content, cited_source_ids, created_at
		FROM turns WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`

	rows, err := c.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role, citedJSON string
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.ConversationID, &role, &t.Content, &citedJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.Role = models.TurnRole(role)
		t.CreatedAt = time.Unix(createdAt, 0)
		if citedJSON != "" {
			json.Unmarshal([]byte(citedJSON), &t.CitedSourceIDs)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.Source, error) {
	var src models.Source
	var remote int
	var kind, status string
	var processedPath, errorMessage sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&src.ID,
		&src.Name,
		&src.Origin,
		&remote,
		&kind,
		&status,
		&processedPath,
		&errorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	src.Remote = remote != 0
	src.Kind = models.SourceKind(kind)
	src.Status = models.SourceStatus(status)
	src.ProcessedPath = processedPath.String
	src.ErrorMessage = errorMessage.String
	src.CreatedAt = time.Unix(createdAt, 0)
	src.UpdatedAt = time.Unix(updatedAt, 0)
	return &src, nil
}
