// Package store — SQLite-backed Store implementation.
// Durable persistence for single-node deployments. Uses the pure-Go
// driver so the binary stays cgo-free.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/artloom/artloom/internal/events"
	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// migration is one versioned schema change.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial schema",
		SQL: `
		CREATE TABLE canvases (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			share_token TEXT NOT NULL DEFAULT '',
			viewport_x  REAL NOT NULL DEFAULT 0,
			viewport_y  REAL NOT NULL DEFAULT 0,
			zoom        REAL NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE agents (
			id                 TEXT PRIMARY KEY,
			canvas_id          TEXT NOT NULL REFERENCES canvases(id) ON DELETE CASCADE,
			owner_id           TEXT NOT NULL DEFAULT '',
			owner_name         TEXT NOT NULL DEFAULT '',
			kind               TEXT NOT NULL,
			status             TEXT NOT NULL,
			prompt             TEXT NOT NULL DEFAULT '',
			tier               TEXT NOT NULL DEFAULT '',
			options            TEXT NOT NULL DEFAULT '{}',
			uploaded_image_url TEXT NOT NULL DEFAULT '',
			source_agent_id    TEXT NOT NULL DEFAULT '',
			active_image_url   TEXT NOT NULL DEFAULT '',
			output_url         TEXT NOT NULL DEFAULT '',
			request_id         TEXT NOT NULL DEFAULT '',
			error              TEXT NOT NULL DEFAULT '',
			x                  REAL NOT NULL DEFAULT 0,
			y                  REAL NOT NULL DEFAULT 0,
			width              REAL NOT NULL DEFAULT 0,
			height             REAL NOT NULL DEFAULT 0,
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL
		);
		CREATE INDEX idx_agents_canvas ON agents(canvas_id);
		CREATE INDEX idx_agents_request ON agents(request_id) WHERE request_id != '';
		CREATE TABLE messages (
			id            TEXT PRIMARY KEY,
			canvas_id     TEXT NOT NULL,
			chat_agent_id TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL,
			content       TEXT NOT NULL,
			meta          TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			seq           INTEGER
		);
		CREATE INDEX idx_messages_canvas ON messages(canvas_id, seq);
		`,
	},
}

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	bus *events.Bus
}

// OpenSQLite opens (or creates) a SQLite database at the given path and
// runs migrations. Use ":memory:" for an in-memory database (tests).
func OpenSQLite(path string, bus *events.Bus) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, bus: bus}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) publish(mut models.Mutation) {
	if s.bus != nil {
		s.bus.Publish(mut)
	}
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error {
	log.Info().Msg("Closing SQLite store")
	return s.db.Close()
}

// ── Row helpers ─────────────────────────────────────────────

const agentCols = `id, canvas_id, owner_id, owner_name, kind, status, prompt, tier, options,
	uploaded_image_url, source_agent_id, active_image_url, output_url, request_id, error,
	x, y, width, height, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(r rowScanner) (*models.Agent, error) {
	var a models.Agent
	var options, createdAt, updatedAt string
	err := r.Scan(
		&a.ID, &a.CanvasID, &a.OwnerID, &a.OwnerName, &a.Kind, &a.Status, &a.Prompt, &a.Tier, &options,
		&a.UploadedImageURL, &a.SourceAgentID, &a.ActiveImageURL, &a.OutputURL, &a.RequestID, &a.Error,
		&a.X, &a.Y, &a.Width, &a.Height, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if options != "" && options != "{}" {
		if err := json.Unmarshal([]byte(options), &a.Options); err != nil {
			return nil, fmt.Errorf("decoding agent %s options: %w", a.ID, err)
		}
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &a, nil
}

func agentArgs(a *models.Agent) ([]interface{}, error) {
	options := "{}"
	if len(a.Options) > 0 {
		raw, err := json.Marshal(a.Options)
		if err != nil {
			return nil, fmt.Errorf("encoding agent %s options: %w", a.ID, err)
		}
		options = string(raw)
	}
	return []interface{}{
		a.ID, a.CanvasID, a.OwnerID, a.OwnerName, string(a.Kind), string(a.Status), a.Prompt, string(a.Tier), options,
		a.UploadedImageURL, a.SourceAgentID, a.ActiveImageURL, a.OutputURL, a.RequestID, a.Error,
		a.X, a.Y, a.Width, a.Height,
		a.CreatedAt.UTC().Format(time.RFC3339Nano), a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// ── Agents ──────────────────────────────────────────────────

func (s *SQLiteStore) ListAgents(ctx context.Context, canvasID string) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+agentCols+" FROM agents WHERE canvas_id = ? ORDER BY created_at", canvasID)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+agentCols+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	return a, err
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	args, err := agentArgs(agent)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO agents (`+agentCols+`) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("creating agent %s: %w", agent.ID, err)
	}

	s.publish(models.Mutation{
		Type:     models.MutationAgentCreated,
		CanvasID: agent.CanvasID,
		AgentID:  agent.ID,
		Agent:    agent,
	})
	return nil
}

func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	args, err := agentArgs(agent)
	if err != nil {
		return err
	}
	// Shift id to the WHERE position.
	args = append(args[1:], agent.ID)
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET
		canvas_id = ?, owner_id = ?, owner_name = ?, kind = ?, status = ?, prompt = ?, tier = ?, options = ?,
		uploaded_image_url = ?, source_agent_id = ?, active_image_url = ?, output_url = ?, request_id = ?, error = ?,
		x = ?, y = ?, width = ?, height = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating agent %s: %w", agent.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}

	s.publish(models.Mutation{
		Type:     models.MutationAgentUpdated,
		CanvasID: agent.CanvasID,
		AgentID:  agent.ID,
		Agent:    agent,
	})
	return nil
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	var canvasID string
	err := s.db.QueryRowContext(ctx, "SELECT canvas_id FROM agents WHERE id = ?", id).Scan(&canvasID)
	if err == sql.ErrNoRows {
		return nil // already gone
	}
	if err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}

	s.publish(models.Mutation{
		Type:     models.MutationAgentDeleted,
		CanvasID: canvasID,
		AgentID:  id,
	})
	return nil
}

func (s *SQLiteStore) MarkAgentsDeleting(ctx context.Context, canvasID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("marking agents deleting: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"UPDATE agents SET status = ?, updated_at = ? WHERE id = ? AND canvas_id = ?",
			string(models.StatusDeleting), now, id, canvasID); err != nil {
			tx.Rollback()
			return fmt.Errorf("marking agent %s deleting: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("marking agents deleting: %w", err)
	}

	for _, id := range ids {
		if a, err := s.GetAgent(ctx, id); err == nil {
			s.publish(models.Mutation{
				Type:     models.MutationAgentUpdated,
				CanvasID: canvasID,
				AgentID:  id,
				Agent:    a,
			})
		}
	}
	return nil
}

func (s *SQLiteStore) UpdateAgentForRequest(ctx context.Context, requestID string, mutate func(*models.Agent) error) (*models.Agent, error) {
	if requestID == "" {
		return nil, &ErrNotFound{Entity: "agent", Key: "(empty request id)"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("correlating request %s: %w", requestID, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+agentCols+" FROM agents WHERE request_id = ?", requestID)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "agent", Key: requestID}
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(a); err != nil {
		return nil, err
	}

	args, err := agentArgs(a)
	if err != nil {
		return nil, err
	}
	args = append(args[1:], a.ID)
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET
		canvas_id = ?, owner_id = ?, owner_name = ?, kind = ?, status = ?, prompt = ?, tier = ?, options = ?,
		uploaded_image_url = ?, source_agent_id = ?, active_image_url = ?, output_url = ?, request_id = ?, error = ?,
		x = ?, y = ?, width = ?, height = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("updating agent %s: %w", a.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("correlating request %s: %w", requestID, err)
	}

	s.publish(models.Mutation{
		Type:     models.MutationAgentUpdated,
		CanvasID: a.CanvasID,
		AgentID:  a.ID,
		Agent:    a,
	})
	return a, nil
}

// ── Canvases ────────────────────────────────────────────────

func (s *SQLiteStore) ListCanvases(ctx context.Context, ownerID string) ([]models.Canvas, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, share_token, viewport_x, viewport_y, zoom,
		created_at, updated_at FROM canvases WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing canvases: %w", err)
	}
	defer rows.Close()

	var out []models.Canvas
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAllCanvases(ctx context.Context) ([]models.Canvas, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, share_token, viewport_x, viewport_y, zoom,
		created_at, updated_at FROM canvases ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing canvases: %w", err)
	}
	defer rows.Close()

	var out []models.Canvas
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCanvas(r rowScanner) (*models.Canvas, error) {
	var c models.Canvas
	var createdAt, updatedAt string
	err := r.Scan(&c.ID, &c.OwnerID, &c.Name, &c.ShareToken, &c.ViewportX, &c.ViewportY, &c.Zoom, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}

func (s *SQLiteStore) GetCanvas(ctx context.Context, id string) (*models.Canvas, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, owner_id, name, share_token, viewport_x, viewport_y, zoom,
		created_at, updated_at FROM canvases WHERE id = ?`, id)
	c, err := scanCanvas(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "canvas", Key: id}
	}
	return c, err
}

func (s *SQLiteStore) CreateCanvas(ctx context.Context, canvas *models.Canvas) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO canvases
		(id, owner_id, name, share_token, viewport_x, viewport_y, zoom, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		canvas.ID, canvas.OwnerID, canvas.Name, canvas.ShareToken,
		canvas.ViewportX, canvas.ViewportY, canvas.Zoom,
		canvas.CreatedAt.UTC().Format(time.RFC3339Nano), canvas.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("creating canvas %s: %w", canvas.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateCanvas(ctx context.Context, canvas *models.Canvas) error {
	res, err := s.db.ExecContext(ctx, `UPDATE canvases SET
		owner_id = ?, name = ?, share_token = ?, viewport_x = ?, viewport_y = ?, zoom = ?, updated_at = ?
		WHERE id = ?`,
		canvas.OwnerID, canvas.Name, canvas.ShareToken,
		canvas.ViewportX, canvas.ViewportY, canvas.Zoom,
		time.Now().UTC().Format(time.RFC3339Nano), canvas.ID)
	if err != nil {
		return fmt.Errorf("updating canvas %s: %w", canvas.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Entity: "canvas", Key: canvas.ID}
	}
	return nil
}

func (s *SQLiteStore) DeleteCanvas(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM canvases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting canvas %s: %w", id, err)
	}
	// Agents cascade; messages are scoped by canvas_id without an FK.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE canvas_id = ?", id); err != nil {
		return fmt.Errorf("deleting canvas %s messages: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(models.Mutation{Type: models.MutationCanvasDeleted, CanvasID: id})
	}
	return nil
}

// ── Chat ────────────────────────────────────────────────────

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	meta := ""
	if msg.Meta != nil {
		raw, err := json.Marshal(msg.Meta)
		if err != nil {
			return fmt.Errorf("encoding message meta: %w", err)
		}
		meta = string(raw)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO messages
		(id, canvas_id, chat_agent_id, role, content, meta, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE canvas_id = ?))`,
		msg.ID, msg.CanvasID, msg.ChatAgentID, string(msg.Role), msg.Content, meta,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano), msg.CanvasID)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	s.publish(models.Mutation{
		Type:     models.MutationMessageAppended,
		CanvasID: msg.CanvasID,
		Message:  msg,
	})
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, canvasID string, limit int) ([]models.ChatMessage, error) {
	q := `SELECT id, canvas_id, chat_agent_id, role, content, meta, created_at FROM messages
		WHERE canvas_id = ? ORDER BY seq`
	args := []interface{}{canvasID}
	if limit > 0 {
		// Newest N, returned in append order.
		q = `SELECT id, canvas_id, chat_agent_id, role, content, meta, created_at FROM (
			SELECT * FROM messages WHERE canvas_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var meta, createdAt string
		if err := rows.Scan(&m.ID, &m.CanvasID, &m.ChatAgentID, &m.Role, &m.Content, &meta, &createdAt); err != nil {
			return nil, err
		}
		if meta != "" {
			var cm models.ChatMeta
			if err := json.Unmarshal([]byte(meta), &cm); err == nil {
				m.Meta = &cm
			}
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
