package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/swanstudios/studiochat-server/internal/store"
)

// Store implements store.Store for SQLite.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL,
	last_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'client',
	photo         TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL DEFAULT 'direct',
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(conversation_id, user_id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	trainer_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_participants (
	session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(session_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content         TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS message_receipts (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(message_id, user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	read_at    DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file; ":memory:" works for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new account with a hashed password.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, firstName, lastName string, role store.Role) (*store.User, error) {
	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, role)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, email, passwordHash, firstName, lastName, string(role))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves an account by ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves an account by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, role, photo, is_active, created_at
		FROM users
		WHERE ` + where
	var user store.User
	var role string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&role,
		&user.Photo,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Role = store.Role(role)

	return &user, nil
}

// ==== ConversationStore implementation ====

// CreateConversation creates a conversation and enrolls its participants.
func (s *Store) CreateConversation(ctx context.Context, convType store.ConversationType, name string, participantIDs []int64) (*store.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (type, name) VALUES (?, ?)`,
		string(convType), name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
			id, uid,
		); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	var conv store.Conversation
	var ct string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, type, name, created_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &ct, &conv.Name, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.Type = store.ConversationType(ct)

	return &conv, nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *Store) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query participant: %w", err)
	}
	return true, nil
}

// ListParticipants lists user IDs enrolled in the conversation.
func (s *Store) ListParticipants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==== SessionStore implementation ====

// CreateSession creates a live session owned by a trainer.
func (s *Store) CreateSession(ctx context.Context, trainerID int64, title string) (*store.Session, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (trainer_id, title) VALUES (?, ?)`,
		trainerID, title,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	var sess store.Session
	err = s.db.QueryRowContext(ctx,
		`SELECT id, trainer_id, title, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TrainerID, &sess.Title, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// AddSessionParticipant enrolls a user in a session.
func (s *Store) AddSessionParticipant(ctx context.Context, sessionID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_participants (session_id, user_id) VALUES (?, ?)`,
		sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert session participant: %w", err)
	}
	return nil
}

// IsSessionParticipant reports whether the user is the session's trainer
// or an enrolled participant.
func (s *Store) IsSessionParticipant(ctx context.Context, sessionID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM sessions WHERE id = ? AND trainer_id = ?
		UNION ALL
		SELECT 1 FROM session_participants WHERE session_id = ? AND user_id = ?
		LIMIT 1`,
		sessionID, userID, sessionID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query session participant: %w", err)
	}
	return true, nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message with a server-assigned id and timestamp.
func (s *Store) InsertMessage(ctx context.Context, conversationID, senderID int64, content string) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES (?, ?, ?)`,
		conversationID, senderID, content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetMessageByID(ctx, id)
}

// GetMessageByID retrieves a single message.
func (s *Store) GetMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	var msg store.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, sender_id, content, created_at FROM messages WHERE id = ?`, id,
	).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return &msg, nil
}

// ListMessages retrieves messages from a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}

	if beforeID != nil {
		// Row-value comparison breaks timestamp ties by id.
		query += ` AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = ?)`
		args = append(args, *beforeID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListUnread returns ids of messages in the conversation created at or
// before the watermark message that have no receipt for the user. The
// user's own messages are excluded; a sender never needs a receipt for
// what they wrote.
func (s *Store) ListUnread(ctx context.Context, conversationID, userID, throughMessageID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id
		FROM messages m
		LEFT JOIN message_receipts r ON r.message_id = m.id AND r.user_id = ?
		WHERE m.conversation_id = ?
		  AND m.sender_id != ?
		  AND (m.created_at, m.id) <= (SELECT created_at, id FROM messages WHERE id = ?)
		  AND r.message_id IS NULL
		ORDER BY m.created_at, m.id`,
		userID, conversationID, userID, throughMessageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==== ReceiptStore implementation ====

// InsertReceiptIfAbsent records a read receipt unless one already exists
// for the (message, user) pair. Reports whether a row was inserted.
func (s *Store) InsertReceiptIfAbsent(ctx context.Context, messageID, userID int64, readAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_receipts (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		messageID, userID, readAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ==== NotificationStore implementation ====

// InsertNotification creates a notification for a user.
func (s *Store) InsertNotification(ctx context.Context, userID int64, notifType, payload string) (*store.Notification, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, payload) VALUES (?, ?, ?)`,
		userID, notifType, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	var n store.Notification
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, payload, read_at, created_at FROM notifications WHERE id = ?`, id,
	).Scan(&n.ID, &n.UserID, &n.Type, &n.Payload, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return &n, nil
}

// ListNotifications lists a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, payload, read_at, created_at
		 FROM notifications
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*store.Notification
	for rows.Next() {
		var n store.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Payload, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}
