package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/javalab/jl-assistant/internal"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresConfig controls GORM/PostgreSQL connectivity
type PostgresConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormlogger.LogLevel
}

type conversationRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Status    string    `gorm:"size:16;not null;default:active"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (conversationRecord) TableName() string {
	return "chat_conversations"
}

type messageRecord struct {
	Seq            uint64    `gorm:"primaryKey;autoIncrement"`
	ID             string    `gorm:"uniqueIndex;size:64;not null"`
	ConversationID string    `gorm:"index:idx_chat_messages_conversation;size:64;not null"`
	Role           string    `gorm:"size:16;not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`

	Conversation conversationRecord `gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
}

func (messageRecord) TableName() string {
	return "chat_messages"
}

func (r conversationRecord) toDomain() internal.Conversation {
	return internal.Conversation{
		ID:        r.ID,
		Status:    internal.ConversationStatus(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r messageRecord) toDomain() internal.PersistedMessage {
	return internal.PersistedMessage{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           internal.Role(r.Role),
		Content:        r.Content,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// PostgresStore keeps conversations in PostgreSQL through GORM
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgres connects, creates the database when missing, and migrates the
// chat tables. Creating the database is best effort: roles without access to
// the maintenance database can still open one that exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}

	if err := ensureDatabaseExists(ctx, cfg.DSN); err != nil {
		internal.LogDebug("Skipping database creation for %s: %v", redactDSN(cfg.DSN), err)
	}

	if cfg.LogLevel == 0 {
		cfg.LogLevel = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieve sql db: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.WithContext(ctx).AutoMigrate(&conversationRecord{}, &messageRecord{}); err != nil {
		sqlDB.Close()
		return nil, &internal.StorageError{Path: redactDSN(cfg.DSN), Op: "migrate", Err: err}
	}

	internal.LogDebug("Connected to postgres store at %s", redactDSN(cfg.DSN))
	return &PostgresStore{db: db, now: time.Now}, nil
}

// Name identifies the store in transcripts
func (s *PostgresStore) Name() string {
	return DriverPostgres
}

// CreateConversation inserts a new active conversation
func (s *PostgresStore) CreateConversation(ctx context.Context) (internal.Conversation, error) {
	rec := conversationRecord{
		ID:        uuid.New().String(),
		Status:    string(internal.StatusActive),
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return internal.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return rec.toDomain(), nil
}

// AppendMessage inserts a message into an existing conversation
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, role internal.Role, content string) (internal.PersistedMessage, error) {
	if !role.Valid() {
		return internal.PersistedMessage{}, fmt.Errorf("invalid role %q", role)
	}
	rec := messageRecord{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           string(role),
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit("Conversation").Create(&rec).Error; err != nil {
		return internal.PersistedMessage{}, fmt.Errorf("insert message: %w", err)
	}
	return rec.toDomain(), nil
}

// GetConversation loads a single conversation
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (internal.Conversation, error) {
	var rec conversationRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return internal.Conversation{}, fmt.Errorf("conversation %s: %w", id, internal.ErrNotFound)
	}
	if err != nil {
		return internal.Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	return rec.toDomain(), nil
}

type summaryRow struct {
	ID           string
	Status       string
	CreatedAt    time.Time
	MessageCount int
}

// ListConversations returns conversations newest first with their message counts
func (s *PostgresStore) ListConversations(ctx context.Context) ([]internal.ConversationSummary, error) {
	var rows []summaryRow
	err := s.db.WithContext(ctx).
		Table("chat_conversations AS c").
		Select("c.id, c.status, c.created_at, COUNT(m.seq) AS message_count").
		Joins("LEFT JOIN chat_messages m ON m.conversation_id = c.id").
		Group("c.id, c.status, c.created_at").
		Order("c.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	summaries := make([]internal.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, internal.ConversationSummary{
			Conversation: conversationRecord{ID: r.ID, Status: r.Status, CreatedAt: r.CreatedAt}.toDomain(),
			MessageCount: r.MessageCount,
		})
	}
	return summaries, nil
}

// ListMessages returns a conversation's messages in creation order
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]internal.PersistedMessage, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	messages := make([]internal.PersistedMessage, 0, len(recs))
	for _, r := range recs {
		messages = append(messages, r.toDomain())
	}
	return messages, nil
}

// DeleteConversation removes a conversation and its messages
func (s *PostgresStore) DeleteConversation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&messageRecord{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&conversationRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("conversation %s: %w", id, internal.ErrNotFound)
		}
		return nil
	})
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDatabaseExists(ctx context.Context, dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return nil // key=value DSNs are left to the server
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" || dbName == "postgres" {
		return nil
	}

	adminURL := *u
	adminURL.Path = "/postgres"

	sqlDB, err := sql.Open("postgres", adminURL.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var exists bool
	err = sqlDB.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if exists {
		return nil
	}

	_, err = sqlDB.ExecContext(ctx, "CREATE DATABASE "+quoteIdentifier(dbName))
	return err
}

func quoteIdentifier(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// redactDSN hides the password of a URL-style DSN for logging
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "postgres"
	}
	return u.Redacted()
}

var _ Store = (*PostgresStore)(nil)
