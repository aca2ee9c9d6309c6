package session

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parleylabs/parley/types"
)

// sessionRecord is the sessions table.
type sessionRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"index"`
}

func (sessionRecord) TableName() string { return "sessions" }

// messageRecord is the messages table. Seq preserves append order.
type messageRecord struct {
	Seq          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"index;size:64;not null"`
	MessageID    string `gorm:"size:64"`
	AgentName    string `gorm:"size:128"`
	AgentType    string `gorm:"size:64"`
	Turn         int
	Content      string `gorm:"type:text"`
	Terminated   bool
	ProcessingMs int64
	Timestamp    time.Time
}

func (messageRecord) TableName() string { return "messages" }

// GormStore persists transcripts in a relational database through GORM.
// Built for SQLite; any GORM dialector with auto-increment keys works.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLite opens (and creates if missing) a SQLite database at path.
// Use ":memory:" for an ephemeral database in tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

// NewGormStore migrates the schema and wraps db as a Store.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&sessionRecord{}, &messageRecord{}); err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "failed to migrate schema").WithCause(err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_store")),
	}, nil
}

func (s *GormStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	rec := sessionRecord{ID: id, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", types.NewError(types.ErrStoreFailure, "failed to create session").WithCause(err).WithRetryable(true)
	}
	s.logger.Debug("session created", zap.String("session_id", id))
	return id, nil
}

func (s *GormStore) Append(ctx context.Context, sessionID string, msg types.Message) error {
	rec := messageRecord{
		SessionID:    sessionID,
		MessageID:    msg.MessageID,
		AgentName:    msg.AgentName,
		AgentType:    msg.AgentType,
		Turn:         msg.Turn,
		Content:      msg.Content,
		Terminated:   msg.IsTerminated,
		ProcessingMs: msg.ProcessingMs,
		Timestamp:    msg.Timestamp,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.FirstOrCreate(&sessionRecord{}, sessionRecord{ID: sessionID}).Error; err != nil {
			return err
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return types.NewError(types.ErrStoreFailure, "failed to append message").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (s *GormStore) Messages(ctx context.Context, sessionID string) ([]types.Message, error) {
	var sess sessionRecord
	err := s.db.WithContext(ctx).First(&sess, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrSessionNotFound, "session "+sessionID+" does not exist")
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "failed to look up session").WithCause(err).WithRetryable(true)
	}

	var records []messageRecord
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq asc").
		Find(&records).Error; err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "failed to read transcript").WithCause(err).WithRetryable(true)
	}

	msgs := make([]types.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, types.Message{
			MessageID:    rec.MessageID,
			Content:      rec.Content,
			AgentName:    rec.AgentName,
			AgentType:    rec.AgentType,
			Turn:         rec.Turn,
			Timestamp:    rec.Timestamp,
			IsTerminated: rec.Terminated,
			ProcessingMs: rec.ProcessingMs,
		})
	}
	return msgs, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks backend health. Used by the readiness probe.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
