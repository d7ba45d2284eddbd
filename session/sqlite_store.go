package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sessionRecord is the gorm model backing SQL persistence. The message
// history is stored as a JSON blob; sessions are queried by ID only.
type sessionRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Messages  []byte `gorm:"type:blob"`
	Metadata  []byte `gorm:"type:blob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRecord) TableName() string { return "sessions" }

// SQLiteStore persists sessions in a SQLite database via gorm.
type SQLiteStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sessions table: %w", err)
	}

	logger.Info("sqlite session store opened", zap.String("path", path))
	return &SQLiteStore{
		db:     db,
		logger: logger.With(zap.String("component", "session_sqlite")),
	}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	messages, err := json.Marshal(state.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	metadata, err := json.Marshal(state.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	record := sessionRecord{
		ID:        state.ID,
		Messages:  messages,
		Metadata:  metadata,
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"messages", "metadata", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*State, error) {
	var record sessionRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	state := &State{
		ID:        record.ID,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if err := json.Unmarshal(record.Messages, &state.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", id, err)
	}
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &state.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}
	return state, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&sessionRecord{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&sessionRecord{}).Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
