// Package archive records ranked results of finished sessions in Postgres.
package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

type MatchResult struct {
	ID           uint      `gorm:"primaryKey"`
	SessionID    string    `gorm:"uniqueIndex;size:36;not null"`
	FinishedAt   time.Time `gorm:"index;not null"`
	WinnerID     string    `gorm:"size:36;not null"`
	WinnerName   string    `gorm:"not null"`
	WinnerColor  string    `gorm:"size:8;not null"`
	WinnerPoints int       `gorm:"not null"`
	Rankings     []RankingRow
}

type RankingRow struct {
	ID            uint   `gorm:"primaryKey"`
	MatchResultID uint   `gorm:"index;not null"`
	Position      int    `gorm:"not null"`
	PlayerID      string `gorm:"size:36;not null"`
	Name          string `gorm:"not null"`
	Color         string `gorm:"size:8;not null"`
	Balance       int    `gorm:"not null"`
	IsWinner      bool   `gorm:"not null"`
}

type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&MatchResult{}, &RankingRow{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, sessionID string, finishedAt time.Time, res engine.Result) error {
	row := FromResult(sessionID, finishedAt, res)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func FromResult(sessionID string, finishedAt time.Time, res engine.Result) MatchResult {
	m := MatchResult{
		SessionID:    sessionID,
		FinishedAt:   finishedAt.UTC(),
		WinnerID:     res.Winner.PlayerID,
		WinnerName:   res.Winner.Name,
		WinnerColor:  string(res.Winner.Color),
		WinnerPoints: res.Winner.Balance,
		Rankings:     make([]RankingRow, 0, len(res.Rankings)),
	}
	for _, st := range res.Rankings {
		m.Rankings = append(m.Rankings, RankingRow{
			Position: st.Position,
			PlayerID: st.PlayerID,
			Name:     st.Name,
			Color:    string(st.Color),
			Balance:  st.Balance,
			IsWinner: st.IsWinner,
		})
	}
	return m
}
