// Package tally persists daily activity pulse counts in SQLite.
package tally

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DayLayout is the key format of ActivityDay.Day
const DayLayout = "2006-01-02"

// ActivityDay is the pulse total for one local calendar day
type ActivityDay struct {
	Day       string    `gorm:"primaryKey;size:10" json:"day"`
	Count     int64     `gorm:"column:pulses;not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DayKey returns the ActivityDay key for t in t's location
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

type DB struct {
	*gorm.DB
}

// Open opens (creating if needed) the tally database at path and migrates it
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&ActivityDay{}); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Repository reads and writes ActivityDay rows
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Add adds n pulses to day, creating the row if needed
func (r *Repository) Add(day string, n int64) error {
	if n <= 0 {
		return nil
	}

	result := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"pulses":     gorm.Expr("pulses + ?", n),
			"updated_at": time.Now(),
		}),
	}).Create(&ActivityDay{Day: day, Count: n})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to add %d pulses to %s", n, day)
	}
	return nil
}

// Get returns the total for day, zero if nothing was recorded
func (r *Repository) Get(day string) (int64, error) {
	var row ActivityDay
	result := r.db.Where("day = ?", day).Limit(1).Find(&row)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to get activity day")
	}
	return row.Count, nil
}

// Since returns every recorded day on or after day, oldest first
func (r *Repository) Since(day string) ([]ActivityDay, error) {
	var rows []ActivityDay
	result := r.db.Where("day >= ?", day).Order("day ASC").Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query activity days")
	}
	return rows, nil
}

// Total returns the sum over all recorded days
func (r *Repository) Total() (int64, error) {
	var total int64
	result := r.db.Model(&ActivityDay{}).Select("COALESCE(SUM(pulses), 0)").Scan(&total)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to sum activity days")
	}
	return total, nil
}
