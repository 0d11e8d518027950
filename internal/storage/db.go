package storage

import (
	"errors"
	"fmt"
	"time"

	"bemfarelay/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore persists device settings in a SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ReadString returns the value stored under namespace/key.
func (s *SQLiteStore) ReadString(namespace, key string) (string, error) {
	var setting models.Setting
	result := s.db.Where("namespace = ? AND name = ?", namespace, key).First(&setting)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%s/%s: %w", namespace, key, ErrNotFound)
		}
		return "", result.Error
	}
	return setting.Value, nil
}

// WriteString inserts or replaces the value stored under namespace/key.
func (s *SQLiteStore) WriteString(namespace, key, value string) error {
	setting := models.Setting{
		Namespace: namespace,
		Name:      key,
		Value:     value,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": value, "updated_at": time.Now()}),
	}).Create(&setting).Error
}

// WriteBindInfo stores the provisioning result in one transaction.
func (s *SQLiteStore) WriteBindInfo(ssid, password, token, topic string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		txStore := &SQLiteStore{db: tx}
		for key, value := range map[string]string{
			KeySSID:  ssid,
			KeyPass:  password,
			KeyToken: token,
			KeyTopic: topic,
		} {
			if value == "" {
				continue
			}
			if err := txStore.WriteString(Namespace, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Dump returns every key/value in namespace.
func (s *SQLiteStore) Dump(namespace string) (map[string]string, error) {
	var settings []models.Setting
	if err := s.db.Where("namespace = ?", namespace).Order("name").Find(&settings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for _, st := range settings {
		out[st.Name] = st.Value
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
