package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// sqliteStore 是 Store 接口的 SQLite 实现
type sqliteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS processed_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

// NewSQLiteStore 初始化 SQLite 数据库并返回 Store 接口实例
func NewSQLiteStore(dataSourceName string, logger *zap.Logger) (Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// 尝试创建表，如果不存在
	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close() // 创建表失败也要关闭连接
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	logger.Info("SQLite database initialized", zap.String("path", dataSourceName))
	return &sqliteStore{db: db, logger: logger}, nil
}

// Close 关闭数据库连接
func (s *sqliteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Get 读取键值
func (s *sqliteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set 写入键值
func (s *sqliteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// AddProcessedFile 将文件标记为已处理
func (s *sqliteStore) AddProcessedFile(path string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO processed_files (path, processed_at) VALUES (?, ?)", path, time.Now())
	if err != nil {
		s.logger.Error("Failed to mark file as processed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to add processed file %s: %w", path, err)
	}
	s.logger.Debug("File marked as processed", zap.String("path", path))
	return nil
}

// IsFileProcessed 检查文件是否已处理
func (s *sqliteStore) IsFileProcessed(path string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM processed_files WHERE path = ?", path).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check processed status for %s: %w", path, err)
	}
	return count > 0, nil
}
