package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// ErrUnsupportedDriver 表示配置了未知的数据库驱动。
var ErrUnsupportedDriver = errors.New("不支持的数据库驱动")

// Config 描述 SQL 文档存储的连接参数。
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// dialect 封装不同数据库在 upsert 语法上的差异。
type dialect struct {
	name   string
	upsert string
}

var (
	mysqlDialect = dialect{
		name: "mysql",
		upsert: `INSERT INTO documents (collection, user_id, doc_id, sort_key, body, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE sort_key = VALUES(sort_key), body = VALUES(body), updated_at = VALUES(updated_at)`,
	}
	sqliteDialect = dialect{
		name: "sqlite",
		upsert: `INSERT INTO documents (collection, user_id, doc_id, sort_key, body, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, user_id, doc_id) DO UPDATE SET sort_key = excluded.sort_key, body = excluded.body, updated_at = excluded.updated_at`,
	}
)

func openDatabase(ctx context.Context, cfg Config) (*sql.DB, dialect, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, dialect{}, fmt.Errorf("%s DSN 不能为空", cfg.Driver)
	}

	var (
		db *sql.DB
		d  dialect
	)
	switch cfg.Driver {
	case "mysql":
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, dialect{}, fmt.Errorf("解析 MySQL DSN 失败: %w", err)
		}
		mc.MultiStatements = false
		if mc.Params == nil {
			mc.Params = map[string]string{}
		}
		if _, ok := mc.Params["charset"]; !ok {
			mc.Params["charset"] = "utf8mb4"
		}
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, dialect{}, fmt.Errorf("连接 MySQL 失败: %w", err)
		}
		db = sql.OpenDB(connector)
		d = mysqlDialect
		applyPool(db, cfg)
	case "sqlite":
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, dialect{}, err
		}
		var err error
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, dialect{}, fmt.Errorf("打开 SQLite 失败: %w", err)
		}
		// SQLite 只允许单写者，统一走一条连接。
		db.SetMaxOpenConns(1)
		d = sqliteDialect
	default:
		return nil, dialect{}, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, dialect{}, fmt.Errorf("无法连接到 %s: %w", d.name, err)
	}
	if d.name == "sqlite" {
		for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, dialect{}, fmt.Errorf("设置 SQLite 参数失败: %w", err)
			}
		}
	}
	return db, d, nil
}

func applyPool(db *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func ensureSQLiteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path := dsn
	if idx := strings.IndexRune(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建 SQLite 目录失败: %w", err)
		}
	}
	return nil
}
