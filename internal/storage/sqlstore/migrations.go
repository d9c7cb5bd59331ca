package sqlstore

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"IBSCare-AI/deploy/migrations"
)

var embeddedMigrations fs.FS = migrations.Files

type migrationFile struct {
	version    string
	name       string
	statements []string
}

// Migrate 执行尚未应用的迁移脚本，重复调用是安全的。
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}

	applied, err := s.loadAppliedVersions(ctx)
	if err != nil {
		return err
	}

	files, err := loadMigrationFiles(s.dialect.name)
	if err != nil {
		return err
	}

	for _, migration := range files {
		if _, ok := applied[migration.version]; ok {
			continue
		}
		if err := s.applyMigration(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadAppliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return applied, nil
}

func (s *Store) applyMigration(ctx context.Context, migration migrationFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}

	for _, stmt := range migration.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("执行迁移 %s 失败: %w", migration.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, migration.version, time.Now().Unix()); err != nil {
		tx.Rollback()
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}

func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(embeddedMigrations, dir)
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录 %s 失败: %w", dir, err)
	}

	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		content, err := fs.ReadFile(embeddedMigrations, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		files = append(files, migrationFile{
			version:    parseMigrationVersion(name),
			name:       name,
			statements: statements,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].version == files[j].version {
			return files[i].name < files[j].name
		}
		return files[i].version < files[j].version
	})
	return files, nil
}

func splitSQLStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func parseMigrationVersion(name string) string {
	if idx := strings.IndexRune(name, '_'); idx > 0 {
		return name[:idx]
	}
	if dot := strings.IndexRune(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}
