package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/store"
)

// Store 使用单张 documents 表实现 store.Documents。
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

var _ store.Documents = (*Store)(nil)

// Open 建立连接并执行迁移。
func Open(ctx context.Context, cfg Config) (*Store, error) {
	s, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Connect 仅建立连接，不执行迁移。
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	db, d, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: d, now: time.Now}, nil
}

// Put 写入或覆盖文档，created_at 只在首次写入时设置。
func (s *Store) Put(ctx context.Context, collection, userID, id, sortKey string, doc any) error {
	if err := store.Validate(collection, userID, id); err != nil {
		return err
	}
	body, err := store.Marshal(doc)
	if err != nil {
		return err
	}
	now := s.now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, collection, userID, id, sortKey, string(body), now, now); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("写入文档 %s/%s 失败", collection, id))
	}
	return nil
}

// Get 读取单个文档。
func (s *Store) Get(ctx context.Context, collection, userID, id string, out any) error {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND user_id = ? AND doc_id = ?`,
		collection, userID, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return store.NotFound(collection, userID, id)
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("读取文档 %s/%s 失败", collection, id))
	}
	return store.Document{Collection: collection, UserID: userID, ID: id, Body: body}.Decode(out)
}

// List 按排序键范围查询某用户的文档。
func (s *Store) List(ctx context.Context, collection, userID string, q store.Query) ([]store.Document, error) {
	if collection == "" || userID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "collection 与 user_id 不能为空")
	}
	query, args := buildListQuery(collection, userID, q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("查询集合 %s 失败", collection))
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		doc := store.Document{Collection: collection, UserID: userID}
		if err := scanDocument(rows, &doc.ID, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历查询结果失败")
	}
	return docs, nil
}

// Delete 删除单个文档。
func (s *Store) Delete(ctx context.Context, collection, userID, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND user_id = ? AND doc_id = ?`,
		collection, userID, id,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("删除文档 %s/%s 失败", collection, id))
	}
	return nil
}

// DeleteAll 删除某用户在集合中的全部文档。
func (s *Store) DeleteAll(ctx context.Context, collection, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND user_id = ?`,
		collection, userID,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("清空集合 %s 失败", collection))
	}
	return nil
}

// Scan 遍历集合内所有用户的文档。结果先完整读出再回调，回调中可以继续访问存储。
func (s *Store) Scan(ctx context.Context, collection string, fn func(store.Document) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, doc_id, sort_key, body, created_at, updated_at FROM documents WHERE collection = ? ORDER BY user_id ASC, doc_id ASC`,
		collection,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("扫描集合 %s 失败", collection))
	}

	var docs []store.Document
	for rows.Next() {
		doc := store.Document{Collection: collection}
		var (
			body             []byte
			created, updated int64
		)
		if err := rows.Scan(&doc.UserID, &doc.ID, &doc.SortKey, &body, &created, &updated); err != nil {
			rows.Close()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析文档失败")
		}
		doc.Body = body
		doc.CreatedAt = time.Unix(0, created).UTC()
		doc.UpdatedAt = time.Unix(0, updated).UTC()
		docs = append(docs, doc)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历扫描结果失败")
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildListQuery(collection, userID string, q store.Query) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT doc_id, sort_key, body, created_at, updated_at FROM documents WHERE collection = ? AND user_id = ?`)
	args := []any{collection, userID}
	if q.From != "" {
		b.WriteString(` AND sort_key >= ?`)
		args = append(args, q.From)
	}
	if q.To != "" {
		b.WriteString(` AND sort_key <= ?`)
		args = append(args, q.To)
	}
	if q.Desc {
		b.WriteString(` ORDER BY sort_key DESC, doc_id DESC`)
	} else {
		b.WriteString(` ORDER BY sort_key ASC, doc_id ASC`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return b.String(), args
}

func scanDocument(rows *sql.Rows, id *string, doc *store.Document) error {
	var (
		body             []byte
		created, updated int64
	)
	if err := rows.Scan(id, &doc.SortKey, &body, &created, &updated); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析文档失败")
	}
	doc.Body = body
	doc.CreatedAt = time.Unix(0, created).UTC()
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return nil
}
