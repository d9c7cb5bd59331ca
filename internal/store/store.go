package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	xerrors "IBSCare-AI/internal/errors"
)

// 各业务集合名称，文档均以用户 ID 作为分区键。
const (
	CollectionProfiles    = "profiles"
	CollectionLogs        = "logs"
	CollectionAssessments = "assessments"
	CollectionChats       = "chats"
	CollectionReminders   = "reminders"
)

// Document 是存储层返回的原始文档。
type Document struct {
	Collection string
	UserID     string
	ID         string
	SortKey    string
	Body       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode 将文档内容解析到 out。
func (d Document) Decode(out any) error {
	if err := json.Unmarshal(d.Body, out); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析文档 %s/%s 失败", d.Collection, d.ID))
	}
	return nil
}

// Query 描述按排序键的范围查询，From/To 均为闭区间且可为空。
type Query struct {
	From  string
	To    string
	Limit int
	Desc  bool
}

// Documents 抽象了按 (集合, 用户, 文档 ID) 寻址的文档存储。
// 实现需要保证并发安全。
type Documents interface {
	Put(ctx context.Context, collection, userID, id, sortKey string, doc any) error
	Get(ctx context.Context, collection, userID, id string, out any) error
	List(ctx context.Context, collection, userID string, q Query) ([]Document, error)
	Delete(ctx context.Context, collection, userID, id string) error
	DeleteAll(ctx context.Context, collection, userID string) error
	Scan(ctx context.Context, collection string, fn func(Document) error) error
	Close() error
}

// ErrNotFound 用于 errors.Is 判断文档不存在。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "文档不存在")

// NotFound 构造带上下文的 NOT_FOUND 错误。
func NotFound(collection, userID, id string) error {
	return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("文档 %s/%s/%s 不存在", collection, userID, id))
}

// Marshal 将文档编码为 JSON，失败时返回 STORAGE_FAILURE。
func Marshal(doc any) (json.RawMessage, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化文档失败")
	}
	return body, nil
}

// Validate 校验文档寻址参数。
func Validate(collection, userID, id string) error {
	if collection == "" || userID == "" || id == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "collection、user_id 与文档 ID 均不能为空")
	}
	return nil
}
