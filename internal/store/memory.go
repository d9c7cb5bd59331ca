package store

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "IBSCare-AI/internal/errors"
)

type docKey struct {
	collection string
	userID     string
	id         string
}

// MemoryStore 是基于内存的文档存储实现，适合本地开发与测试。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[docKey]Document
	now  func() time.Time
}

// NewMemoryStore 创建内存文档存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[docKey]Document), now: time.Now}
}

// Put 写入或覆盖文档，首次写入时间保持不变。
func (s *MemoryStore) Put(ctx context.Context, collection, userID, id, sortKey string, doc any) error {
	if err := Validate(collection, userID, id); err != nil {
		return err
	}
	body, err := Marshal(doc)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	key := docKey{collection, userID, id}

	s.mu.Lock()
	defer s.mu.Unlock()
	created := now
	if existing, ok := s.docs[key]; ok {
		created = existing.CreatedAt
	}
	s.docs[key] = Document{
		Collection: collection,
		UserID:     userID,
		ID:         id,
		SortKey:    sortKey,
		Body:       body,
		CreatedAt:  created,
		UpdatedAt:  now,
	}
	return nil
}

// Get 读取文档并解析到 out。
func (s *MemoryStore) Get(ctx context.Context, collection, userID, id string, out any) error {
	s.mu.RLock()
	doc, ok := s.docs[docKey{collection, userID, id}]
	s.mu.RUnlock()
	if !ok {
		return NotFound(collection, userID, id)
	}
	return doc.Decode(out)
}

// List 按排序键返回某用户在集合中的文档。
func (s *MemoryStore) List(ctx context.Context, collection, userID string, q Query) ([]Document, error) {
	if collection == "" || userID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "collection 与 user_id 不能为空")
	}
	s.mu.RLock()
	var docs []Document
	for key, doc := range s.docs {
		if key.collection != collection || key.userID != userID {
			continue
		}
		if q.From != "" && doc.SortKey < q.From {
			continue
		}
		if q.To != "" && doc.SortKey > q.To {
			continue
		}
		docs = append(docs, clone(doc))
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].SortKey == docs[j].SortKey {
			if q.Desc {
				return docs[i].ID > docs[j].ID
			}
			return docs[i].ID < docs[j].ID
		}
		if q.Desc {
			return docs[i].SortKey > docs[j].SortKey
		}
		return docs[i].SortKey < docs[j].SortKey
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Delete 删除单个文档，文档不存在时不报错。
func (s *MemoryStore) Delete(ctx context.Context, collection, userID, id string) error {
	s.mu.Lock()
	delete(s.docs, docKey{collection, userID, id})
	s.mu.Unlock()
	return nil
}

// DeleteAll 删除某用户在集合中的全部文档。
func (s *MemoryStore) DeleteAll(ctx context.Context, collection, userID string) error {
	s.mu.Lock()
	for key := range s.docs {
		if key.collection == collection && key.userID == userID {
			delete(s.docs, key)
		}
	}
	s.mu.Unlock()
	return nil
}

// Scan 遍历集合中所有用户的文档，回调在锁外执行。
func (s *MemoryStore) Scan(ctx context.Context, collection string, fn func(Document) error) error {
	s.mu.RLock()
	var docs []Document
	for key, doc := range s.docs {
		if key.collection == collection {
			docs = append(docs, clone(doc))
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UserID == docs[j].UserID {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UserID < docs[j].UserID
	})
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

// Close 实现 Documents 接口。
func (s *MemoryStore) Close() error { return nil }

func clone(doc Document) Document {
	doc.Body = append([]byte(nil), doc.Body...)
	return doc
}
