// Package storetest holds a behavioural suite shared by every
// store.Documents implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"IBSCare-AI/internal/store"
)

type sample struct {
	Date string `json:"date"`
	Mood int    `json:"mood"`
}

// Run 对 newStore 返回的实现执行完整的行为测试。
func Run(t *testing.T, newStore func(t *testing.T) store.Documents) {
	t.Helper()

	t.Run("put get roundtrip and overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, store.CollectionLogs, "u1", "2024-05-01", "2024-05-01", sample{Date: "2024-05-01", Mood: 4}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Put(ctx, store.CollectionLogs, "u1", "2024-05-01", "2024-05-01", sample{Date: "2024-05-01", Mood: 8}); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		var got sample
		if err := s.Get(ctx, store.CollectionLogs, "u1", "2024-05-01", &got); err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Mood != 8 {
			t.Fatalf("expected overwritten doc, got %+v", got)
		}
		docs, err := s.List(ctx, store.CollectionLogs, "u1", store.Query{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("upsert should keep a single doc, got %d", len(docs))
		}
		if docs[0].CreatedAt.After(docs[0].UpdatedAt) {
			t.Fatalf("created_at must not be after updated_at: %+v", docs[0])
		}
	})

	t.Run("get missing is not found", func(t *testing.T) {
		s := newStore(t)
		var got sample
		err := s.Get(context.Background(), store.CollectionAssessments, "nobody", "latest", &got)
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("list range limit and order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for day := 1; day <= 5; day++ {
			date := fmt.Sprintf("2024-05-%02d", day)
			if err := s.Put(ctx, store.CollectionLogs, "u1", date, date, sample{Date: date, Mood: day}); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		if err := s.Put(ctx, store.CollectionLogs, "u2", "2024-05-03", "2024-05-03", sample{Date: "2024-05-03"}); err != nil {
			t.Fatalf("put other user: %v", err)
		}

		docs, err := s.List(ctx, store.CollectionLogs, "u1", store.Query{From: "2024-05-02", To: "2024-05-04"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if ids := idsOf(docs); ids != "2024-05-02,2024-05-03,2024-05-04" {
			t.Fatalf("unexpected range result: %s", ids)
		}

		docs, err = s.List(ctx, store.CollectionLogs, "u1", store.Query{Desc: true, Limit: 2})
		if err != nil {
			t.Fatalf("list desc: %v", err)
		}
		if ids := idsOf(docs); ids != "2024-05-05,2024-05-04" {
			t.Fatalf("unexpected desc result: %s", ids)
		}
		var first sample
		if err := docs[0].Decode(&first); err != nil || first.Mood != 5 {
			t.Fatalf("decode: %v %+v", err, first)
		}
	})

	t.Run("delete and delete all", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("m%d", i)
			if err := s.Put(ctx, store.CollectionChats, "u1", id, id, sample{}); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		if err := s.Put(ctx, store.CollectionChats, "u2", "m0", "m0", sample{}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Delete(ctx, store.CollectionChats, "u1", "m0"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := s.Delete(ctx, store.CollectionChats, "u1", "missing"); err != nil {
			t.Fatalf("delete missing should be a no-op: %v", err)
		}
		docs, _ := s.List(ctx, store.CollectionChats, "u1", store.Query{})
		if len(docs) != 2 {
			t.Fatalf("expected 2 docs after delete, got %d", len(docs))
		}
		if err := s.DeleteAll(ctx, store.CollectionChats, "u1"); err != nil {
			t.Fatalf("delete all: %v", err)
		}
		docs, _ = s.List(ctx, store.CollectionChats, "u1", store.Query{})
		if len(docs) != 0 {
			t.Fatalf("expected no docs, got %d", len(docs))
		}
		docs, _ = s.List(ctx, store.CollectionChats, "u2", store.Query{})
		if len(docs) != 1 {
			t.Fatalf("other users must be untouched, got %d", len(docs))
		}
	})

	t.Run("scan visits every user", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, uid := range []string{"b", "a", "c"} {
			if err := s.Put(ctx, store.CollectionReminders, uid, "settings", "", sample{}); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		var seen []string
		err := s.Scan(ctx, store.CollectionReminders, func(doc store.Document) error {
			seen = append(seen, doc.UserID)
			return nil
		})
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if fmt.Sprint(seen) != "[a b c]" {
			t.Fatalf("unexpected scan order: %v", seen)
		}

		stop := errors.New("stop")
		calls := 0
		err = s.Scan(ctx, store.CollectionReminders, func(store.Document) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) || calls != 1 {
			t.Fatalf("scan should stop on callback error: %v after %d calls", err, calls)
		}
	})

	t.Run("rejects empty keys", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(context.Background(), store.CollectionLogs, "", "id", "", sample{}); err == nil {
			t.Fatalf("expected error for empty user id")
		}
	})
}

func idsOf(docs []store.Document) string {
	out := ""
	for i, doc := range docs {
		if i > 0 {
			out += ","
		}
		out += doc.ID
	}
	return out
}
