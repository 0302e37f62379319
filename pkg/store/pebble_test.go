package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Pebble {
	t.Helper()
	p, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func appendDoc(t *testing.T, p *Pebble, collection string, doc map[string]any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	id, err := p.Append(context.Background(), collection, data)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return id
}

func TestAppendGetDelete(t *testing.T) {
	p := openTestStore(t)
	ctx := context.Background()

	id := appendDoc(t, p, "ai_requests", map[string]any{"prompt": "hi", "status": "pending"})
	doc, err := p.Get(ctx, "ai_requests", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["prompt"] != "hi" {
		t.Fatalf("unexpected document %v", fields)
	}

	if err := p.Delete(ctx, "ai_requests", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := p.Get(ctx, "ai_requests", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := p.Delete(ctx, "ai_requests", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestAppendRejectsNonObject(t *testing.T) {
	p := openTestStore(t)
	if _, err := p.Append(context.Background(), "ai_requests", []byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object document")
	}
}

func TestQueryFiltersOrderLimit(t *testing.T) {
	p := openTestStore(t)
	ctx := context.Background()

	for i, ts := range []string{
		"2026-03-14T09:00:00.000000Z",
		"2026-03-14T09:05:00.000000Z",
		"2026-03-14T09:10:00.000000Z",
	} {
		status := "pending"
		if i == 1 {
			status = "completed"
		}
		appendDoc(t, p, "ai_requests", map[string]any{
			"status": status, "timestamp": ts, "retry_count": i,
		})
	}

	docs, err := p.Query(ctx, "ai_requests", Query{
		Filters:    []Filter{{Field: "status", Op: OpEq, Value: "pending"}},
		OrderBy:    "timestamp",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 pending docs, got %d", len(docs))
	}
	var first map[string]any
	if err := json.Unmarshal(docs[0].Data, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["timestamp"] != "2026-03-14T09:10:00.000000Z" {
		t.Fatalf("descending order broken, first is %v", first["timestamp"])
	}

	docs, err = p.Query(ctx, "ai_requests", Query{
		Filters: []Filter{{Field: "timestamp", Op: OpLt, Value: "2026-03-14T09:07:00.000000Z"}},
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected limit 1, got %d", len(docs))
	}

	docs, err = p.Query(ctx, "ai_requests", Query{
		Filters: []Filter{{Field: "retry_count", Op: OpGte, Value: 2}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc with retry_count >= 2, got %d", len(docs))
	}
}

func TestQueryMissingFieldNeverMatches(t *testing.T) {
	p := openTestStore(t)
	appendDoc(t, p, "anomalies", map[string]any{"severity": "high"})

	docs, err := p.Query(context.Background(), "anomalies", Query{
		Filters: []Filter{{Field: "is_resolved", Op: OpEq, Value: false}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no matches on missing field, got %d", len(docs))
	}
}

func TestUpdateMergesAndDeletesFields(t *testing.T) {
	p := openTestStore(t)
	ctx := context.Background()

	id := appendDoc(t, p, "ai_requests", map[string]any{
		"status": "pending", "response_id": "stale",
	})
	err := p.Update(ctx, "ai_requests", id, map[string]any{
		"status":      "completed",
		"response_id": nil,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := p.Get(ctx, "ai_requests", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["status"] != "completed" {
		t.Fatalf("status not merged: %v", fields)
	}
	if _, ok := fields["response_id"]; ok {
		t.Fatalf("nil field not removed: %v", fields)
	}

	if err := p.Update(ctx, "ai_requests", "missing", map[string]any{"a": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscribeReplaysExistingThenLive(t *testing.T) {
	p := openTestStore(t)

	pre := appendDoc(t, p, "ai_responses", map[string]any{"request_id": "r1", "response": "early"})
	appendDoc(t, p, "ai_responses", map[string]any{"request_id": "other"})

	sub, err := p.Subscribe("ai_responses", Query{
		Filters: []Filter{{Field: "request_id", Op: OpEq, Value: "r1"}},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case doc := <-sub.Events():
		if doc.ID != pre {
			t.Fatalf("expected replay of %s, got %s", pre, doc.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("replay event never arrived")
	}

	live := appendDoc(t, p, "ai_responses", map[string]any{"request_id": "r1", "response": "late"})
	select {
	case doc := <-sub.Events():
		if doc.ID != live {
			t.Fatalf("expected live event %s, got %s", live, doc.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("live event never arrived")
	}

	// non-matching writes are invisible
	appendDoc(t, p, "ai_responses", map[string]any{"request_id": "r2"})
	select {
	case doc := <-sub.Events():
		t.Fatalf("unexpected event %s", doc.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseTearsDownSubscriptions(t *testing.T) {
	p, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sub, err := p.Subscribe("ai_responses", Query{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-sub.Err():
		if err == nil {
			t.Fatal("expected a close error")
		}
	case <-time.After(time.Second):
		t.Fatal("close error never delivered")
	}
	if _, err := p.Append(context.Background(), "ai_requests", []byte(`{}`)); err == nil {
		t.Fatal("expected append on closed store to fail")
	}
	if p.Ready() {
		t.Fatal("closed store reports ready")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	p := openTestStore(t)

	if _, err := p.GetMeta("version"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unset meta, got %v", err)
	}
	if err := p.SetMeta("version", "1.2.0"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	v, err := p.GetMeta("version")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "1.2.0" {
		t.Fatalf("expected 1.2.0, got %q", v)
	}
	if err := p.DeleteMeta("version"); err != nil {
		t.Fatalf("DeleteMeta: %v", err)
	}
	if _, err := p.GetMeta("version"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestQueryDefaultOrderIsCreation(t *testing.T) {
	p := openTestStore(t)
	ctx := context.Background()

	var want []string
	for _, seq := range []string{"a", "b", "c", "d", "e"} {
		id := appendDoc(t, p, "ai_responses", map[string]any{"request_id": "req-1", "message": seq})
		want = append(want, id)
	}
	if !sort.StringsAreSorted(want) {
		t.Fatalf("appended ids do not sort by insertion: %v", want)
	}

	docs, err := p.Query(ctx, "ai_responses", Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != len(want) {
		t.Fatalf("expected %d documents, got %d", len(want), len(docs))
	}
	for i, doc := range docs {
		if doc.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], doc.ID)
		}
	}
}

func TestSubscribeReplaysInCreationOrder(t *testing.T) {
	p := openTestStore(t)

	for _, msg := range []string{"first", "second", "third"} {
		appendDoc(t, p, "ai_responses", map[string]any{"request_id": "req-9", "message": msg})
	}

	sub, err := p.Subscribe("ai_responses", Query{
		Filters: []Filter{{Field: "request_id", Op: OpEq, Value: "req-9"}},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	for _, want := range []string{"first", "second", "third"} {
		select {
		case doc := <-sub.Events():
			var fields map[string]any
			if err := json.Unmarshal(doc.Data, &fields); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if fields["message"] != want {
				t.Fatalf("expected replay of %q, got %v", want, fields["message"])
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for replay of %q", want)
		}
	}
}

func TestPutUpsertsAtKnownID(t *testing.T) {
	p := openTestStore(t)
	ctx := context.Background()

	if err := p.Put(ctx, "agent_state", "current", []byte(`{"status":"idle"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := p.Put(ctx, "agent_state", "current", []byte(`{"status":"acting"}`)); err != nil {
		t.Fatalf("Put replace: %v", err)
	}

	doc, err := p.Get(ctx, "agent_state", "current")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["status"] != "acting" {
		t.Fatalf("expected replacement to win, got %v", fields)
	}

	if err := p.Put(ctx, "agent_state", "current", []byte(`"scalar"`)); err == nil {
		t.Fatal("expected error for non-object document")
	}
}
