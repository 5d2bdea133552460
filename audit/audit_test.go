package audit

import (
	"context"
	"testing"
	"time"

	"github.com/richinex/redline/model"
)

func event(typ model.EventType, intentID string) model.AuditEvent {
	return model.AuditEvent{
		Type:     typ,
		IntentID: intentID,
		Status:   model.StatusOK,
	}
}

func TestLoggerChainsEvents(t *testing.T) {
	sink := NewMemorySink()
	l, err := NewLogger(sink, nil, LoggerOptions{FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Record(event(model.EventIntentReceived, "i1"))
	l.Record(event(model.EventIntentValidated, "i1"))
	l.Record(event(model.EventPatchReturned, "i1"))

	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	events, err := sink.Query(context.Background(), Filter{IntentID: "i1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].PrevHash != "" {
		t.Errorf("first event PrevHash = %q, want empty", events[0].PrevHash)
	}
	if idx := VerifyChain(events, ""); idx != -1 {
		t.Errorf("chain broken at index %d", idx)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestChainDetectsTampering(t *testing.T) {
	sink := NewMemorySink()
	l, err := NewLogger(sink, nil, LoggerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	l.Record(event(model.EventIntentReceived, "i1"))
	l.Record(event(model.EventIntentValidated, "i1"))
	if err := l.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	events, _ := sink.Query(context.Background(), Filter{})
	events[1].IntentID = "someone-else"
	if idx := VerifyChain(events, ""); idx != 1 {
		t.Errorf("tampered event not detected, idx = %d", idx)
	}
	l.Close()
}

func TestCloseDrainsQueue(t *testing.T) {
	sink := NewMemorySink()
	// Long interval: only Close can flush these.
	l, err := NewLogger(sink, nil, LoggerOptions{FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		l.Record(event(model.EventIntentReceived, "i1"))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, _ := sink.Query(context.Background(), Filter{})
	if len(events) != 10 {
		t.Errorf("got %d events after Close, want 10", len(events))
	}
}

func TestOverflowKeepsEvents(t *testing.T) {
	sink := NewMemorySink()
	l, err := NewLogger(sink, nil, LoggerOptions{
		QueueSize:     1,
		BatchSize:     64,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	// More events than the queue holds: the surplus must divert, not drop.
	for i := 0; i < 20; i++ {
		l.Record(event(model.EventIntentReceived, "i1"))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, _ := sink.Query(context.Background(), Filter{})
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	sink := NewMemorySink()
	l, err := NewLogger(sink, nil, LoggerOptions{
		BatchSize:     4,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for i := 0; i < 8; i++ {
		l.Record(event(model.EventContentGenerated, "i2"))
	}

	// The flusher works asynchronously; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, _ := sink.Query(context.Background(), Filter{})
		if len(events) >= 4 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("batch never flushed despite reaching batch size")
}

func TestChainContinuesAcrossLoggers(t *testing.T) {
	sink := NewMemorySink()

	l1, err := NewLogger(sink, nil, LoggerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	first := l1.Record(event(model.EventIntentReceived, "i1"))
	l1.Flush(context.Background())
	// Close would also close the sink; flush is enough here.

	l2, err := NewLogger(sink, nil, LoggerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second := l2.Record(event(model.EventIntentValidated, "i1"))
	l2.Flush(context.Background())

	if second.PrevHash != first.Hash {
		t.Errorf("restart broke the chain: prev %q, want %q", second.PrevHash, first.Hash)
	}
}

func TestSortByTime(t *testing.T) {
	base := time.Now().UTC()
	events := []model.AuditEvent{
		{EventID: "e3", Timestamp: base.Add(2 * time.Second)},
		{EventID: "e1", Timestamp: base},
		{EventID: "e2a", Timestamp: base.Add(time.Second)},
		{EventID: "e2b", Timestamp: base.Add(time.Second)},
	}
	SortByTime(events)

	want := []string{"e1", "e2a", "e2b", "e3"}
	for i, id := range want {
		if events[i].EventID != id {
			t.Errorf("position %d = %s, want %s", i, events[i].EventID, id)
		}
	}
}

func TestSqliteSinkRoundTrip(t *testing.T) {
	sink, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("NewSqliteInMemory failed: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	events := []model.AuditEvent{
		{
			EventID:   "e1",
			Type:      model.EventIntentReceived,
			IntentID:  "i1",
			Timestamp: time.Now().UTC(),
			Status:    model.StatusOK,
			Metadata:  map[string]string{"actor": "writer-7"},
			Hash:      "h1",
		},
		{
			EventID:   "e2",
			Type:      model.EventPatchReturned,
			IntentID:  "i1",
			PatchID:   "p1",
			Timestamp: time.Now().UTC(),
			Status:    model.StatusOK,
			PrevHash:  "h1",
			Hash:      "h2",
		},
	}
	if err := sink.WriteBatch(ctx, events); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	got, err := sink.Query(ctx, Filter{IntentID: "i1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Metadata["actor"] != "writer-7" {
		t.Errorf("metadata lost: %+v", got[0].Metadata)
	}
	if got[1].PatchID != "p1" || got[1].PrevHash != "h1" {
		t.Errorf("fields lost: %+v", got[1])
	}

	last, err := sink.LastHash(ctx)
	if err != nil {
		t.Fatalf("LastHash failed: %v", err)
	}
	if last != "h2" {
		t.Errorf("LastHash = %q, want h2", last)
	}

	stats, err := sink.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[model.EventIntentReceived] != 1 || stats[model.EventPatchReturned] != 1 {
		t.Errorf("stats wrong: %+v", stats)
	}
}

func TestSqliteSinkQueryFilters(t *testing.T) {
	sink, err := NewSqliteInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	ctx := context.Background()
	base := time.Now().UTC()
	batch := []model.AuditEvent{
		{EventID: "e1", Type: model.EventIntentReceived, IntentID: "a", Timestamp: base, Status: model.StatusOK, Hash: "h1"},
		{EventID: "e2", Type: model.EventIntentReceived, IntentID: "b", Timestamp: base.Add(time.Second), Status: model.StatusOK, Hash: "h2"},
		{EventID: "e3", Type: model.EventPatchBuilt, IntentID: "b", Timestamp: base.Add(2 * time.Second), Status: model.StatusOK, Hash: "h3"},
	}
	if err := sink.WriteBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	byIntent, _ := sink.Query(ctx, Filter{IntentID: "b"})
	if len(byIntent) != 2 {
		t.Errorf("intent filter: got %d, want 2", len(byIntent))
	}
	byType, _ := sink.Query(ctx, Filter{Type: model.EventPatchBuilt})
	if len(byType) != 1 {
		t.Errorf("type filter: got %d, want 1", len(byType))
	}
	since, _ := sink.Query(ctx, Filter{Since: base.Add(time.Second)})
	if len(since) != 2 {
		t.Errorf("since filter: got %d, want 2", len(since))
	}
	limited, _ := sink.Query(ctx, Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit: got %d, want 1", len(limited))
	}
}

func TestSqlitePatchStore(t *testing.T) {
	sink, err := NewSqliteInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	ctx := context.Background()
	p := &model.BlockPatch{
		PatchID:   "p1",
		IntentID:  "i1",
		DocID:     "d1",
		VersionID: "v1",
		CreatedAt: time.Now().UTC(),
		Operations: []model.Operation{{
			Op: model.OpUpdate,
			Target: model.TargetSelector{
				Kind:  model.SelectorBlock,
				Block: &model.BlockSelector{ID: "abcdefabcdef"},
			},
			Content: "new",
		}},
	}
	if err := sink.SavePatch(ctx, p); err != nil {
		t.Fatalf("SavePatch failed: %v", err)
	}

	got, err := sink.LoadPatch(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadPatch failed: %v", err)
	}
	if got == nil || got.PatchID != "p1" || len(got.Operations) != 1 {
		t.Fatalf("LoadPatch = %+v", got)
	}
	if got.Operations[0].Target.Block.ID != "abcdefabcdef" {
		t.Errorf("operation target lost: %+v", got.Operations[0])
	}

	missing, err := sink.LoadPatch(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing patch: got %+v, %v", missing, err)
	}
}
