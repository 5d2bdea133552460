package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/redline/audit"
	"github.com/richinex/redline/config"
	"github.com/richinex/redline/llm"
	"github.com/richinex/redline/model"
	"github.com/richinex/redline/patch"
)

const testDoc = `# Guide

Intro paragraph about the system.

## Architecture Overview

The engine processes intents through a fixed pipeline.

## Usage

Run the binary with a document and an intent file.

## Changelog

Initial release.
`

func newTestEngine(t *testing.T, gen llm.ContentGenerator) (*Engine, *audit.MemorySink) {
	t.Helper()
	sink := audit.NewMemorySink()
	e, err := New(config.MustNew("stub"), gen, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.RegisterDocument("doc-1", "v1", testDoc); err != nil {
		t.Fatalf("RegisterDocument failed: %v", err)
	}
	return e, sink
}

func docCtx(version string) model.DocumentContext {
	return model.DocumentContext{
		DocID:       "doc-1",
		VersionID:   version,
		Actor:       "writer-7",
		Editability: model.EditabilityEditing,
	}
}

func headingTarget(text string, level int) model.TargetSelector {
	return model.TargetSelector{
		Kind:    model.SelectorHeading,
		Heading: &model.HeadingSelector{Text: text, Level: level},
	}
}

func verbatimUpdate(id, targetText, content string) *model.EditIntent {
	return &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      id,
		Type:          model.IntentUpdate,
		Target:        headingTarget(targetText, 2),
		Action: model.Action{
			Mode:          model.ModeReplace,
			ContentPolicy: model.PolicyVerbatim,
			Content:       content,
		},
	}
}

func queryEvents(t *testing.T, e *Engine, sink *audit.MemorySink, f audit.Filter) []model.AuditEvent {
	t.Helper()
	if err := e.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	events, err := sink.Query(context.Background(), f)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	return events
}

func TestEditVerbatimUpdate(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	content := "## Architecture Overview\n\nRewritten overview of the edit pipeline."
	resp, err := e.Edit(context.Background(), docCtx("v1"), verbatimUpdate("i1", "Architecture Overview", content))
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	if resp.PatchID == "" || resp.IntentID != "i1" {
		t.Errorf("response identity wrong: %+v", resp)
	}
	if len(resp.Block.Operations) != 1 || resp.Block.Operations[0].Op != model.OpUpdate {
		t.Fatalf("operations = %+v", resp.Block.Operations)
	}
	if resp.Block.VersionID != "v1" {
		t.Errorf("patch version = %q, want v1", resp.Block.VersionID)
	}
	if resp.AuditInfo.ContextDigest == "" || resp.AuditInfo.GeneratedBy != "stub" {
		t.Errorf("audit info = %+v", resp.AuditInfo)
	}
	if resp.Preview != content {
		t.Errorf("preview = %q", resp.Preview)
	}
	if resp.Semantic == nil || resp.Semantic.Summary == "" {
		t.Errorf("semantic patch missing: %+v", resp.Semantic)
	}

	// Block and text forms must agree on the patched document.
	viaBlock, err := patch.Apply(testDoc, &resp.Block)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	viaText, err := patch.ApplyText(testDoc, &resp.Text)
	if err != nil {
		t.Fatalf("ApplyText failed: %v", err)
	}
	if viaBlock != viaText {
		t.Errorf("block and text forms diverge:\n%q\nvs\n%q", viaBlock, viaText)
	}
}

func TestEditGeneratePath(t *testing.T) {
	stub := llm.NewStubGenerator("")
	e, _ := newTestEngine(t, stub)
	defer e.Close()

	it := &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      "i2",
		Type:          model.IntentRefactor,
		Target:        headingTarget("Usage", 2),
		Action:        model.Action{Mode: model.ModeRewrite, ContentPolicy: model.PolicyGenerate},
		Reason:        "clarify the invocation steps",
	}
	resp, err := e.Edit(context.Background(), docCtx("v1"), it)
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if resp.AuditInfo.ModelVersion != "stub-1" {
		t.Errorf("model version = %q, want stub-1", resp.AuditInfo.ModelVersion)
	}
	if resp.Block.Operations[0].Op != model.OpReplace {
		t.Errorf("op = %q, want replace", resp.Block.Operations[0].Op)
	}
	if resp.Block.Operations[0].Content == "" {
		t.Error("generated content is empty")
	}

	calls := stub.Calls()
	if len(calls) != 1 {
		t.Fatalf("generator called %d times, want 1", len(calls))
	}
	for _, want := range []string{"## Usage", "Instruction:", "clarify the invocation steps"} {
		if !strings.Contains(calls[0].Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestEditDeterminism(t *testing.T) {
	it := &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      "i3",
		Type:          model.IntentSummarize,
		Target:        headingTarget("Changelog", 2),
		Action:        model.Action{Mode: model.ModeCondense, ContentPolicy: model.PolicyGenerate},
	}
	clock := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	var blocks, texts [2]string
	var ids [2]string
	for i := 0; i < 2; i++ {
		e, _ := newTestEngine(t, llm.NewStubGenerator(""))
		e.now = func() time.Time { return clock }
		resp, err := e.Edit(context.Background(), docCtx("v1"), it)
		if err != nil {
			t.Fatalf("run %d: Edit failed: %v", i, err)
		}
		bj, err := json.Marshal(resp.Block)
		if err != nil {
			t.Fatalf("run %d: marshal failed: %v", i, err)
		}
		tj, err := json.Marshal(resp.Text)
		if err != nil {
			t.Fatalf("run %d: marshal failed: %v", i, err)
		}
		blocks[i], texts[i], ids[i] = string(bj), string(tj), resp.PatchID
		e.Close()
	}

	// The whole serialized block patch must match, identifiers and
	// timestamps included.
	if blocks[0] != blocks[1] {
		t.Errorf("block patches differ across runs:\n%s\nvs\n%s", blocks[0], blocks[1])
	}
	if texts[0] != texts[1] {
		t.Errorf("text patches differ across runs:\n%s\nvs\n%s", texts[0], texts[1])
	}
	if ids[0] != ids[1] {
		t.Errorf("patch ids differ across runs: %s vs %s", ids[0], ids[1])
	}
}

func TestPipelineStageOnlyMovesForward(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	r := e.newRun(docCtx("v1"), "i3b")
	r.ok(model.EventIntentReceived, nil)
	r.ok(model.EventIntentValidated, nil)

	defer func() {
		if recover() == nil {
			t.Error("recording an earlier stage after a later one must panic")
		}
	}()
	r.ok(model.EventIntentReceived, nil)
}

func TestEditDeleteSection(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	it := &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      "i4",
		Type:          model.IntentDelete,
		Target:        headingTarget("Changelog", 2),
		Action:        model.Action{Mode: model.ModeRemove, ContentPolicy: model.PolicyNone},
	}
	resp, err := e.Edit(context.Background(), docCtx("v1"), it)
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if resp.Block.Operations[0].Op != model.OpDelete {
		t.Fatalf("op = %q", resp.Block.Operations[0].Op)
	}

	patched, err := patch.Apply(testDoc, &resp.Block)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if strings.Contains(patched, "Changelog") || strings.Contains(patched, "Initial release.") {
		t.Errorf("section not removed:\n%s", patched)
	}
}

func TestEditInsertAfter(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	it := &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      "i5",
		Type:          model.IntentInsert,
		Target:        headingTarget("Usage", 2),
		Action: model.Action{
			Mode:          model.ModeAfter,
			ContentPolicy: model.PolicyVerbatim,
			Content:       "See the troubleshooting notes for common failures.",
		},
	}
	resp, err := e.Edit(context.Background(), docCtx("v1"), it)
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	patched, err := patch.ApplyText(testDoc, &resp.Text)
	if err != nil {
		t.Fatalf("ApplyText failed: %v", err)
	}
	if !strings.Contains(patched, "troubleshooting notes") {
		t.Errorf("inserted content missing:\n%s", patched)
	}
}

func TestEditRejectsUneditableDocument(t *testing.T) {
	e, sink := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	doc := docCtx("v1")
	doc.Editability = model.EditabilityPublished
	_, err := e.Edit(context.Background(), doc, verbatimUpdate("i6", "Usage", "New usage."))
	if model.CodeOf(err) != model.CodeEditabilityDenied {
		t.Fatalf("error = %v, want EDITABILITY_DENIED", err)
	}

	events := queryEvents(t, e, sink, audit.Filter{IntentID: "i6"})
	if len(events) != 1 || events[0].Type != model.EventIntentReceived || events[0].Status != model.StatusRejected {
		t.Errorf("events = %+v", events)
	}
}

func TestEditVersionMismatch(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	_, err := e.Edit(context.Background(), docCtx("v2"), verbatimUpdate("i7", "Usage", "New usage."))
	if model.CodeOf(err) != model.CodeVersionMismatch {
		t.Fatalf("error = %v, want VERSION_MISMATCH", err)
	}

	doc := docCtx("v1")
	doc.DocID = "never-registered"
	_, err = e.Edit(context.Background(), doc, verbatimUpdate("i8", "Usage", "New usage."))
	if model.CodeOf(err) != model.CodeVersionMismatch {
		t.Fatalf("unregistered doc error = %v, want VERSION_MISMATCH", err)
	}
}

func TestEditIncompatibleIntentStopsEarly(t *testing.T) {
	stub := llm.NewStubGenerator("")
	e, sink := newTestEngine(t, stub)
	defer e.Close()

	it := verbatimUpdate("i9", "Usage", "New usage.")
	it.Action.Mode = model.ModeRemove // not an update mode
	_, err := e.Edit(context.Background(), docCtx("v1"), it)
	if model.CodeOf(err) != model.CodeIntentTypeIncompatible {
		t.Fatalf("error = %v, want INTENT_TYPE_INCOMPATIBLE", err)
	}
	if len(stub.Calls()) != 0 {
		t.Error("generator must not run for invalid intents")
	}

	events := queryEvents(t, e, sink, audit.Filter{IntentID: "i9"})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Type != model.EventIntentValidated || events[1].Status != model.StatusRejected {
		t.Errorf("final event = %+v", events[1])
	}
}

func TestEditTargetNotFound(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	_, err := e.Edit(context.Background(), docCtx("v1"), verbatimUpdate("i10", "Completely Unrelated Heading", "x"))
	if model.CodeOf(err) != model.CodeTargetNotFound {
		t.Fatalf("error = %v, want TARGET_NOT_FOUND", err)
	}
}

func TestEditAllowedSections(t *testing.T) {
	e, _ := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	it := verbatimUpdate("i11", "Architecture Overview", "## Architecture Overview\n\nRewritten.")
	it.Constraints.AllowedSections = []string{"Usage"}
	_, err := e.Edit(context.Background(), docCtx("v1"), it)
	if model.CodeOf(err) != model.CodeSecurityDenied {
		t.Fatalf("error = %v, want SECURITY_DENIED", err)
	}

	it.IntentID = "i12"
	it.Constraints.AllowedSections = []string{"Architecture Overview"}
	if _, err := e.Edit(context.Background(), docCtx("v1"), it); err != nil {
		t.Fatalf("allowed section rejected: %v", err)
	}
}

func TestEditConstraintViolationDiscardsContent(t *testing.T) {
	e, sink := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	it := verbatimUpdate("i13", "Usage", "## Usage\n\nSee http://example.com/external for details.")
	it.Constraints.NoExternalReference = true
	resp, err := e.Edit(context.Background(), docCtx("v1"), it)
	if model.CodeOf(err) != model.CodeConstraintViolation {
		t.Fatalf("error = %v, want CONSTRAINT_VIOLATION", err)
	}
	if resp != nil {
		t.Error("rejected intent must not produce a response")
	}

	events := queryEvents(t, e, sink, audit.Filter{IntentID: "i13"})
	last := events[len(events)-1]
	if last.Type != model.EventOutputValidated || last.Status != model.StatusRejected {
		t.Errorf("final event = %+v", last)
	}
	for _, ev := range events {
		if ev.Type == model.EventPatchBuilt || ev.Type == model.EventPatchReturned {
			t.Errorf("patch event emitted for rejected intent: %+v", ev)
		}
	}
}

func TestEditGenerationFailure(t *testing.T) {
	stub := llm.NewStubGenerator("")
	stub.Fail(errors.New("backend unavailable"))
	e, _ := newTestEngine(t, stub)
	defer e.Close()

	it := &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      "i14",
		Type:          model.IntentRefactor,
		Target:        headingTarget("Usage", 2),
		Action:        model.Action{Mode: model.ModeRewrite, ContentPolicy: model.PolicyGenerate},
	}
	_, err := e.Edit(context.Background(), docCtx("v1"), it)
	if model.CodeOf(err) != model.CodeGenerationFailed {
		t.Fatalf("error = %v, want LLM_GENERATION_FAILED", err)
	}
}

func TestEditCancellation(t *testing.T) {
	e, sink := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := &model.EditIntent{
		SchemaVersion: "2",
		IntentID:      "i15",
		Type:          model.IntentRefactor,
		Target:        headingTarget("Usage", 2),
		Action:        model.Action{Mode: model.ModeRewrite, ContentPolicy: model.PolicyGenerate},
	}
	_, err := e.Edit(ctx, docCtx("v1"), it)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	events := queryEvents(t, e, sink, audit.Filter{IntentID: "i15"})
	last := events[len(events)-1]
	if last.Type != model.EventContentGenerated || last.Status != model.StatusCancelled {
		t.Errorf("final event = %+v", last)
	}
}

func TestEditRawMalformedPayload(t *testing.T) {
	e, sink := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	_, err := e.EditRaw(context.Background(), docCtx("v1"), []byte(`{"intent_id":`))
	if model.CodeOf(err) != model.CodeIntentSchemaInvalid {
		t.Fatalf("error = %v, want INTENT_SCHEMA_INVALID", err)
	}

	events := queryEvents(t, e, sink, audit.Filter{Type: model.EventIntentReceived})
	if len(events) == 0 || events[len(events)-1].Status != model.StatusRejected {
		t.Errorf("malformed payload not audited: %+v", events)
	}
}

func TestAuditEventSequence(t *testing.T) {
	e, sink := newTestEngine(t, llm.NewStubGenerator(""))
	defer e.Close()

	if _, err := e.Edit(context.Background(), docCtx("v1"), verbatimUpdate("i16", "Usage", "## Usage\n\nUpdated usage notes.")); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	events := queryEvents(t, e, sink, audit.Filter{IntentID: "i16"})
	want := []model.EventType{
		model.EventIntentReceived,
		model.EventIntentValidated,
		model.EventTargetLocated,
		model.EventContextAssembled,
		model.EventContentGenerated,
		model.EventOutputValidated,
		model.EventPatchBuilt,
		model.EventPatchValidated,
		model.EventPatchReturned,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Type, want[i])
		}
		if ev.Status != model.StatusOK {
			t.Errorf("event %s status = %s", ev.Type, ev.Status)
		}
		if ev.DurationMS < 0 {
			t.Errorf("event %s has negative duration", ev.Type)
		}
	}
	if events[len(events)-1].PatchID == "" {
		t.Error("patch_returned event carries no patch id")
	}
	if idx := audit.VerifyChain(events, ""); idx != -1 {
		t.Errorf("event chain broken at %d", idx)
	}
}

func TestEditPersistsToSqliteStore(t *testing.T) {
	sink, err := audit.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("NewSqliteInMemory failed: %v", err)
	}
	e, err := New(config.MustNew("stub"), llm.NewStubGenerator(""), sink, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e.Close()
	if err := e.RegisterDocument("doc-1", "v1", testDoc); err != nil {
		t.Fatalf("RegisterDocument failed: %v", err)
	}

	resp, err := e.Edit(context.Background(), docCtx("v1"), verbatimUpdate("i17", "Usage", "## Usage\n\nStored usage."))
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}

	stored, err := sink.LoadPatch(context.Background(), resp.PatchID)
	if err != nil {
		t.Fatalf("LoadPatch failed: %v", err)
	}
	if stored == nil || stored.IntentID != "i17" {
		t.Errorf("stored patch = %+v", stored)
	}
}
