// Pipeline state machine. Stages run in fixed order; every stage emits
// exactly one audit event, and a rejected stage is terminal for the
// intent.

package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/redline/assemble"
	"github.com/richinex/redline/intent"
	"github.com/richinex/redline/internal/respond"
	"github.com/richinex/redline/lint"
	"github.com/richinex/redline/model"
	"github.com/richinex/redline/patch"
)

// run tracks one pipeline execution: the current stage and the clock
// for per-stage durations. Stages only move forward.
type run struct {
	engine   *Engine
	doc      model.DocumentContext
	intentID string
	patchID  string
	stage    model.EventType
	started  time.Time
}

func (e *Engine) newRun(doc model.DocumentContext, intentID string) *run {
	return &run{engine: e, doc: doc, intentID: intentID, started: time.Now()}
}

// stageOrder fixes the pipeline stage sequence. record enforces it:
// a run may only advance, never revisit or skip backwards.
var stageOrder = map[model.EventType]int{
	model.EventIntentReceived:   1,
	model.EventIntentValidated:  2,
	model.EventTargetLocated:    3,
	model.EventContextAssembled: 4,
	model.EventContentGenerated: 5,
	model.EventOutputValidated:  6,
	model.EventPatchBuilt:       7,
	model.EventPatchValidated:   8,
	model.EventPatchReturned:    9,
}

// record emits one audit event for the stage and restarts the clock.
func (r *run) record(t model.EventType, status model.EventStatus, meta map[string]string) {
	if r.stage != "" && stageOrder[t] <= stageOrder[r.stage] {
		panic(fmt.Sprintf("pipeline stage %s recorded after %s", t, r.stage))
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["doc_id"] = r.doc.DocID
	meta["version_id"] = r.doc.VersionID

	r.stage = t
	r.engine.auditor.Record(model.AuditEvent{
		Type:       t,
		IntentID:   r.intentID,
		PatchID:    r.patchID,
		DurationMS: time.Since(r.started).Milliseconds(),
		Status:     status,
		Metadata:   meta,
	})
	r.started = time.Now()
}

func (r *run) ok(t model.EventType, meta map[string]string) {
	r.record(t, model.StatusOK, meta)
}

// fail records the stage as rejected (or cancelled) and returns err so
// callers can `return nil, r.fail(...)`.
func (r *run) fail(t model.EventType, err error) error {
	status := model.StatusRejected
	meta := map[string]string{}
	if ee := model.AsEngineError(err); ee != nil {
		meta["error_code"] = string(ee.Code)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = model.StatusCancelled
	}
	r.record(t, status, meta)

	r.engine.log.Warn("intent rejected",
		zap.String("intent_id", r.intentID),
		zap.String("stage", string(t)),
		zap.Error(err))
	return err
}

// EditRaw decodes a raw intent payload and runs it through Edit. A
// payload that does not decode is still audited as a rejected receipt.
func (e *Engine) EditRaw(ctx context.Context, doc model.DocumentContext, raw []byte) (*model.PatchResponse, error) {
	it, err := intent.Parse(raw)
	if err != nil {
		r := e.newRun(doc, "")
		return nil, r.fail(model.EventIntentReceived, err)
	}
	return e.Edit(ctx, doc, it)
}

// Edit runs one intent through the full pipeline and returns the patch
// response. Every rejection is terminal: no partial output, no retry.
func (e *Engine) Edit(ctx context.Context, doc model.DocumentContext, it *model.EditIntent) (*model.PatchResponse, error) {
	r := e.newRun(doc, it.IntentID)

	// Received: editability and version gates come before anything else.
	if !doc.Editable() {
		return nil, r.fail(model.EventIntentReceived,
			model.NewError(model.CodeEditabilityDenied,
				fmt.Sprintf("document %q is %s and cannot be edited", doc.DocID, doc.Editability)).
				WithDetail("editability_state", string(doc.Editability)))
	}
	d, err := e.lookup(doc)
	if err != nil {
		return nil, r.fail(model.EventIntentReceived, err)
	}
	r.ok(model.EventIntentReceived, map[string]string{
		"actor":       doc.Actor,
		"intent_type": string(it.Type),
	})

	// Validated
	if err := intent.Validate(it); err != nil {
		return nil, r.fail(model.EventIntentValidated, err)
	}
	r.ok(model.EventIntentValidated, nil)

	// TargetResolved
	target, err := e.locator.Locate(d.tree, it.Target)
	if err != nil {
		return nil, r.fail(model.EventTargetLocated, err)
	}
	if err := checkAllowedSections(it.Constraints, target); err != nil {
		return nil, r.fail(model.EventTargetLocated, err)
	}
	r.ok(model.EventTargetLocated, map[string]string{
		"block_id":   target.ID,
		"block_type": string(target.Type),
	})

	// ContextAssembled
	win, err := assemble.Build(d.tree, target, e.policy)
	if err != nil {
		return nil, r.fail(model.EventContextAssembled, err)
	}
	r.ok(model.EventContextAssembled, map[string]string{
		"context_digest": win.Digest,
		"blocks":         strconv.Itoa(len(win.Blocks)),
	})

	// ContentGenerated: the only external suspension point.
	content, modelVersion, genMeta, err := e.produceContent(ctx, it, win)
	if err != nil {
		return nil, r.fail(model.EventContentGenerated, err)
	}
	if err := ctx.Err(); err != nil {
		// Cancelled after generation: discard the candidate, audit it.
		return nil, r.fail(model.EventContentGenerated, err)
	}
	r.ok(model.EventContentGenerated, genMeta)

	// OutputValidated: deletes carry no content to lint, but the stage
	// still runs and is still audited.
	if it.Type != model.IntentDelete {
		in := lint.Input{
			Candidate:       content,
			Original:        originalFor(it, target),
			ContextText:     win.Text(),
			Constraints:     it.Constraints,
			MinHeadingLevel: minHeadingLevel(d.tree, it, target),
		}
		if err := e.linter.Check(in); err != nil {
			return nil, r.fail(model.EventOutputValidated, err)
		}
	}
	r.ok(model.EventOutputValidated, nil)

	// PatchBuilt
	bp, err := patch.Build(it, target, doc, content, e.now())
	if err != nil {
		return nil, r.fail(model.EventPatchBuilt, err)
	}
	r.patchID = bp.PatchID
	r.ok(model.EventPatchBuilt, map[string]string{
		"operation": string(bp.Operations[0].Op),
	})

	// PatchValidated: prove the patch applies and converts before
	// anything is returned.
	patched, err := patch.Apply(d.text, bp)
	if err != nil {
		return nil, r.fail(model.EventPatchValidated, err)
	}
	tp, err := patch.ToTextPatch(d.text, patched, doc.DocID, doc.DocID)
	if err != nil {
		return nil, r.fail(model.EventPatchValidated, err)
	}
	r.ok(model.EventPatchValidated, nil)

	e.persist(ctx, it, bp)

	resp := &model.PatchResponse{
		PatchID:  bp.PatchID,
		IntentID: it.IntentID,
		Block:    *bp,
		Text:     *tp,
		Semantic: semanticFor(it, target),
		Preview:  bp.Operations[0].Content,
		AuditInfo: model.AuditInfo{
			ModelVersion:  modelVersion,
			ContextDigest: win.Digest,
			GeneratedAt:   e.now().UTC(),
			GeneratedBy:   e.gen.Name(),
		},
	}
	r.ok(model.EventPatchReturned, nil)

	e.log.Info("patch returned",
		zap.String("intent_id", it.IntentID),
		zap.String("patch_id", bp.PatchID),
		zap.String("operation", string(bp.Operations[0].Op)))
	return resp, nil
}

// produceContent yields the final candidate content for the intent. The
// generator is only invoked for the generate content policy; verbatim
// and delete intents bypass it but keep the stage in the audit stream.
func (e *Engine) produceContent(ctx context.Context, it *model.EditIntent, win *assemble.Context) (string, string, map[string]string, error) {
	switch {
	case it.Type == model.IntentDelete:
		return "", "", map[string]string{"content_policy": string(model.PolicyNone)}, nil
	case it.Action.ContentPolicy == model.PolicyVerbatim:
		return it.Action.Content, "", map[string]string{"content_policy": string(model.PolicyVerbatim)}, nil
	}

	req := buildRequest(it, win)
	gctx, cancel := context.WithTimeout(ctx, e.settings.Generator.Timeout)
	defer cancel()

	res, err := e.gen.Generate(gctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller went away; this is a cancellation, not a
			// generator fault.
			return "", "", nil, ctx.Err()
		}
		return "", "", nil, model.NewError(model.CodeGenerationFailed, "content generation failed").
			Wrap(err).
			WithDetail("generator", e.gen.Name()).
			WithDetail("timeout", e.settings.Generator.Timeout.String())
	}

	cfg := e.gen.Config()
	meta := map[string]string{
		"content_policy": string(model.PolicyGenerate),
		"model_version":  res.ModelVersion,
		"context_digest": win.Digest,
		"temperature":    strconv.FormatFloat(float64(cfg.Temperature), 'f', -1, 32),
		"top_p":          strconv.FormatFloat(float64(cfg.TopP), 'f', -1, 32),
		"seed":           strconv.FormatInt(cfg.Seed, 10),
		"max_tokens":     strconv.Itoa(cfg.MaxTokens),
	}
	if res.Usage != nil {
		meta["total_tokens"] = strconv.FormatUint(uint64(res.Usage.TotalTokens), 10)
	}
	return respond.Clean(res.Content), res.ModelVersion, meta, nil
}

// persist stores the intent and patch when the sink has durable
// storage. Store failures are logged, never fatal: the patch already
// exists in the audit stream via its events.
func (e *Engine) persist(ctx context.Context, it *model.EditIntent, bp *model.BlockPatch) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveIntent(ctx, it); err != nil {
		e.log.Error("intent store failed", zap.String("intent_id", it.IntentID), zap.Error(err))
	}
	if err := e.store.SavePatch(ctx, bp); err != nil {
		e.log.Error("patch store failed", zap.String("patch_id", bp.PatchID), zap.Error(err))
	}
}

// checkAllowedSections enforces the section allow-list: the target must
// sit under (or be) one of the named headings.
func checkAllowedSections(c model.Constraints, target *model.Block) error {
	if len(c.AllowedSections) == 0 {
		return nil
	}
	for _, allowed := range c.AllowedSections {
		if target.Type == model.BlockHeading && target.HeadingText() == allowed {
			return nil
		}
		for _, seg := range target.HeadingPath {
			if seg == allowed {
				return nil
			}
		}
	}
	return model.NewError(model.CodeSecurityDenied,
		"target lies outside the sections this intent may touch").
		WithDetail("allowed_sections", c.AllowedSections).
		WithDetail("heading_path", target.HeadingPath).
		WithSuggestion("target a block under one of the allowed sections")
}

// originalFor is the pre-edit content drift checks compare against.
// Insertions have no original.
func originalFor(it *model.EditIntent, target *model.Block) string {
	if it.Type == model.IntentInsert {
		return ""
	}
	return target.Content
}

// minHeadingLevel is the shallowest heading level the candidate may
// introduce without escaping the enclosing section.
func minHeadingLevel(tree *model.BlockTree, it *model.EditIntent, target *model.Block) int {
	if target.Type == model.BlockHeading {
		if it.Type == model.IntentInsert && it.Action.Mode == model.ModeAppendChild {
			return target.Level + 1
		}
		// Replacing or flanking a heading may restate it at its own
		// level, but nothing shallower.
		return target.Level
	}
	return sectionLevel(tree, target) + 1
}

// sectionLevel returns the level of the deepest heading enclosing
// target, 0 when the target sits above every heading.
func sectionLevel(tree *model.BlockTree, target *model.Block) int {
	level := 0
	var walk func(b *model.Block) bool
	walk = func(b *model.Block) bool {
		for _, c := range b.Children {
			if c == target || walk(c) {
				if b.Type == model.BlockHeading && b.Level > level {
					level = b.Level
				}
				return true
			}
		}
		return false
	}
	walk(tree.Root)
	return level
}

// semanticFor summarizes the edit for human review.
func semanticFor(it *model.EditIntent, target *model.Block) *model.SemanticPatch {
	where := string(target.Type) + " block"
	if target.Type == model.BlockHeading {
		where = fmt.Sprintf("section %q", target.HeadingText())
	} else if len(target.HeadingPath) > 0 {
		where = fmt.Sprintf("%s under %q", where, target.HeadingPath[len(target.HeadingPath)-1])
	}
	return &model.SemanticPatch{
		Summary: fmt.Sprintf("%s %s of %s", it.Type, it.Action.Mode, where),
		Effect:  it.Reason,
	}
}
