// Package engine runs the edit pipeline: one intent in, one patch or
// one terminal rejection out.
//
// Information Hiding:
// - Stage ordering and the per-stage audit protocol
// - Document tree caching per version
// - Generation timeout handling
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/redline/assemble"
	"github.com/richinex/redline/audit"
	"github.com/richinex/redline/config"
	"github.com/richinex/redline/lint"
	"github.com/richinex/redline/llm"
	"github.com/richinex/redline/locate"
	"github.com/richinex/redline/model"
	"github.com/richinex/redline/parser"
)

// Engine executes edit intents against registered document versions.
// Safe for concurrent use: parsed trees are shared read-only and every
// pipeline run is independent.
type Engine struct {
	settings config.Settings
	gen      llm.ContentGenerator
	auditor  *audit.Logger
	store    audit.PatchStore // nil when the sink has no durable storage
	locator  *locate.Locator
	linter   *lint.Linter
	policy   assemble.Policy
	log      *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	docs map[string]*document
}

// document is one cached, immutable parsed version.
type document struct {
	versionID string
	text      string
	tree      *model.BlockTree
}

// New creates an engine. The sink receives the audit stream; if it also
// implements audit.PatchStore, intents and patches are persisted there.
func New(settings config.Settings, gen llm.ContentGenerator, sink audit.Sink, log *zap.Logger) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("engine: content generator is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	auditor, err := audit.NewLogger(sink, log, audit.LoggerOptions{
		BatchSize:     settings.Audit.BatchSize,
		FlushInterval: settings.Audit.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: audit logger: %w", err)
	}

	styles := lint.NewStyleRegistry()
	if settings.Engine.StyleRulesPath != "" {
		if _, err := styles.LoadRuleSet(settings.Engine.StyleRulesPath); err != nil {
			auditor.Close()
			return nil, fmt.Errorf("engine: style rules: %w", err)
		}
	}

	store, _ := sink.(audit.PatchStore)

	return &Engine{
		settings: settings,
		gen:      gen,
		auditor:  auditor,
		store:    store,
		locator: locate.New(locate.Config{
			HighConfidence: settings.Engine.FuzzyHighConfidence,
			CandidateFloor: settings.Engine.FuzzyCandidateFloor,
		}),
		linter: lint.New(styles),
		policy: assemble.Policy{
			AncestorHeadings: true,
			Siblings:         true,
			MaxBlocks:        settings.Engine.ContextMaxBlocks,
		},
		log:  log,
		now:  time.Now,
		docs: map[string]*document{},
	}, nil
}

// RegisterDocument parses and caches a document version. Registering a
// new version for the same doc_id replaces the old tree; in-flight
// edits keep the tree they resolved against.
func (e *Engine) RegisterDocument(docID, versionID, text string) error {
	tree, err := parser.Parse(text)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.docs[docID] = &document{versionID: versionID, text: text, tree: tree}
	e.mu.Unlock()

	e.log.Info("document registered",
		zap.String("doc_id", docID),
		zap.String("version_id", versionID),
		zap.Int("blocks", len(tree.Blocks())))
	return nil
}

// lookup returns the cached version for the document context, enforcing
// the optimistic version check.
func (e *Engine) lookup(doc model.DocumentContext) (*document, error) {
	e.mu.RLock()
	d, ok := e.docs[doc.DocID]
	e.mu.RUnlock()

	if !ok {
		return nil, model.NewError(model.CodeVersionMismatch,
			fmt.Sprintf("document %q is not registered", doc.DocID)).
			WithDetail("doc_id", doc.DocID).
			WithSuggestion("register the document version before editing")
	}
	if d.versionID != doc.VersionID {
		return nil, model.NewError(model.CodeVersionMismatch,
			fmt.Sprintf("document %q is at version %q, intent targets %q", doc.DocID, d.versionID, doc.VersionID)).
			WithDetail("current_version", d.versionID).
			WithDetail("requested_version", doc.VersionID).
			WithSuggestion("re-resolve the intent against the current version")
	}
	return d, nil
}

// Flush forces pending audit events into the sink.
func (e *Engine) Flush(ctx context.Context) error {
	return e.auditor.Flush(ctx)
}

// Close flushes the audit trail and closes the sink.
func (e *Engine) Close() error {
	return e.auditor.Close()
}
