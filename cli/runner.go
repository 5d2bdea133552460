// Command execution for CLI commands.
//
// Information Hiding:
// - Engine and sink setup hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/redline/audit"
	"github.com/richinex/redline/config"
	"github.com/richinex/redline/engine"
	"github.com/richinex/redline/llm"
	"github.com/richinex/redline/model"
	"github.com/richinex/redline/patch"
)

// Options are the global CLI settings shared by all commands.
type Options struct {
	// Provider selects the generation backend (openai, anthropic,
	// gemini, stub).
	Provider string
	// Actor is recorded on the document context and every audit event.
	Actor string
	// Verbose enables development-style logging.
	Verbose bool
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Edit runs one intent file against one document file and prints the
// PatchResponse as JSON. With apply set, the patched document is
// written to outPath (or stdout when empty) instead.
func Edit(ctx context.Context, docPath, intentPath string, apply bool, outPath string, opts Options) error {
	log, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}

	gt, err := llm.ParseGeneratorType(settings.Generator.Backend)
	if err != nil {
		return err
	}
	gen, err := llm.NewGeneratorBuilder(gt).
		Model(settings.Generator.Model).
		MaxTokens(settings.Generator.MaxTokens).
		FromEnv()
	if err != nil {
		return err
	}

	var sink audit.Sink
	if settings.Audit.DBPath != "" {
		sink, err = audit.OpenSqlite(settings.Audit.DBPath)
		if err != nil {
			return err
		}
	} else {
		sink = audit.NewMemorySink()
	}

	eng, err := engine.New(settings, gen, sink, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	text, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	rawIntent, err := os.ReadFile(intentPath)
	if err != nil {
		return fmt.Errorf("read intent: %w", err)
	}

	docID := filepath.Base(docPath)
	versionID := model.HashContent(text)[:12]
	if err := eng.RegisterDocument(docID, versionID, string(text)); err != nil {
		return printEngineError(err)
	}

	doc := model.DocumentContext{
		DocID:       docID,
		VersionID:   versionID,
		StoragePath: docPath,
		Actor:       opts.Actor,
		Editability: model.EditabilityEditing,
	}

	resp, err := eng.EditRaw(ctx, doc, rawIntent)
	if err != nil {
		return printEngineError(err)
	}

	if apply {
		patched, err := patch.ApplyText(string(text), &resp.Text)
		if err != nil {
			return err
		}
		if outPath == "" {
			fmt.Print(patched)
			return nil
		}
		return os.WriteFile(outPath, []byte(patched), 0o644)
	}

	return printJSON(resp)
}

// AuditQuery lists events from a SQLite audit database. A zero filter
// lists everything; since bounds the query to the trailing window.
func AuditQuery(ctx context.Context, dbPath, intentID, eventType string, since time.Duration, limit int, stats bool) error {
	sink, err := audit.OpenSqlite(dbPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	if stats {
		counts, err := sink.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(counts)
	}

	f := audit.Filter{
		IntentID: intentID,
		Type:     model.EventType(eventType),
		Limit:    limit,
	}
	if since > 0 {
		f.Since = time.Now().UTC().Add(-since)
	}
	events, err := sink.Query(ctx, f)
	if err != nil {
		return err
	}
	// A full unfiltered listing doubles as an integrity check.
	if intentID == "" && eventType == "" && since == 0 && limit == 0 {
		if idx := audit.VerifyChain(events, ""); idx != -1 {
			fmt.Fprintf(os.Stderr, "warning: event chain breaks at index %d\n", idx)
		}
	}
	// Sink order can drift from wall-clock order under overflow
	// interleavings; present the listing chronologically.
	audit.SortByTime(events)
	return printJSON(events)
}

// printEngineError renders the structured ErrorResponse for pipeline
// rejections; other errors pass through untouched.
func printEngineError(err error) error {
	if ee := model.AsEngineError(err); ee != nil {
		out, merr := json.MarshalIndent(ee.Response(), "", "  ")
		if merr == nil {
			fmt.Fprintln(os.Stderr, string(out))
		}
	}
	return err
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
