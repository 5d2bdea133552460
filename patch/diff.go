// Unified-diff conversion.
//
// The semantic form stays authoritative: the text form is derived from
// the before/after document texts and verified by re-applying it before
// it leaves this package. Line splitting keeps the empty tail element
// of a newline-terminated document, so conversion is byte-exact in both
// directions.

package patch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/richinex/redline/model"
)

const hunkContext = 3

// ToTextPatch derives a unified diff from the original and patched
// document texts. The diff is verified by applying it back to the
// original; any mismatch fails with PATCH_CONVERSION_FAILED.
func ToTextPatch(orig, patched, origName, newName string) (*model.TextPatch, error) {
	if orig == patched {
		return &model.TextPatch{OrigName: origName, NewName: newName}, nil
	}

	origLines := strings.Split(orig, "\n")
	newLines := strings.Split(patched, "\n")

	fd := &diff.FileDiff{
		OrigName: origName,
		NewName:  newName,
		Hunks:    buildHunks(lineDiff(origLines, newLines)),
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return nil, model.NewError(model.CodePatchConversionFailed,
			"could not render unified diff").
			Wrap(err)
	}

	tp := &model.TextPatch{
		Unified:  string(out),
		OrigName: origName,
		NewName:  newName,
	}

	// The two patch forms must stay equivalent.
	reapplied, err := ApplyText(orig, tp)
	if err != nil {
		return nil, err
	}
	if reapplied != patched {
		return nil, model.NewError(model.CodePatchConversionFailed,
			"derived text patch does not reproduce the patched document")
	}
	return tp, nil
}

// ApplyText applies a unified diff to document text.
func ApplyText(docText string, tp *model.TextPatch) (string, error) {
	if tp.Unified == "" {
		return docText, nil
	}
	fd, err := diff.ParseFileDiff([]byte(tp.Unified))
	if err != nil {
		return "", model.NewError(model.CodePatchConversionFailed,
			"could not parse unified diff").
			Wrap(err)
	}

	lines := strings.Split(docText, "\n")
	var out []string
	cursor := 0 // index into lines

	for _, h := range fd.Hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			// Pure insertion hunks anchor after OrigStartLine.
			start = int(h.OrigStartLine)
		}
		if start < cursor || start > len(lines) {
			return "", hunkError("hunk start out of range", h)
		}
		out = append(out, lines[cursor:start]...)
		cursor = start

		body := bytes.Split(bytes.TrimSuffix(h.Body, []byte("\n")), []byte("\n"))
		for _, raw := range body {
			if len(raw) == 0 {
				// A bare empty body line is context for an empty line.
				raw = []byte(" ")
			}
			tag, text := raw[0], string(raw[1:])
			switch tag {
			case ' ':
				if cursor >= len(lines) || lines[cursor] != text {
					return "", hunkError("context mismatch", h)
				}
				out = append(out, text)
				cursor++
			case '-':
				if cursor >= len(lines) || lines[cursor] != text {
					return "", hunkError("removed line mismatch", h)
				}
				cursor++
			case '+':
				out = append(out, text)
			case '\\':
				// "\ No newline at end of file" - informational.
			default:
				return "", hunkError(fmt.Sprintf("unknown line tag %q", tag), h)
			}
		}
	}
	out = append(out, lines[cursor:]...)
	return strings.Join(out, "\n"), nil
}

// Invert swaps a text patch's direction, turning apply into revert.
func Invert(tp *model.TextPatch) (*model.TextPatch, error) {
	if tp.Unified == "" {
		return &model.TextPatch{OrigName: tp.NewName, NewName: tp.OrigName}, nil
	}
	fd, err := diff.ParseFileDiff([]byte(tp.Unified))
	if err != nil {
		return nil, model.NewError(model.CodePatchConversionFailed,
			"could not parse unified diff").
			Wrap(err)
	}

	fd.OrigName, fd.NewName = tp.NewName, tp.OrigName
	for _, h := range fd.Hunks {
		h.OrigStartLine, h.NewStartLine = h.NewStartLine, h.OrigStartLine
		h.OrigLines, h.NewLines = h.NewLines, h.OrigLines
		lines := bytes.Split(bytes.TrimSuffix(h.Body, []byte("\n")), []byte("\n"))
		for i, raw := range lines {
			if len(raw) == 0 {
				continue
			}
			switch raw[0] {
			case '-':
				lines[i] = append([]byte("+"), raw[1:]...)
			case '+':
				lines[i] = append([]byte("-"), raw[1:]...)
			}
		}
		h.Body = append(bytes.Join(lines, []byte("\n")), '\n')
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return nil, model.NewError(model.CodePatchConversionFailed,
			"could not render inverted diff").
			Wrap(err)
	}
	return &model.TextPatch{
		Unified:  string(out),
		OrigName: tp.NewName,
		NewName:  tp.OrigName,
	}, nil
}

func hunkError(msg string, h *diff.Hunk) error {
	return model.NewError(model.CodePatchConversionFailed, msg).
		WithDetail("orig_start_line", int(h.OrigStartLine)).
		WithDetail("new_start_line", int(h.NewStartLine))
}

// editKind is one step of a line-level diff script.
type editKind int

const (
	editEqual editKind = iota
	editDelete
	editInsert
)

type edit struct {
	kind editKind
	line string
}

// lineDiff computes a minimal line edit script via longest common
// subsequence.
func lineDiff(a, b []string) []edit {
	n, m := len(a), len(b)
	// lcs[i][j] = LCS length of a[i:], b[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var script []edit
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			script = append(script, edit{editEqual, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			script = append(script, edit{editDelete, a[i]})
			i++
		default:
			script = append(script, edit{editInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		script = append(script, edit{editDelete, a[i]})
	}
	for ; j < m; j++ {
		script = append(script, edit{editInsert, b[j]})
	}
	return script
}

// buildHunks groups an edit script into unified hunks with fixed
// context.
func buildHunks(script []edit) []*diff.Hunk {
	// Mark which script entries are inside a hunk: changes plus
	// hunkContext equal lines on either side.
	include := make([]bool, len(script))
	for i, e := range script {
		if e.kind == editEqual {
			continue
		}
		lo := i - hunkContext
		if lo < 0 {
			lo = 0
		}
		hi := i + hunkContext
		if hi > len(script)-1 {
			hi = len(script) - 1
		}
		for k := lo; k <= hi; k++ {
			include[k] = true
		}
	}

	var hunks []*diff.Hunk
	origLine, newLine := 1, 1 // 1-based positions in orig/new
	i := 0
	for i < len(script) {
		if !include[i] {
			if script[i].kind != editInsert {
				origLine++
			}
			if script[i].kind != editDelete {
				newLine++
			}
			i++
			continue
		}

		h := &diff.Hunk{
			OrigStartLine: int32(origLine),
			NewStartLine:  int32(newLine),
		}
		var body bytes.Buffer
		for i < len(script) && include[i] {
			e := script[i]
			switch e.kind {
			case editEqual:
				body.WriteByte(' ')
				h.OrigLines++
				h.NewLines++
				origLine++
				newLine++
			case editDelete:
				body.WriteByte('-')
				h.OrigLines++
				origLine++
			case editInsert:
				body.WriteByte('+')
				h.NewLines++
				newLine++
			}
			body.WriteString(e.line)
			body.WriteByte('\n')
			i++
		}
		if h.OrigLines == 0 {
			// Unified convention: insertion-only hunks report the line
			// they insert after.
			h.OrigStartLine = int32(origLine - 1)
		}
		h.Body = body.Bytes()
		hunks = append(hunks, h)
	}
	return hunks
}
