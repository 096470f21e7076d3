// Package patch implements structural deltas over JSON-shaped values:
// RFC 6902 style add/remove/replace operations, their inverses, and the
// depth-capped entity path reasoning the mutation queue uses to decide
// whether two mutations conflict.
package patch

import "strings"

// Op is one of the three structural edit kinds this engine produces.
// Move/copy/test from RFC 6902 are not supported: Apply rejects any
// other op with an *ApplyError, and ProduceWithPatches never emits them
// — a recipe's effect is always expressible as add/remove/replace, and
// keeping the vocabulary small keeps inversion unambiguous.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
)

// Patch is a single structural edit at a path from the document root.
// Path segments are either object keys or, for slices, decimal indices;
// Pointer renders them as a JSON Pointer (RFC 6901) string.
type Patch struct {
	Op    Op
	Path  Pointer
	Value interface{} `json:",omitempty"`
}

// Pointer is an ordered sequence of path segments from the document
// root. Segments are stored as strings; a segment that parses as a
// non-negative integer addresses a slice element.
type Pointer []string

// String renders the pointer as an RFC 6901 JSON Pointer.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(escapeSegment(seg))
	}
	return b.String()
}

func escapeSegment(seg string) string {
	if !strings.ContainsAny(seg, "~/") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~", "~0")
	seg = strings.ReplaceAll(seg, "/", "~1")
	return seg
}

// Clone returns a copy of the pointer so callers can safely append to
// it without aliasing the original slice's backing array.
func (p Pointer) Clone() Pointer {
	out := make(Pointer, len(p))
	copy(out, p)
	return out
}

// Patches is a forward or inverse sequence of edits, applied in order.
type Patches []Patch
