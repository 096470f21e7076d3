package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// wireOp is the RFC 6902 {op,path,value} document shape a Patch
// marshals to and from — the same document shape the teacher's patch
// engine targets, and the shape evanphx/json-patch/v5 expects.
type wireOp struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// MarshalJSON renders p as an RFC 6902 operation: Path becomes a JSON
// Pointer string ("/tasks/t1/title"), not the internal []string shape.
func (p Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOp{Op: p.Op, Path: p.Path.String(), Value: p.Value})
}

// UnmarshalJSON parses an RFC 6902 operation back into a Patch,
// splitting its JSON Pointer path string into segments.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ptr, err := ParsePointer(w.Path)
	if err != nil {
		return err
	}
	p.Op = w.Op
	p.Path = ptr
	p.Value = w.Value
	return nil
}

// ParsePointer parses an RFC 6901 JSON Pointer string into a Pointer.
// The empty string parses to the empty (root) Pointer.
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("patch: invalid JSON Pointer %q: must start with \"/\"", s)
	}
	raw := strings.Split(s[1:], "/")
	out := make(Pointer, len(raw))
	for i, seg := range raw {
		out[i] = unescapeSegment(seg)
	}
	return out, nil
}

func unescapeSegment(seg string) string {
	if !strings.Contains(seg, "~") {
		return seg
	}
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg
}

// ValidateWireFormat marshals patches to an RFC 6902 JSON Patch
// document and applies it through evanphx/json-patch/v5 against doc (a
// JSON-encoded object) — an independent, real-world implementation of
// the same RFC this package's own Apply implements by hand. A mutation
// whose patches fail this validation indicates a bug in diffValue's
// emission, not a caller error: Apply and the wire format it claims to
// produce have diverged.
func ValidateWireFormat(patches Patches, doc []byte) ([]byte, error) {
	wire, err := json.Marshal(patches)
	if err != nil {
		return nil, fmt.Errorf("patch: marshal wire patch: %w", err)
	}
	decoded, err := jsonpatch.DecodePatch(wire)
	if err != nil {
		return nil, fmt.Errorf("patch: decode wire patch: %w", err)
	}
	out, err := decoded.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("patch: evanphx apply: %w", err)
	}
	return out, nil
}
