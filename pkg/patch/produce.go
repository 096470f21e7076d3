package patch

import "reflect"

// Recipe mutates a copy-on-write draft in place. The draft is always a
// deep copy of the base value handed to ProduceWithPatches, so ordinary
// Go map/slice mutation ("draft[key] = v", "append(draft, x)" followed
// by a write-back of the grown slice into its parent) is safe — the
// base value is never touched.
type Recipe func(draft map[string]interface{})

// ProduceWithPatches runs recipe against a deep copy of base and
// derives the forward and inverse patch sequences that are faithful to
// that edit. If the recipe makes no effective change, both patch
// sequences are empty and next is reference-identical to base (callers
// rely on this to skip empty mutations, per the conflict/commit rules
// in package txn).
//
// base must be a JSON-object-shaped value: a map[string]interface{}
// whose nested values are themselves maps, []interface{}, or JSON
// scalars — the same shape encoding/json produces when unmarshaling
// into interface{}. base is never mutated.
func ProduceWithPatches(base map[string]interface{}, recipe Recipe) (next map[string]interface{}, forward, inverse Patches) {
	draft := deepCopyMap(base)
	recipe(draft)

	forward = diffValue(nil, base, draft)
	if len(forward) == 0 {
		return base, nil, nil
	}

	appliedAny, err := Apply(base, forward)
	if err != nil {
		// The diff we just computed from base->draft must apply to
		// base; a failure here indicates a bug in diffValue, not a
		// caller error, so surface it the same way a nil map would.
		panic(err)
	}
	next, _ = appliedAny.(map[string]interface{})

	inverse = diffValue(nil, draft, base)
	return next, forward, inverse
}

// diffValue emits the patch sequence that transforms old into new,
// rooted at prefix. Unchanged subtrees emit nothing (the caller relies
// on Apply's structural sharing to avoid copying them).
func diffValue(prefix Pointer, old, new interface{}) Patches {
	switch ov := old.(type) {
	case map[string]interface{}:
		nv, ok := new.(map[string]interface{})
		if !ok {
			return Patches{{Op: OpReplace, Path: prefix.Clone(), Value: new}}
		}
		return diffMap(prefix, ov, nv)
	case []interface{}:
		nv, ok := new.([]interface{})
		if !ok {
			return Patches{{Op: OpReplace, Path: prefix.Clone(), Value: new}}
		}
		return diffSlice(prefix, ov, nv)
	default:
		if valuesEqual(old, new) {
			return nil
		}
		return Patches{{Op: OpReplace, Path: prefix.Clone(), Value: new}}
	}
}

func diffMap(prefix Pointer, old, new map[string]interface{}) Patches {
	var out Patches
	for k, ov := range old {
		nv, ok := new[k]
		if !ok {
			out = append(out, Patch{Op: OpRemove, Path: appendSeg(prefix, k)})
			continue
		}
		out = append(out, diffValue(appendSeg(prefix, k), ov, nv)...)
	}
	for k, nv := range new {
		if _, ok := old[k]; !ok {
			out = append(out, Patch{Op: OpAdd, Path: appendSeg(prefix, k), Value: nv})
		}
	}
	return out
}

// diffSlice compares element-by-element over the shared prefix length,
// then removes trailing old elements or appends trailing new ones.
// This is not minimal-edit-distance diffing (no move detection); it is
// sufficient for the entity-document shapes this engine targets and
// keeps inversion simple and exact.
func diffSlice(prefix Pointer, old, new []interface{}) Patches {
	var out Patches
	shared := len(old)
	if len(new) < shared {
		shared = len(new)
	}
	for i := 0; i < shared; i++ {
		out = append(out, diffValue(appendSeg(prefix, indexSeg(i)), old[i], new[i])...)
	}
	for i := len(old) - 1; i >= shared; i-- {
		out = append(out, Patch{Op: OpRemove, Path: appendSeg(prefix, indexSeg(i))})
	}
	for i := shared; i < len(new); i++ {
		out = append(out, Patch{Op: OpAdd, Path: appendSeg(prefix, "-"), Value: new[i]})
	}
	return out
}

func appendSeg(prefix Pointer, seg string) Pointer {
	out := make(Pointer, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = seg
	return out
}

func indexSeg(i int) string {
	if i == 0 {
		return "0"
	}
	digits := make([]byte, 0, 4)
	for n := i; n > 0; n /= 10 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
	}
	return string(digits)
}

func valuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
