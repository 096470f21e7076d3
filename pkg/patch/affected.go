package patch

import "strings"

// AffectedPaths returns the set of coarse entity paths a patch
// sequence touches: the first min(len(path), 2) segments of each
// patch's path, joined with ".". A patch at /tasks/task_3/title
// contributes "tasks.task_3"; depth is capped at 2 deliberately
// (see ConflictsWith) so edits to different fields of the same entity
// still collide under rebase.
func AffectedPaths(patches Patches) map[string]struct{} {
	out := make(map[string]struct{}, len(patches))
	for _, p := range patches {
		n := len(p.Path)
		if n > 2 {
			n = 2
		}
		if n == 0 {
			continue
		}
		out[strings.Join(p.Path[:n], ".")] = struct{}{}
	}
	return out
}

// ConflictsWith reports whether any path in a equals, is a prefix of,
// or is prefixed by any path in b — symmetric, and reflexive on any
// nonempty set (ConflictsWith(a, a) is true). The comparison splits on "." so "tasks.t1"
// conflicts with "tasks" but not with "tasks.t10".
func ConflictsWith(a, b map[string]struct{}) bool {
	for pa := range a {
		for pb := range b {
			if pathsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	return strings.HasPrefix(longer, shorter+".")
}
