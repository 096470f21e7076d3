package patch

import "fmt"

// Apply applies a sequence of patches to value, returning a new value.
// value itself is never mutated: every node on the path to an edit is
// copied before being written into, and every untouched subtree is
// shared between the input and the result (the same structural-sharing
// guarantee ProduceWithPatches makes — see produce.go). Apply fails
// with *ApplyError as soon as one operation targets a path that no
// longer exists or whose shape (object vs. array) the operation
// doesn't match.
func Apply(value interface{}, patches Patches) (interface{}, error) {
	cur := value
	for _, p := range patches {
		next, err := applyOne(cur, p)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func applyOne(doc interface{}, p Patch) (interface{}, error) {
	switch p.Op {
	case OpAdd:
		return applyAdd(doc, p.Path, p.Value, p.Op)
	case OpRemove:
		return applyRemove(doc, p.Path, p.Op)
	case OpReplace:
		return applyReplace(doc, p.Path, p.Value, p.Op)
	default:
		return nil, newApplyError(p.Op, p.Path, fmt.Errorf("unknown operation"))
	}
}

// applyAdd sets value at path, creating the leaf. For a slice parent,
// "-" (encoded here as the literal index == length) appends; any other
// index inserts. The root path (empty pointer) replaces the document.
func applyAdd(doc interface{}, path Pointer, value interface{}, op Op) (interface{}, error) {
	if len(path) == 0 {
		return value, nil
	}
	return setAtPath(doc, path, value, true, op)
}

func applyReplace(doc interface{}, path Pointer, value interface{}, op Op) (interface{}, error) {
	if len(path) == 0 {
		return value, nil
	}
	if _, err := getAtPath(doc, path); err != nil {
		return nil, newApplyError(op, path, err)
	}
	return setAtPath(doc, path, value, false, op)
}

func applyRemove(doc interface{}, path Pointer, op Op) (interface{}, error) {
	if len(path) == 0 {
		return nil, newApplyError(op, path, fmt.Errorf("cannot remove the document root"))
	}
	parentPath, lastSeg := path[:len(path)-1], path[len(path)-1]
	parent, err := getAtPath(doc, parentPath)
	if err != nil {
		return nil, newApplyError(op, path, err)
	}

	switch container := parent.(type) {
	case map[string]interface{}:
		if _, ok := container[lastSeg]; !ok {
			return nil, newApplyError(op, path, fmt.Errorf("key %q not found", lastSeg))
		}
		clone := cloneMap(container)
		delete(clone, lastSeg)
		return replaceAtPath(doc, parentPath, clone)
	case []interface{}:
		idx, err := sliceIndex(lastSeg, len(container), false)
		if err != nil {
			return nil, newApplyError(op, path, err)
		}
		clone := make([]interface{}, 0, len(container)-1)
		clone = append(clone, container[:idx]...)
		clone = append(clone, container[idx+1:]...)
		return replaceAtPath(doc, parentPath, clone)
	default:
		return nil, newApplyError(op, path, fmt.Errorf("cannot remove from %T", parent))
	}
}

// setAtPath writes value at path, cloning every ancestor on the way
// down so the input document is left untouched. allowCreate permits
// introducing a new object key or a new/appended slice element (add
// semantics); when false, the leaf must already exist (replace
// semantics handled by the caller's prior existence check).
func setAtPath(doc interface{}, path Pointer, value interface{}, allowCreate bool, op Op) (interface{}, error) {
	parentPath, lastSeg := path[:len(path)-1], path[len(path)-1]
	parent, err := getAtPath(doc, parentPath)
	if err != nil {
		return nil, newApplyError(op, path, err)
	}

	switch container := parent.(type) {
	case map[string]interface{}:
		clone := cloneMap(container)
		clone[lastSeg] = value
		return replaceAtPath(doc, parentPath, clone)
	case []interface{}:
		idx, err := sliceIndex(lastSeg, len(container), allowCreate)
		if err != nil {
			return nil, newApplyError(op, path, err)
		}
		var clone []interface{}
		if allowCreate {
			clone = make([]interface{}, 0, len(container)+1)
			clone = append(clone, container[:idx]...)
			clone = append(clone, value)
			clone = append(clone, container[idx:]...)
		} else {
			clone = append([]interface{}(nil), container...)
			clone[idx] = value
		}
		return replaceAtPath(doc, parentPath, clone)
	default:
		return nil, newApplyError(op, path, fmt.Errorf("cannot index into %T", parent))
	}
}

// replaceAtPath rebuilds doc with newChild installed at path, cloning
// every ancestor container along the way and sharing everything else.
func replaceAtPath(doc interface{}, path Pointer, newChild interface{}) (interface{}, error) {
	if len(path) == 0 {
		return newChild, nil
	}

	parentPath, lastSeg := path[:len(path)-1], path[len(path)-1]
	parent, err := getAtPath(doc, parentPath)
	if err != nil {
		return nil, err
	}

	switch container := parent.(type) {
	case map[string]interface{}:
		clone := cloneMap(container)
		clone[lastSeg] = newChild
		return replaceAtPath(doc, parentPath, clone)
	case []interface{}:
		idx, err := sliceIndex(lastSeg, len(container), false)
		if err != nil {
			return nil, err
		}
		clone := append([]interface{}(nil), container...)
		clone[idx] = newChild
		return replaceAtPath(doc, parentPath, clone)
	default:
		return nil, fmt.Errorf("cannot index into %T", parent)
	}
}

func getAtPath(doc interface{}, path Pointer) (interface{}, error) {
	cur := doc
	for _, seg := range path {
		switch container := cur.(type) {
		case map[string]interface{}:
			v, ok := container[seg]
			if !ok {
				return nil, fmt.Errorf("key %q not found", seg)
			}
			cur = v
		case []interface{}:
			idx, err := sliceIndex(seg, len(container), false)
			if err != nil {
				return nil, err
			}
			cur = container[idx]
		default:
			return nil, fmt.Errorf("cannot index into %T", cur)
		}
	}
	return cur, nil
}

func sliceIndex(seg string, length int, allowAppend bool) (int, error) {
	if seg == "-" {
		if !allowAppend {
			return 0, fmt.Errorf("index %q not valid here", seg)
		}
		return length, nil
	}
	idx := 0
	if _, err := fmt.Sscanf(seg, "%d", &idx); err != nil {
		return 0, fmt.Errorf("invalid array index %q", seg)
	}
	if idx < 0 || idx > length || (idx == length && !allowAppend) {
		return 0, fmt.Errorf("array index %d out of bounds (len %d)", idx, length)
	}
	return idx, nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}
