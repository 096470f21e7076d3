package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ProduceAndRead(t *testing.T) {
	s := New(map[string]interface{}{
		"tasks": map[string]interface{}{
			"t1": map[string]interface{}{"title": "A"},
		},
	})

	fwd, inv := s.Produce(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	})
	require.NotEmpty(t, fwd)
	require.NotEmpty(t, inv)

	got := s.Read()
	title := got["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"]
	assert.Equal(t, "B", title)
}

func TestMemory_IdentityDistinctFromContent(t *testing.T) {
	a := New(map[string]interface{}{"x": 1})
	b := New(map[string]interface{}{"x": 1})
	assert.NotSame(t, a, b, "stores with equal content are still distinct identities")
}

func TestMemory_WriteReplacesWhole(t *testing.T) {
	s := New(map[string]interface{}{"x": 1})
	s.Write(map[string]interface{}{"y": 2})
	got := s.Read()
	_, hasX := got["x"]
	assert.False(t, hasX)
	assert.Equal(t, 2, got["y"])
}
