package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalQueue_PushPop(t *testing.T) {
	q := NewEvalQueue()

	q.Push("a")
	q.Push("b")
	assert.Equal(t, 2, q.Len())

	done := make(chan struct{})
	path, ok := q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "a", path)

	path, ok = q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "b", path)

	assert.Equal(t, 0, q.Len())
}

func TestEvalQueue_Dedup(t *testing.T) {
	q := NewEvalQueue()

	q.Push("Content")
	q.Push("Content")
	q.Push("Content/")

	assert.Equal(t, 1, q.Len())
}

func TestEvalQueue_AncestorAbsorbsDescendant(t *testing.T) {
	q := NewEvalQueue()

	q.PushMany([]string{
		filepath.Join("Content", "Maps"),
		filepath.Join("Content", "Maps", "Sub"),
		"Config",
	})
	assert.Equal(t, 2, q.Len(), "Content/Maps/Sub is covered by Content/Maps")

	q.Push("Content")
	assert.Equal(t, 2, q.Len(), "Content replaces Content/Maps")

	done := make(chan struct{})
	first, _ := q.Pop(done)
	second, _ := q.Pop(done)
	assert.Equal(t, "Config", first)
	assert.Equal(t, "Content", second)
}

func TestEvalQueue_RootAbsorbsEverything(t *testing.T) {
	q := NewEvalQueue()

	q.PushMany([]string{"a", filepath.Join("b", "c")})
	q.Push("")
	q.Push("d")
	assert.Equal(t, 1, q.Len())

	path, ok := q.Pop(make(chan struct{}))
	require.True(t, ok)
	assert.Equal(t, "", path)
}

func TestEvalQueue_SiblingPrefixNotCoalesced(t *testing.T) {
	q := NewEvalQueue()

	q.Push("Content")
	q.Push("ContentExtra")
	assert.Equal(t, 2, q.Len())
}

func TestEvalQueue_PopBlocks(t *testing.T) {
	q := NewEvalQueue()
	done := make(chan struct{})

	result := make(chan string, 1)
	go func() {
		path, ok := q.Pop(done)
		if ok {
			result <- path
		}
	}()

	time.Sleep(50 * time.Millisecond)
	q.Push("late")

	select {
	case got := <-result:
		assert.Equal(t, "late", got)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestEvalQueue_PopDone(t *testing.T) {
	q := NewEvalQueue()
	done := make(chan struct{})
	close(done)

	path, ok := q.Pop(done)
	assert.False(t, ok)
	assert.Equal(t, "", path)
}

func TestParentRel(t *testing.T) {
	assert.Equal(t, "", parentRel("a"))
	assert.Equal(t, "a", parentRel(filepath.Join("a", "b")))
	assert.Equal(t, "", parentRel(""))
}
