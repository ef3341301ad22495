package badger

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
)

// testEngine 创建内存模式测试引擎
func testEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := New(engine.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_PutGetDelete(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	has, err := e.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, e.Delete([]byte("k")))
	_, err = e.Get([]byte("k"))
	assert.ErrorIs(t, err, engine.ErrNotFound)

	has, err = e.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, has)

	// 删除不存在的键是幂等的
	assert.NoError(t, e.Delete([]byte("k")))
}

func TestEngine_EmptyKey(t *testing.T) {
	e := testEngine(t)

	_, err := e.Get(nil)
	assert.ErrorIs(t, err, engine.ErrEmptyKey)
	assert.ErrorIs(t, e.Put(nil, []byte("v")), engine.ErrEmptyKey)
	assert.ErrorIs(t, e.Delete(nil), engine.ErrEmptyKey)
}

func TestEngine_Iterate(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.Put([]byte("p/b"), []byte("2")))
	require.NoError(t, e.Put([]byte("p/a"), []byte("1")))
	require.NoError(t, e.Put([]byte("q/c"), []byte("3")))

	var keys []string
	err := e.Iterate([]byte("p/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a", "p/b"}, keys)

	stop := errors.New("stop")
	count := 0
	err = e.Iterate([]byte("p/"), func(_, _ []byte) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestEngine_Closed(t *testing.T) {
	e, err := New(engine.InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Get([]byte("k"))
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.ErrorIs(t, e.Put([]byte("k"), nil), engine.ErrClosed)
}

func TestEngine_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	e, err := New(engine.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Close())

	e, err = New(engine.DefaultConfig(dir))
	require.NoError(t, err)
	defer e.Close()

	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestEngine_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)

	_, err = New(&engine.Config{})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestEngine_Concurrent(t *testing.T) {
	e := testEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte{'k', byte('0' + i)}
			assert.NoError(t, e.Put(key, key))
			_, err := e.Get(key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
