package auth

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeySet(t *testing.T) {
	t.Parallel()

	set := NewKeySet(map[string]string{
		"team-alpha": "sk-aaa",
		"team-beta":  "sk-bbb",
	})

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("sk-aaa"))
	assert.True(t, set.Contains("sk-bbb"))
	assert.False(t, set.Contains("team-alpha"), "key names must not validate")
	assert.False(t, set.Contains("sk-zzz"))
}

func TestNewKeySet_DuplicateValues(t *testing.T) {
	t.Parallel()

	// Two names sharing a value collapse to one entry.
	set := NewKeySet(map[string]string{
		"team-alpha": "sk-shared",
		"team-beta":  "sk-shared",
	})

	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contains("sk-shared"))
}

func TestEmptyKeySet(t *testing.T) {
	t.Parallel()

	set := EmptyKeySet()
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Contains(""))
	assert.False(t, set.Contains("sk-aaa"))
}

func TestNewCache_FailsClosed(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	require.NotNil(t, cache.Get())
	assert.Equal(t, 0, cache.Len())
	assert.False(t, cache.Get().Contains("sk-aaa"))
}

func TestCache_Replace(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Replace(NewKeySet(map[string]string{"team-alpha": "sk-aaa"}))

	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Get().Contains("sk-aaa"))

	cache.Replace(NewKeySet(map[string]string{"team-beta": "sk-bbb"}))

	assert.True(t, cache.Get().Contains("sk-bbb"))
	assert.False(t, cache.Get().Contains("sk-aaa"), "old keys must stop validating after replace")
}

func TestCache_ReplaceNil(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Replace(NewKeySet(map[string]string{"team-alpha": "sk-aaa"}))
	cache.Replace(nil)

	assert.Equal(t, 0, cache.Len())
	assert.False(t, cache.Get().Contains("sk-aaa"))
}

func TestCache_SnapshotStableAcrossReplace(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Replace(NewKeySet(map[string]string{"team-alpha": "sk-aaa"}))

	snapshot := cache.Get()
	cache.Replace(NewKeySet(map[string]string{"team-beta": "sk-bbb"}))

	// A snapshot taken before the swap is unaffected by it.
	assert.True(t, snapshot.Contains("sk-aaa"))
	assert.False(t, snapshot.Contains("sk-bbb"))
}

func TestCache_ConcurrentReadersAndReplace(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Replace(NewKeySet(map[string]string{"gen": "sk-gen-0"}))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				set := cache.Get()
				// Every observed snapshot holds exactly one key.
				assert.Equal(t, 1, set.Len())
			}
		}()
	}

	for gen := 1; gen <= 1000; gen++ {
		cache.Replace(NewKeySet(map[string]string{"gen": fmt.Sprintf("sk-gen-%d", gen)}))
	}

	close(stop)
	wg.Wait()

	assert.True(t, cache.Get().Contains("sk-gen-1000"))
}
