package sequence_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure/sequence"
)

func newStore(t *testing.T, path string, opts ...sequence.Option) *sequence.FileStore {
	t.Helper()
	s, err := sequence.NewFileStore(path, opts...)
	require.NoError(t, err)
	return s
}

func TestFileStore_MissingFileStartsAtOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "order-id")
	s := newStore(t, path)

	id, err := s.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestFileStore_ContinuesFromPersistedValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order-id")
	require.NoError(t, os.WriteFile(path, []byte("7"), 0o644))

	s := newStore(t, path)
	id, err := s.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)

	// 新实例（模拟重启）接着上次的值发号
	restarted := newStore(t, path)
	id, err = restarted.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	current, err := restarted.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), current)
}

func TestFileStore_ToleratesTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order-id")
	require.NoError(t, os.WriteFile(path, []byte("41\n"), 0o644))

	id, err := newStore(t, path).NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestFileStore_CorruptContent(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"garbage":  "12ab",
		"negative": "-3",
		"signed":   "+5",
		"overflow": "9223372036854775808",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "order-id")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := newStore(t, path).NextID(context.Background())
			require.Error(t, err)

			var corrupt *sequence.StoreCorruptError
			require.ErrorAs(t, err, &corrupt)
			assert.ErrorIs(t, err, sequence.ErrStoreCorrupt)
			assert.True(t, domain.IsFault(err))

			// 文件保持原样
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, content, string(data))
		})
	}
}

func TestFileStore_ConcurrentIDsAreUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order-id")
	// 多个实例指向同一个文件，相当于多个进程
	stores := []*sequence.FileStore{newStore(t, path), newStore(t, path), newStore(t, path)}

	const perWorker = 20
	const workers = 12

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(s *sequence.FileStore) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := s.NextID(context.Background())
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
				mu.Unlock()
			}
		}(stores[w%len(stores)])
	}
	wg.Wait()

	total := workers * perWorker
	require.Len(t, seen, total)
	for id := int64(1); id <= int64(total); id++ {
		assert.True(t, seen[id], "missing id %d", id)
	}
}

func TestFileStore_LockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order-id")
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	s := newStore(t, path, sequence.WithLockTimeout(50*time.Millisecond))
	start := time.Now()
	_, err = s.NextID(context.Background())
	require.Error(t, err)

	var timeout *sequence.LockTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, sequence.ErrLockTimeout)
	assert.True(t, domain.IsFault(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	// 计数文件未被创建
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, holder.Unlock())
	id, err := s.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestFileStore_CancelledContext(t *testing.T) {
	s := newStore(t, filepath.Join(t.TempDir(), "order-id"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.NextID(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var timeout *sequence.LockTimeoutError
	assert.False(t, errors.As(err, &timeout))
}

type stubLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
}

func (l *stubLocker) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks++
	return nil
}

func (l *stubLocker) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	return nil
}

func TestFileStore_CustomLocker(t *testing.T) {
	locker := &stubLocker{}
	s := newStore(t, filepath.Join(t.TempDir(), "order-id"), sequence.WithLocker(locker))

	for i := 1; i <= 3; i++ {
		id, err := s.NextID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(i), id)
	}
	assert.Equal(t, 3, locker.locks)
	assert.Equal(t, 3, locker.unlocks)
}

func TestFileStore_ExhaustedCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order-id")
	require.NoError(t, os.WriteFile(path, []byte("9223372036854775807"), 0o644))

	id, err := newStore(t, path).NextID(context.Background())
	require.Error(t, err)
	assert.Zero(t, id)
	assert.ErrorIs(t, err, sequence.ErrExhausted)
	assert.True(t, domain.IsFault(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "9223372036854775807", string(data))
}
