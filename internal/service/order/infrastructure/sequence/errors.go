package sequence

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrStoreCorrupt = errors.New("sequence store corrupt")
	ErrLockTimeout  = errors.New("sequence store lock timeout")
	ErrExhausted    = errors.New("sequence store exhausted")
)

// StoreCorruptError 表示持久化的计数无法解析。不得回退为 0，需要人工修复。
type StoreCorruptError struct {
	Path    string
	Content string
	Err     error
}

func (e *StoreCorruptError) Error() string {
	return fmt.Sprintf("%v: %s holds %q: %v", ErrStoreCorrupt, e.Path, e.Content, e.Err)
}

func (e *StoreCorruptError) Unwrap() []error { return []error{ErrStoreCorrupt, e.Err} }

func (e *StoreCorruptError) Fault() bool { return true }

// LockTimeoutError 表示在限定时间内没有拿到锁，调用方可以退避后重试。
type LockTimeoutError struct {
	Path   string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%v: %s after %v", ErrLockTimeout, e.Path, e.Waited)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

func (e *LockTimeoutError) Fault() bool { return true }

// Temporary 标记为可重试
func (e *LockTimeoutError) Temporary() bool { return true }

// ExhaustedError 表示计数已到 int64 上限，再发号会回绕
type ExhaustedError struct {
	Path string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v: %s reached %d", ErrExhausted, e.Path, int64(math.MaxInt64))
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

func (e *ExhaustedError) Fault() bool { return true }
