// internal/service/order/infrastructure/sequence/file_store.go
package sequence

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
)

const (
	DefaultLockTimeout = 5 * time.Second
	defaultRetryDelay  = 5 * time.Millisecond
)

// Locker 是跨进程的互斥锁。Lock 必须在 ctx 结束时放弃等待。
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// FileStore 是基于单个文本文件的发号器。
// 文件内容就是最后发放的订单号（十进制 ASCII）。文件不存在时视为 0，因此第一个订单号是 1。
//
// 并发控制分两层：进程内用容量为 1 的信号量串行化 goroutine，
// 跨进程用文件锁（默认 <path>.lock 上的 flock，也可以换成 ZooKeeper 分布式锁）。
// 两层等待共用同一个截止时间，整个“读-加一-写”周期都在锁内完成。
type FileStore struct {
	path        string
	lockTimeout time.Duration
	locker      Locker
	sem         *semaphore.Weighted
}

type Option func(*FileStore)

// WithLockTimeout 设置获取锁的最长等待时间
func WithLockTimeout(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLocker 替换默认的文件锁（例如多机共享存储时使用 ZooKeeper）
func WithLocker(l Locker) Option {
	return func(s *FileStore) { s.locker = l }
}

// NewFileStore 创建发号器，必要时创建父目录。不会创建或修改计数文件本身。
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("sequence: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "sequence: create directory for %s", path)
	}

	s := &FileStore{
		path:        path,
		lockTimeout: DefaultLockTimeout,
		sem:         semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = NewFileLocker(path+".lock", defaultRetryDelay)
	}
	return s, nil
}

// Path 返回计数文件路径
func (s *FileStore) Path() string { return s.path }

// NextID 发放下一个订单号
func (s *FileStore) NextID(ctx context.Context) (int64, error) {
	var next int64
	err := s.withLock(ctx, func() error {
		current, err := s.read()
		if err != nil {
			return err
		}
		if current == math.MaxInt64 {
			metrics.SequenceErrors.WithLabelValues("exhausted").Inc()
			logger.Ctx(ctx).Error().Bool("critical", true).Str("path", s.path).Msg("sequence store exhausted")
			return &ExhaustedError{Path: s.path}
		}
		next = current + 1
		return s.write(next)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Current 在锁内读取最后发放的订单号，不发放新号（文件不存在时初始化为 0）
func (s *FileStore) Current(ctx context.Context) (int64, error) {
	var current int64
	err := s.withLock(ctx, func() error {
		var err error
		current, err = s.read()
		return err
	})
	return current, err
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	start := time.Now()
	if err := s.sem.Acquire(lockCtx, 1); err != nil {
		return s.lockFailed(ctx, start, err)
	}
	defer s.sem.Release(1)

	if err := s.locker.Lock(lockCtx); err != nil {
		return s.lockFailed(ctx, start, err)
	}
	metrics.SequenceLockWait.Observe(time.Since(start).Seconds())

	defer func() {
		if err := s.locker.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("path", s.path).Msg("failed to release sequence lock")
		}
	}()

	err := fn()
	var corrupt *StoreCorruptError
	if errors.As(err, &corrupt) {
		metrics.SequenceErrors.WithLabelValues("corrupt").Inc()
		logger.Ctx(ctx).Error().Bool("critical", true).Str("path", s.path).Str("content", corrupt.Content).
			Msg("sequence store is corrupt, refusing to issue order ids")
	}
	return err
}

// lockFailed 区分调用方主动取消和等待超时
func (s *FileStore) lockFailed(ctx context.Context, start time.Time, cause error) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "sequence: lock wait cancelled")
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		metrics.SequenceErrors.WithLabelValues("lock_timeout").Inc()
		return &LockTimeoutError{Path: s.path, Waited: time.Since(start)}
	}
	metrics.SequenceErrors.WithLabelValues("lock").Inc()
	return errors.Wrapf(cause, "sequence: lock %s", s.path)
}

// read 读取当前计数；文件不存在时先初始化为 0。
// 内容只能是十进制数字（允许首尾空白），符号位和溢出都算损坏。
func (s *FileStore) read() (int64, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.write(0); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "sequence: read %s", s.path)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, &StoreCorruptError{Path: s.path, Content: string(data), Err: errors.New("not a decimal counter")}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &StoreCorruptError{Path: s.path, Content: string(data), Err: err}
	}
	return value, nil
}

// write 用新值整体替换文件内容：写临时文件、fsync、再 rename，
// 任何时刻读到的都是完整的旧值或完整的新值。
func (s *FileStore) write(value int64) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "sequence: create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename 成功后这里是空操作

	if _, err := tmp.WriteString(strconv.FormatInt(value, 10)); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sequence: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sequence: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "sequence: close %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "sequence: replace %s", s.path)
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// FileLocker 基于 flock 的跨进程锁
type FileLocker struct {
	fl         *flock.Flock
	retryDelay time.Duration
}

func NewFileLocker(path string, retryDelay time.Duration) *FileLocker {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &FileLocker{fl: flock.New(path), retryDelay: retryDelay}
}

func (l *FileLocker) Lock(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		return err
	}
	if !ok {
		return context.DeadlineExceeded
	}
	return nil
}

func (l *FileLocker) Unlock() error {
	return l.fl.Unlock()
}
