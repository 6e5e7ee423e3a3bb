package zookeeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn 是内存版的 ZooKeeper，只实现锁需要的语义
type fakeConn struct {
	mu      sync.Mutex
	seq     int
	nodes   map[string]bool
	watches map[string][]chan zk.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{nodes: map[string]bool{}, watches: map[string][]chan zk.Event{}}
}

func (c *fakeConn) Exists(path string) (bool, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[path], &zk.Stat{}, nil
}

func (c *fakeConn) Create(path string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodes[path] {
		return "", zk.ErrNodeExists
	}
	c.nodes[path] = true
	return path, nil
}

func (c *fakeConn) CreateProtectedEphemeralSequential(path string, _ []byte, _ []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir := path[:strings.LastIndex(path, "/")]
	prefix := path[strings.LastIndex(path, "/")+1:]
	// guid 与序号反向，保证按字符串排序与按序号排序结果不同
	name := fmt.Sprintf("_c_%04d-%s%010d", 9999-c.seq, prefix, c.seq)
	c.seq++
	full := dir + "/" + name
	c.nodes[full] = true
	return full, nil
}

func (c *fakeConn) Children(path string) ([]string, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for n := range c.nodes {
		if strings.HasPrefix(n, path+"/") && !strings.Contains(strings.TrimPrefix(n, path+"/"), "/") {
			out = append(out, strings.TrimPrefix(n, path+"/"))
		}
	}
	return out, &zk.Stat{}, nil
}

func (c *fakeConn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan zk.Event, 1)
	if c.nodes[path] {
		c.watches[path] = append(c.watches[path], ch)
	}
	return c.nodes[path], &zk.Stat{}, ch, nil
}

func (c *fakeConn) Delete(path string, _ int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.nodes[path] {
		return zk.ErrNoNode
	}
	delete(c.nodes, path)
	for _, ch := range c.watches[path] {
		ch <- zk.Event{Type: zk.EventNodeDeleted, Path: path}
	}
	delete(c.watches, path)
	return nil
}

func TestDistributedLock_MutualExclusion(t *testing.T) {
	conn := newFakeConn()

	first, err := NewDistributedLock(conn, "order-sequence")
	require.NoError(t, err)
	second, err := NewDistributedLock(conn, "order-sequence")
	require.NoError(t, err)

	require.NoError(t, first.Lock(context.Background()))

	acquired := make(chan struct{})
	go func() {
		assert.NoError(t, second.Lock(context.Background()))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first still holds it")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Unlock())
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock")
	}
	require.NoError(t, second.Unlock())
}

func TestDistributedLock_ContextTimeoutRemovesNode(t *testing.T) {
	conn := newFakeConn()
	holder, err := NewDistributedLock(conn, "order-sequence")
	require.NoError(t, err)
	waiter, err := NewDistributedLock(conn, "order-sequence")
	require.NoError(t, err)

	require.NoError(t, holder.Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = waiter.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	children, _, _ := conn.Children(lockRoot + "/order-sequence")
	assert.Len(t, children, 1, "waiter must delete its queue node")

	require.NoError(t, holder.Unlock())
	assert.Error(t, holder.Unlock())
}
