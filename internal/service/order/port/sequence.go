package port

import "context"

// IDGenerator 是订单号发号器的出站端口。
// 实现必须保证在并发（包括跨进程）调用下严格递增且不重复。
type IDGenerator interface {
	NextID(ctx context.Context) (int64, error)
}
