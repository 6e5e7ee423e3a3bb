package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/hub"
)

const PickerCommandTopic = "order-picker-commands"

// PickerCommandConsumer 是一个驱动适配器：监听 Kafka 上的拣货指令并驱动 Hub。
type PickerCommandConsumer struct {
	reader     mq.MessageReader
	hub        *hub.Hub
	deadLetter *DeadLetterPublisher
	wg         sync.WaitGroup
}

// NewPickerCommandConsumer 创建一个新的 Kafka 消费者适配器。
func NewPickerCommandConsumer(reader mq.MessageReader, h *hub.Hub) *PickerCommandConsumer {
	return &PickerCommandConsumer{reader: reader, hub: h}
}

// WithDeadLetter 让被拒绝的指令转发到死信主题
func (c *PickerCommandConsumer) WithDeadLetter(p *DeadLetterPublisher) *PickerCommandConsumer {
	c.deadLetter = p
	return c
}

// Run 持续消费直到 ctx 结束。这是一个长期运行的方法。
func (c *PickerCommandConsumer) Run(ctx context.Context) error {
	c.wg.Add(1)
	defer c.wg.Done()
	logger.Ctx(ctx).Info().Str("topic", PickerCommandTopic).Msg("picker command consumer started")

	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交 offset
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("picker command consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not read picker command, retrying")
			select {
			case <-time.After(time.Second): // 避免快速失败循环
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			// 只有 Hub 已关闭时才会走到这里，不提交 offset，交给下一个实例处理
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit picker command")
		}
	}
}

// Stop 关闭 reader 并等待消费循环退出
func (c *PickerCommandConsumer) Stop() error {
	err := c.reader.Close()
	c.wg.Wait()
	return err
}

// processMessage 反序列化指令并推进订单状态。
// 业务拒绝（未知订单、非法流转、坏消息）记录后照常提交，重试没有意义。
func (c *PickerCommandConsumer) processMessage(parentCtx context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "kafka.PickerCommand", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var cmd PickerCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Int64("offset", msg.Offset).Msg("dropping malformed picker command")
		c.reject(ctx, msg, err)
		return nil
	}
	span.SetAttributes(attribute.Int64("order.id", cmd.OrderID), attribute.String("order.to", cmd.State))

	state, err := applyTransition(ctx, c.hub, cmd.OrderID, cmd.State)
	switch {
	case err == nil:
		logger.Ctx(ctx).Info().Int64("order", cmd.OrderID).Str("state", state.String()).Msg("picker command applied")
		return nil
	case errors.Is(err, hub.ErrHubClosed):
		return err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "picker command rejected")
		logger.Ctx(ctx).Warn().Err(err).Int64("order", cmd.OrderID).Bool("fault", domain.IsFault(err)).
			Msg("picker command rejected")
		c.reject(ctx, msg, err)
		return nil
	}
}

func (c *PickerCommandConsumer) reject(ctx context.Context, msg kafka.Message, cause error) {
	if c.deadLetter != nil {
		c.deadLetter.Publish(ctx, msg, cause)
	}
}
