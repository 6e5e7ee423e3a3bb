// internal/service/order/interfaces/dlt_handler.go
package interfaces

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

// DeadLetterPublisher 把无法执行的拣货指令原样转发到死信主题，附带来源和拒绝原因
type DeadLetterPublisher struct {
	writer mq.MessageWriter
}

func NewDeadLetterPublisher(writer mq.MessageWriter) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: writer}
}

// Publish 写入死信主题。写入失败只记录日志，原消息照常提交，不阻塞后续指令。
func (p *DeadLetterPublisher) Publish(ctx context.Context, msg kafka.Message, cause error) {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: mq.HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: mq.HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: mq.HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: mq.HeaderErrorMessage, Value: []byte(cause.Error())},
		),
	}
	logDeadLetter(ctx, dead)

	if err := p.writer.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to publish dead letter")
	}
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Warn().
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("error", headers[mq.HeaderErrorMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("picker command moved to dead letter topic")
}
