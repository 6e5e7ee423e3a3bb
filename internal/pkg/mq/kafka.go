// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// 死信消息头，记录消息的来源和被拒绝的原因
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderErrorMessage      = "x-error-message"
)

// DeadLetterTopic 返回主题对应的死信主题
func DeadLetterTopic(topic string) string { return topic + ".dlt" }

// MessageWriter 是 *kafka.Writer 的最小子集，测试里可以替换
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageReader 是 *kafka.Reader 的最小子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 创建写入指定主题的 writer。
// 按 key 哈希分区，同一个 key（订单号）的消息保持顺序。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaReader 创建消费组 reader，手动提交 offset
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// KafkaHeaderCarrier 让 Kafka 消息头满足 propagation.TextMapCarrier
type KafkaHeaderCarrier []kafka.Header

func (c KafkaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set 对切片值无效，注入请使用 InjectTraceContext
func (c KafkaHeaderCarrier) Set(string, string) {}

func (c KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}

type headerWriter struct {
	headers *[]kafka.Header
}

func (w headerWriter) Get(key string) string { return KafkaHeaderCarrier(*w.headers).Get(key) }

func (w headerWriter) Set(key, value string) {
	for i, h := range *w.headers {
		if h.Key == key {
			(*w.headers)[i].Value = []byte(value)
			return
		}
	}
	*w.headers = append(*w.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (w headerWriter) Keys() []string { return KafkaHeaderCarrier(*w.headers).Keys() }

// InjectTraceContext 把当前链路信息写入消息头
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	otel.GetTextMapPropagator().Inject(ctx, headerWriter{headers: headers})
}

// ExtractTraceContext 从消息头恢复链路信息
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, KafkaHeaderCarrier(headers))
}

// ProduceMessage 写入一条消息，自动注入链路信息
func ProduceMessage(ctx context.Context, w MessageWriter, key, value []byte) error {
	msg := kafka.Message{Key: key, Value: value, Time: time.Now()}
	InjectTraceContext(ctx, &msg.Headers)
	return w.WriteMessages(ctx, msg)
}
