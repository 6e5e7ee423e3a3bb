// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusError 表示服务端返回了非预期的状态码，Body 保留原始响应便于展示错误信息
type StatusError struct {
	URL    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Status, bytes.TrimSpace(e.Body))
}

// Client 是一个可追踪的HTTP客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient 创建一个新的客户端实例。不设置 Timeout，完全受控于每次请求传入的 context
func NewClient(tracer trace.Tracer, baseURL string) *Client {
	return &Client{
		Tracer: tracer,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		BaseURL: baseURL,
	}
}

// GetJSON 发送 GET 请求并把响应解码到 out
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, http.StatusOK)
}

// PostJSON 发送 JSON 请求体，accepted 中的任意状态码都视为成功并解码响应
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, accepted ...int) error {
	if len(accepted) == 0 {
		accepted = []int{http.StatusOK}
	}
	return c.do(ctx, http.MethodPost, path, body, out, accepted...)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, accepted ...int) error {
	target, err := url.JoinPath(c.BaseURL, path)
	if err != nil {
		return err
	}

	ctx, span := c.Tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", target),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	for _, code := range accepted {
		if resp.StatusCode == code {
			if out == nil || len(data) == 0 {
				return nil
			}
			return json.Unmarshal(data, out)
		}
	}

	err = &StatusError{URL: target, Status: resp.StatusCode, Body: data}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
