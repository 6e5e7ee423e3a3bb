// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/nacos"
	"storefront/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

type AppCtx struct {
	Ctx    context.Context // 收到退出信号后取消
	Mux    *http.ServeMux
	Config Config
	group  *errgroup.Group
}

// Go 启动一个随服务一起运行的后台任务（例如 Kafka 消费者）。任务返回错误会触发整个服务关停。
func (a AppCtx) Go(fn func(ctx context.Context) error) {
	a.group.Go(func() error { return fn(a.Ctx) })
}

// AppInfo 包含了启动一个服务所需的特定信息。
type AppInfo struct {
	ServiceName string
	Config      Config
	// RegisterHandlers 注册 HTTP 路由和后台任务，返回的清理函数在 HTTP 服务关闭后按逆序执行
	RegisterHandlers func(appCtx AppCtx) (cleanup func(ctx context.Context), err error)
}

// StartService 封装了服务的通用启动和优雅关停逻辑，阻塞直到收到退出信号或某个后台任务失败。
func StartService(info AppInfo) error {
	cfg := info.Config
	logger.Init(info.ServiceName, cfg.App.LogLevel, cfg.App.Pretty)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, gctx := errgroup.WithContext(ctx)

	// 2. 业务路由和后台任务
	mux := http.NewServeMux()
	var cleanup func(context.Context)
	if info.RegisterHandlers != nil {
		cleanup, err = info.RegisterHandlers(AppCtx{Ctx: gctx, Mux: mux, Config: cfg, group: group})
		if err != nil {
			_ = tp.Shutdown(context.Background())
			return err
		}
	}

	// 3. HTTP Server
	server := &http.Server{Addr: ":" + strconv.Itoa(cfg.App.Port), Handler: mux}
	group.Go(func() error {
		logger.L().Info().Str("service", info.ServiceName).Int("port", cfg.App.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 4. 可选的服务注册
	registration := registerNacos(info.ServiceName, cfg)

	// 5. 优雅关停
	group.Go(func() error {
		<-gctx.Done()
		logger.L().Info().Str("service", info.ServiceName).Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 按启动的逆序清理
		registration.deregister()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down http server")
		}
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("error shutting down tracer provider")
		}
		return nil
	})

	err = group.Wait()
	if err != nil {
		logger.L().Error().Err(err).Str("service", info.ServiceName).Msg("service stopped with error")
		return err
	}
	logger.L().Info().Str("service", info.ServiceName).Msg("service gracefully shut down")
	return nil
}

type nacosRegistration struct {
	client  *nacos.Client
	service string
	ip      string
	port    int
}

// registerNacos 在配置了 nacos 地址时注册服务。注册失败只记录日志，服务照常提供。
func registerNacos(service string, cfg Config) *nacosRegistration {
	if cfg.Infra.Nacos.Addrs == "" {
		return nil
	}
	client, err := nacos.NewNacosClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		logger.L().Error().Err(err).Msg("failed to initialize nacos client")
		return nil
	}
	ip, err := outboundIP()
	if err != nil {
		logger.L().Error().Err(err).Msg("failed to get outbound IP address")
		client.Close()
		return nil
	}
	hostname, _ := os.Hostname()
	if err := client.RegisterServiceInstance(service, ip, cfg.App.Port, map[string]string{"host": hostname}); err != nil {
		logger.L().Error().Err(err).Msg("failed to register service with nacos")
		client.Close()
		return nil
	}
	return &nacosRegistration{client: client, service: service, ip: ip, port: cfg.App.Port}
}

func (r *nacosRegistration) deregister() {
	if r == nil {
		return
	}
	if err := r.client.DeregisterServiceInstance(r.service, r.ip, r.port); err != nil {
		logger.L().Error().Err(err).Msg("error deregistering from nacos")
	}
	r.client.Close()
}

// outboundIP 返回本机访问外网时使用的 IP，UDP Dial 不会真正发包
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
