package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planebattle/config"
	"planebattle/events"
	"planebattle/matchstore"
	"planebattle/server"
)

// 对战中继入口：启动 HTTP + WebSocket 服务、匹配队列清理与可选的 Redis/RabbitMQ
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :8080")
	flag.Parse()

	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	opts := server.Options{
		PendingTTL:    cfg.PendingTTL,
		SweepInterval: cfg.SweepInterval,
		PongWait:      cfg.PongWait,
	}

	// 未配置 Redis 时对局记录只保存在内存
	if cfg.RedisAddr != "" {
		rdb, err := matchstore.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			server.Log.Fatalw("redis unavailable", "addr", cfg.RedisAddr, "error", err)
		}
		defer rdb.Close()
		opts.Store = matchstore.NewRedis(rdb, cfg.MatchTTL)
		server.Log.Infow("match store: redis", "addr", cfg.RedisAddr, "ttl", cfg.MatchTTL.String())
	}

	if cfg.RabbitMQURL != "" {
		conn, ch, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			server.Log.Fatalw("rabbitmq unavailable", "error", err)
		}
		defer conn.Close()
		defer ch.Close()
		pub, err := events.NewPublisher(ch)
		if err != nil {
			server.Log.Fatalw("could not declare exchanges", "error", err)
		}
		opts.Publisher = pub
		server.Log.Info("battle events: rabbitmq")
	}

	hub := server.NewHub(opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	hub.StartSweeper(ctx)

	mux := http.NewServeMux()
	hub.Routes(mux)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		server.Log.Infof("plane battle relay listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	<-ctx.Done()
	server.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		server.Log.Errorw("shutdown", "error", err)
		os.Exit(1)
	}
}
