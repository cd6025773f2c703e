package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/app"
	"github.com/enhen-x/Quant-A-Share/internal/cache"
	"github.com/enhen-x/Quant-A-Share/internal/config"
	"github.com/enhen-x/Quant-A-Share/internal/handler"
	"github.com/enhen-x/Quant-A-Share/internal/logging"
	"github.com/enhen-x/Quant-A-Share/internal/scheduler"
	"github.com/enhen-x/Quant-A-Share/internal/service"
	"github.com/enhen-x/Quant-A-Share/internal/stockdata"
)

func main() {
	logging.LoadEnvFiles(".env", ".env.local")
	logging.Setup()

	cfg, err := config.Load(os.Getenv("QUANT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.InitRedis(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Redis不可用，使用内存缓存")
	} else if rdb != nil {
		stockdata.SetCacheProvider(rdb)
		defer rdb.Close()
	}

	a := app.New(cfg)
	tasks := service.NewTaskManager(ctx, a.Jobs())

	sched := scheduler.New(ctx, config.GetSchedulerConfig(), a.Calendar)
	if _, err := sched.Register(
		func(ctx context.Context) error { _, err := a.Weekly(ctx); return err },
		func(ctx context.Context) error { _, err := a.Scan(ctx); return err },
	); err != nil {
		log.Fatal().Err(err).Msg("注册定时任务失败")
	}
	sched.Start()
	defer sched.Stop()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	origins := []string{"http://localhost:5173", "http://localhost:3000"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.New(cfg, tasks).Register(r.Group("/api"))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Str("port", port).Str("base_dir", cfg.BaseDir).Msg("服务启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("启动服务失败")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("关闭服务失败")
	}
}
