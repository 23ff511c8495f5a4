package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CreativeStudio-server/config"
	"CreativeStudio-server/routers"
	"CreativeStudio-server/routers/api"
	"CreativeStudio-server/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 HTTP 服务、队列消费者和 sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(config.AppConfig)
		if err != nil {
			return err
		}
		defer a.Close()
		log := a.log
		g := a.cfg.Generation

		redis := service.RedisOpt(*a.cfg)
		queue := service.NewQueue(redis, service.QueueOptions{
			MaxRetry:    g.QueueMaxRetry,
			TaskTimeout: g.MaxJobRuntime() + 2*time.Minute,
		}, log.Named("queue"))
		defer queue.Close()

		processor := service.NewProcessor(a.reconciler, a.repo, queue, service.ProcessorOptions{
			PollInterval: g.PollInterval(),
			Concurrency:  g.QueueConcurrency,
		}, log.Named("processor"))
		worker, err := processor.Start(redis)
		if err != nil {
			return err
		}
		defer worker.Shutdown()

		// 超过最大运行时间再加三个轮询周期仍未被处理的 PENDING job 视为丢失
		sweeper := service.NewSweeper(a.repo, queue, g.MaxJobRuntime()+3*g.PollInterval(), log.Named("sweeper"))
		if err := sweeper.Start(g.SweepCron); err != nil {
			return err
		}
		defer sweeper.Stop()

		handler := api.NewHandler(a.repo, a.starter, queue, api.Options{MaxRuntime: g.MaxJobRuntime()}, log.Named("api"))
		srv := &http.Server{
			Addr:    a.cfg.Server.Port,
			Handler: routers.InitRouter(handler),
		}
		go func() {
			log.Info("server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("启动服务器失败", zap.Error(err))
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("收到关闭信号，正在关闭服务器...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("服务器关闭失败", zap.Error(err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
