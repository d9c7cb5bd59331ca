package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"IBSCare-AI/internal/api"
	"IBSCare-AI/internal/reminder"
	"IBSCare-AI/internal/storage/sqlstore"
	"IBSCare-AI/pkg/logger"
)

// version 在构建时通过 -ldflags 注入。
var version = "dev"

// main 是 IBS Care 后端守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ibscared 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "ibscared",
		Short:         "IBS Care AI backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("IBSCARE_CONFIG"), "配置文件路径（yaml 或 json）")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "启动 API 服务、提醒调度器与邮件任务处理器",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "执行数据库迁移后退出",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrate(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "remind",
			Short: "执行一次提醒扫描并发送队列中的邮件",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return remind(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "打印版本号",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func serve(ctx context.Context, configPath string) error {
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(a.cfg.Server.Address, api.Dependencies{
		Auth:        a.auth,
		Logs:        a.logs,
		Chat:        a.chat,
		Assessments: a.assessments,
		Reminders:   a.reminders,
	},
		api.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		api.WithMetrics(a.httpMetrics, a.registry),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	// 邮件处理器异常只记录日志，不影响 API 服务。
	g.Go(func() error {
		if err := a.processor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("邮件任务处理器异常退出", logger.Err(err))
		}
		return nil
	})
	if a.cfg.Reminder.Enabled {
		scheduler := reminder.NewScheduler(a.docs, a.logs, a.queue, reminder.WithInterval(a.cfg.Reminder.Interval()))
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.L().Info("ibscared 已退出")
	return nil
}

func migrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == "memory" {
		logger.L().Info("内存存储无需迁移")
		return nil
	}
	s, err := sqlstore.Connect(ctx, sqlConfig(cfg))
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	logger.L().Info("数据库迁移完成", slog.String("driver", cfg.Storage.Driver))
	return nil
}

// remind 执行一次扫描。内存队列会被立即清空，其他驱动交由常驻处理器消费。
func remind(ctx context.Context, configPath string) error {
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := reminder.NewScheduler(a.docs, a.logs, a.queue)
	sent, err := scheduler.Sweep(ctx, time.Now())
	if err != nil {
		return err
	}
	processed := 0
	if a.memoryQueue != nil {
		processed = a.memoryQueue.Drain(ctx, a.processor.Handle)
	}
	logger.L().Info("提醒扫描完成", slog.Int("queued", sent), slog.Int("processed", processed))
	return nil
}
