package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Bt1QLink/cache"
	"Bt1QLink/config"
	"Bt1QLink/core/link"
	"Bt1QLink/core/plugin"
	"Bt1QLink/db"
	"Bt1QLink/logger"
	"Bt1QLink/repository"
	"Bt1QLink/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bt1qlink",
	Short: "Bt1QLink maintains audio node connections and exposes an admin API.",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

var plugins = plugin.NewRegistry()

// RegisterPlugin 在 Execute 之前挂入插件，随守护进程加载与卸载
func RegisterPlugin(p plugin.Plugin) {
	plugins.Register(p)
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	if err := cache.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()

	opts := []link.ManagerOption{
		link.WithSearchCache(cache.NewSearchCache()),
	}
	if cfg.HistoryEnabled {
		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.CloseGormDB()
		if err := db.MigrateDB(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		opts = append(opts, link.WithHistory(repository.NewGormHistoryRepository(db.GormDB)))
	}

	// 独立进程没有接入聊天网关，语音下发留给嵌入方替换
	sendVoice := func(guildID, channelID string, selfMute, selfDeaf bool) error {
		logger.Warn("no gateway transport attached, dropping voice update",
			logger.String("guild", guildID),
			logger.String("channel", channelID))
		return nil
	}

	mgr, err := link.NewManager(cfg, cache.NewStateCache(), sendVoice, opts...)
	if err != nil {
		log.Fatalf("Failed to create link manager: %v", err)
	}

	if err := plugins.LoadAll(mgr); err != nil {
		log.Fatalf("Failed to load plugins: %v", err)
	}

	mgr.Start()

	var watcher *config.Watcher
	if cfg.NodesFile != "" {
		watcher, err = config.NewWatcher(cfg.NodesFile, mgr.ReloadNodes)
		if err != nil {
			logger.Warn("nodes file watch disabled", logger.ErrorField(err))
		} else {
			defer watcher.Close()
		}
	}

	var adminSrv *server.Server
	if cfg.AdminAddr != "" {
		adminSrv = server.New(cfg, mgr)
		go func() {
			if err := adminSrv.Run(); err != nil {
				logger.Error("admin server failed", logger.ErrorField(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.Warn("admin server shutdown failed", logger.ErrorField(err))
		}
		cancel()
	}
	plugins.UnloadAll(mgr)
	mgr.Shutdown()
}
