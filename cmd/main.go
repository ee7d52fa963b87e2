package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"btc-market-feed/pkg/config"
	"btc-market-feed/pkg/logger"
	"btc-market-feed/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configDir string
	noColor   bool
	logLevel  string
)

// rootCmd 根命令，子命令共享配置加载与日志初始化
var rootCmd = &cobra.Command{
	Use:           "btcfeed",
	Short:         "BTC market data with multi-source fallback and technical indicators",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "配置目录，默认依次查找 ./configs 和当前目录")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "关闭彩色输出")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "覆盖配置中的日志级别")

	rootCmd.AddCommand(snapshotCmd, seriesCmd, multiCmd, streamCmd, archivedCmd, modelCmd, watchCmd)
}

func loadConfig() (*types.Config, error) {
	var (
		cfg *types.Config
		err error
	)
	if configDir != "" {
		cfg, err = config.LoadFrom(viper.New(), configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// withApp 加载配置、初始化日志并组装应用，run 返回后释放资源
func withApp(run func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	syncLogger, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer syncLogger()

	app, err := NewApp(cfg, !noColor)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, app)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "❌", err)
		}
		os.Exit(1)
	}
}
