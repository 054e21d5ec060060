package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vidcache/vidcache/internal/config"
	"github.com/vidcache/vidcache/internal/fetch"
	"github.com/vidcache/vidcache/internal/handle"
	"github.com/vidcache/vidcache/internal/loader"
	"github.com/vidcache/vidcache/internal/logging"
	"github.com/vidcache/vidcache/internal/metrics"
	"github.com/vidcache/vidcache/internal/server"
	"github.com/vidcache/vidcache/internal/server/routes"
	"github.com/vidcache/vidcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 15 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["store"] = cfg.BackendSummary()
		fields["origin"] = cfg.Fetch.OriginBaseURL
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx := context.Background()

	// 启动顺序：配置 → 共享存储 → 回源客户端/句柄表 → 播放器注册表 → Fiber server。
	// 存储只建立客户端，不可达时服务仍然启动并降级为直连播放。
	store, err := server.NewStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化存储失败: %v\n", err)
		return 1
	}
	defer server.CloseStore(store)

	if _, err := store.Open(ctx); err != nil {
		logger.WithFields(logging.BaseFields("store_probe", opts.configPath)).
			WithError(err).Warn("store_unavailable_at_startup")
	}

	m := metrics.New()
	fetcher, err := fetch.New(fetch.Options{
		HTTPClient:    fetch.NewHTTPClient(cfg),
		OriginBaseURL: cfg.Fetch.OriginBaseURL,
		MaxBlobSize:   cfg.Fetch.MaxBlobSize,
		Metrics:       m,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化回源客户端失败: %v\n", err)
		return 1
	}
	handles := handle.NewRegistry(cfg.HandleBaseURL())
	players := server.NewPlayerRegistry(loader.Options{
		Store:       store,
		Fetcher:     fetcher,
		Handles:     handles,
		Logger:      logger,
		Metrics:     m,
		FillTimeout: cfg.Fetch.FillTimeout.DurationValue(),
	})

	fields := logging.BaseFields("startup", opts.configPath)
	fields["store"] = cfg.BackendSummary()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["handle_base_url"] = cfg.HandleBaseURL()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	appOpts := server.AppOptions{
		Logger:     logger,
		Players:    players,
		Handles:    handles,
		Store:      store,
		Metrics:    m,
		ListenPort: cfg.Global.ListenPort,
	}
	if err := startHTTPServer(appOpts, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("vidcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 VIDCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("VIDCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}

// startHTTPServer 阻塞直到收到 SIGINT/SIGTERM；退出前卸载全部播放器并等待后台填充写完。
func startHTTPServer(opts server.AppOptions, logger *logrus.Logger) error {
	app, err := server.NewApp(opts)
	if err != nil {
		return err
	}
	routes.RegisterAll(app, opts)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   opts.ListenPort,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", opts.ListenPort))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		opts.Players.Close()
		opts.Players.Wait()
		return err
	case sig := <-quit:
		logger.WithFields(logrus.Fields{"action": "shutdown", "signal": sig.String()}).Info("收到退出信号")
	}

	shutdownErr := app.ShutdownWithTimeout(shutdownTimeout)
	opts.Players.Close()
	opts.Players.Wait()
	if shutdownErr != nil && !errors.Is(shutdownErr, context.DeadlineExceeded) {
		return shutdownErr
	}
	logger.WithField("action", "shutdown").Info("服务已停止")
	return nil
}
