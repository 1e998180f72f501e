package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/tree-store/tree-store/internal/config"
	"github.com/tree-store/tree-store/internal/logging"
	"github.com/tree-store/tree-store/internal/server"
	"github.com/tree-store/tree-store/internal/server/routes"
	"github.com/tree-store/tree-store/internal/treecache"
	"github.com/tree-store/tree-store/internal/treesync"
	"github.com/tree-store/tree-store/internal/version"
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
		fields["root_path"] = cfg.Global.RootPath
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 同步器引导 → Fiber server”顺序：先等整棵存储树
	// 物化进缓存，再对外提供读写，保证首批请求不会观察到半成品状态。
	syncer, err := treesync.New(treesync.Options{
		RootPath: cfg.Global.RootPath,
		Cache: treecache.Options{
			TTL:       cfg.Global.CacheTTL.DurationValue(),
			Separator: cfg.Global.CacheSeparator,
		},
	}, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建同步器失败: %v\n", err)
		return 1
	}
	if err := syncer.WaitReady(context.Background()); err != nil {
		fmt.Fprintf(stdErr, "存储树引导失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["root_path"] = cfg.Global.RootPath
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_ttl"] = cfg.Global.CacheTTL.DurationValue().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, syncer, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tree-store", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TREE_STORE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TREE_STORE_CONFIG")
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

func startHTTPServer(cfg *config.Config, syncer *treesync.Synchronizer, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Sync:       syncer,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterNodeRoutes(app, syncer, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
