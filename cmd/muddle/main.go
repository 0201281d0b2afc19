// Package main 提供 muddle 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-muddle"
	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.cmd")

// stringList 可重复的字符串参数
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var (
	configFile  = flag.String("config", "", "配置文件路径（JSON）")
	keyFile     = flag.String("key", "", "私钥 PEM 文件，不存在时生成")
	preset      = flag.String("preset", "", "预设配置 (relay/leaf/test)")
	metricsAddr = flag.String("metrics", "", "/metrics HTTP 监听地址，如 127.0.0.1:9100")
	pingTarget  = flag.String("ping", "", "启动后周期性 ping 的节点地址（Base58）")
	pingEvery   = flag.Duration("ping-interval", time.Second, "ping 间隔")
	logLevel    = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	showVersion = flag.Bool("version", false, "显示版本信息")

	listen stringList
	peers  stringList
)

func init() {
	flag.Var(&listen, "listen", "监听 URI，可重复，如 tcp://0.0.0.0:8100")
	flag.Var(&peers, "peer", "持久对端 URI，可重复")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(muddle.VersionInfo())
		return nil
	}

	if *logLevel != "" {
		level, ok := logger.ParseLevel(*logLevel)
		if !ok {
			return fmt.Errorf("未知日志级别: %s", *logLevel)
		}
		logger.SetGlobalLevel(level)
	}

	var target types.Address
	if *pingTarget != "" {
		var err error
		if target, err = types.ParseAddress(*pingTarget); err != nil {
			return fmt.Errorf("ping 目标: %w", err)
		}
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := muddle.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	printNodeInfo(node)

	g, ctx := errgroup.WithContext(ctx)
	addr := *metricsAddr
	if addr == "" {
		addr = node.Config().Metrics.ListenAddr
	}
	if addr != "" {
		if err := serveMetrics(ctx, g, node, addr); err != nil {
			return err
		}
	}
	if !target.IsZero() {
		g.Go(func() error {
			pingLoop(ctx, node, target, *pingEvery)
			return nil
		})
	}

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err = g.Wait()

	fmt.Println("\n正在关闭节点...")
	return err
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：命令行参数 > 预设 > 配置文件 > 默认值
func buildOptions() ([]muddle.Option, error) {
	var opts []muddle.Option

	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		opts = append(opts, muddle.WithConfig(cfg))
	}
	if *preset != "" {
		opts = append(opts, muddle.WithPreset(*preset))
	}
	if len(listen) > 0 {
		opts = append(opts, muddle.WithListen(listen...))
	}
	if len(peers) > 0 {
		opts = append(opts, muddle.WithPeers(peers...))
	}
	if *keyFile != "" {
		opts = append(opts, muddle.WithKeyFile(*keyFile))
	}
	return opts, nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, node *muddle.Node, addr string) error {
	handler, err := node.MetricsHandler()
	if err != nil {
		return fmt.Errorf("指标: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info("指标服务已启动", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("指标服务: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

func pingLoop(ctx context.Context, node *muddle.Node, target types.Address, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		seq++
		callCtx, cancel := context.WithTimeout(ctx, every*5)
		rtt, err := node.Ping(callCtx, target, []byte(fmt.Sprintf("ping %d", seq)))
		cancel()
		if err != nil {
			fmt.Printf("ping %s seq=%d 失败: %v\n", target.ShortString(), seq, err)
			continue
		}
		fmt.Printf("ping %s seq=%d rtt=%s\n", target.ShortString(), seq, rtt)
	}
}

func printNodeInfo(node *muddle.Node) {
	fmt.Println()
	fmt.Println(muddle.VersionInfo())
	fmt.Printf("地址: %s\n", node.Address())
	for _, u := range node.ListenURIs() {
		fmt.Printf("监听: %s\n", u)
	}
	fmt.Println()
}
