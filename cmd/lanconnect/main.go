// Package main 提供 lanconnect 守护进程入口
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	lanconnect "github.com/dep2p/go-lanconnect"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var log = logger.Logger("cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 优先级：命令行参数 > 环境变量（LANCONNECT_*）> 配置文件 > 默认值
var (
	configFile  = flag.String("config", "", "配置文件路径（json/yaml/toml）")
	preset      = flag.String("preset", "", "预设配置 (desktop/test)")
	deviceName  = flag.String("name", "", "设备名称")
	deviceID    = flag.String("id", "", "设备 ID（默认首次启动时生成）")
	dataDir     = flag.String("data-dir", "", "数据目录")
	bindAddr    = flag.String("bind", "", "绑定地址")
	discovery   = flag.Int("port", 0, "UDP 发现端口（0 = 使用配置）")
	static      = flag.String("static", "", "额外单播身份的地址，逗号分隔")
	metricsAddr = flag.String("metrics-addr", "", "/metrics 监听地址（空 = 使用配置）")
	autoAccept  = flag.Bool("auto-accept", false, "自动接受配对请求")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(lanconnect.VersionInfo())
		return nil
	}

	opts, metricsListen, err := buildOptions()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting lanconnect", "version", lanconnect.Version, "commit", lanconnect.GitCommit)
	node, err := lanconnect.New(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = node.Close() }()

	watchNode(node)
	if err := node.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("device %s listening on tcp/%d, discovery %s\n",
		node.LocalDeviceID(), node.TCPPort(), node.DiscoveryAddr())

	if metricsListen != "" && node.MetricsRegistry() != nil {
		srv := serveMetrics(metricsListen, node)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	fmt.Println("shutting down")
	return nil
}

// buildOptions 合并配置文件、环境变量与命令行参数
func buildOptions() ([]lanconnect.Option, string, error) {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return nil, "", err
	}
	opts := []lanconnect.Option{lanconnect.WithConfig(cfg)}

	if *preset != "" {
		opts = append(opts, lanconnect.WithPreset(*preset))
	}
	if *deviceName != "" {
		opts = append(opts, lanconnect.WithDeviceName(*deviceName))
	}
	if *deviceID != "" {
		opts = append(opts, lanconnect.WithDeviceID(*deviceID))
	}
	if *dataDir != "" {
		opts = append(opts, lanconnect.WithDataDir(*dataDir))
	}
	if *bindAddr != "" {
		opts = append(opts, lanconnect.WithBindAddress(*bindAddr))
	}
	if *discovery != 0 {
		opts = append(opts, lanconnect.WithDiscoveryPort(*discovery))
	}
	if *static != "" {
		opts = append(opts, lanconnect.WithStaticAddresses(splitAndTrim(*static, ",")...))
	}

	listen := cfg.Metrics.ListenAddress
	if *metricsAddr != "" {
		listen = *metricsAddr
		opts = append(opts, lanconnect.WithMetrics(true))
	}
	return opts, listen, nil
}

// watchNode 记录设备与配对事件；按需自动接受配对
func watchNode(node *lanconnect.Node) {
	node.AddDeviceListChangedListener("cmd", func() {
		for _, d := range node.Devices() {
			log.Info("device",
				"deviceId", d.Info.ID,
				"name", d.Info.Name,
				"reachable", d.IsReachable(),
				"pair", d.PairState.String())
		}
	})
	node.AddPairingStateListener("cmd", func(id string, s types.PairState, reason string) {
		log.Info("pairing state changed", "deviceId", id, "state", s.String(), "reason", reason)
		if s == types.PairStateRequestedByPeer && *autoAccept {
			if err := node.AcceptPairing(id); err != nil {
				log.Warn("auto accept failed", "deviceId", id, "err", err)
			}
		}
	})
	node.SubscribePackets("cmd", func(id string, p *packet.Packet) {
		log.Info("packet received", "deviceId", id, "type", p.Type)
	})
}

func serveMetrics(addr string, node *lanconnect.Node) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.MetricsRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	log.Info("metrics server listening", "addr", addr)
	return srv
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
