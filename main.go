package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"tictacrelay/relay"
)

const version = "1.0.0"

// tictacrelay 入口：serve 作为服务端监听，connect 作为客户端拨号
func main() {
	// .env 可选，不存在时直接使用环境变量
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "tictacrelay",
		Usage:   "peer-to-peer move relay for a two-player grid game",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "listen for peers (server role) and optionally dial more",
				Flags: append(commonFlags(),
					&cli.IntFlag{Name: "port", Value: relay.DefaultPort, Usage: "peer listening port", Sources: cli.EnvVars("RELAY_PORT")},
					&cli.StringSliceFlag{Name: "peer", Usage: "host:port to dial after startup (repeatable)", Sources: cli.EnvVars("RELAY_PEERS")},
				),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					ports := []int{int(cmd.Int("port"))}
					if cmd.Bool("mesh") {
						ports = append(ports, relay.DefaultMeshPort)
					}
					return run(ctx, cmd, ports, cmd.StringSlice("peer"), false)
				},
			},
			{
				Name:      "connect",
				Usage:     "dial a listening peer (client role)",
				ArgsUsage: "HOST",
				Flags: append(commonFlags(),
					&cli.IntFlag{Name: "port", Value: relay.DefaultPort, Usage: "remote peer port", Sources: cli.EnvVars("RELAY_REMOTE_PORT")},
				),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					host := cmd.Args().First()
					if host == "" {
						host = "127.0.0.1"
					}
					var ports []int
					if cmd.Bool("mesh") {
						ports = append(ports, relay.DefaultMeshPort)
					}
					peer := net.JoinHostPort(host, strconv.Itoa(int(cmd.Int("port"))))
					return run(ctx, cmd, ports, []string{peer}, true)
				},
			},
		},
	}
}

// commonFlags 每个子命令各自持有一份
func commonFlags() []cli.Flag {
	def := relay.DefaultConfig()
	return []cli.Flag{
		&cli.BoolFlag{Name: "mesh", Usage: "also listen on the secondary mesh port", Sources: cli.EnvVars("RELAY_MESH")},
		&cli.StringFlag{Name: "http", Value: ":8080", Usage: "admin/ui http address, empty disables", Sources: cli.EnvVars("RELAY_HTTP_ADDR")},
		&cli.StringFlag{Name: "log-file", Value: "relay.log", Usage: "rotated log file, empty logs to stderr only", Sources: cli.EnvVars("RELAY_LOG_FILE")},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
		&cli.BoolFlag{Name: "stdin", Usage: "read local moves as \"x y [texture]\" lines from stdin and print remote moves"},
		&cli.DurationFlag{Name: "write-timeout", Value: def.WriteTimeout, Sources: cli.EnvVars("RELAY_WRITE_TIMEOUT")},
		&cli.DurationFlag{Name: "dial-timeout", Value: def.DialTimeout, Sources: cli.EnvVars("RELAY_DIAL_TIMEOUT")},
		&cli.IntFlag{Name: "dial-attempts", Value: def.DialAttempts, Usage: "dial attempts with exponential backoff", Sources: cli.EnvVars("RELAY_DIAL_ATTEMPTS")},
		&cli.IntFlag{Name: "dedup-window", Value: def.DedupWindow, Usage: "recently seen move ids kept for dedup, 0 disables", Sources: cli.EnvVars("RELAY_DEDUP_WINDOW")},
		&cli.IntFlag{Name: "max-line-bytes", Value: def.MaxLineBytes, Sources: cli.EnvVars("RELAY_MAX_LINE_BYTES")},
	}
}

func configFrom(cmd *cli.Command) relay.Config {
	cfg := relay.DefaultConfig()
	cfg.WriteTimeout = cmd.Duration("write-timeout")
	cfg.DialTimeout = cmd.Duration("dial-timeout")
	cfg.DialAttempts = int(cmd.Int("dial-attempts"))
	cfg.DedupWindow = int(cmd.Int("dedup-window"))
	cfg.MaxLineBytes = int(cmd.Int("max-line-bytes"))
	return cfg
}

// run 启动节点、监听端口、拨号对端，阻塞到收到退出信号或监听致命错误
// mustDial 为 true 时拨号失败直接返回错误（客户端角色停留在连接前状态）
func run(ctx context.Context, cmd *cli.Command, ports []int, peers []string, mustDial bool) error {
	if err := relay.InitLogger(cmd.String("log-file"), cmd.String("log-level")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer relay.SyncLogger()

	cfg := configFrom(cmd)
	bridge := relay.NewBridge(ctx)
	console := cmd.Bool("stdin")
	node, err := relay.New(cfg, relay.CallbackFuncs{
		RemoteMove: func(m relay.MoveMessage) {
			bridge.OnRemoteMove(m)
			if console {
				fmt.Printf("remote move: x=%g y=%g texture=%q\n", m.X, m.Y, m.TexturePath)
			}
		},
		GameStart: func() {
			bridge.OnGameStart()
			if console {
				fmt.Println("game started")
			}
		},
	})
	if err != nil {
		return err
	}
	bridge.Attach(node)
	defer node.Close()

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if addr := cmd.String("http"); addr != "" {
		srv = &http.Server{Addr: addr, Handler: relay.NewAdminMux(node, bridge)}
		g.Go(func() error {
			relay.Log.Infof("admin/ui http listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
	}

	for _, port := range ports {
		g.Go(func() error { return node.Listen(gctx, port) })
	}

	for _, p := range peers {
		host, port, err := splitPeer(p)
		if err != nil {
			relay.Log.Warnf("skipping peer %q: %v", p, err)
			continue
		}
		if _, err := node.Connect(gctx, host, port); err != nil && mustDial {
			shutdown(srv, node)
			_ = g.Wait()
			return err
		}
	}

	if console {
		go readConsole(gctx, node)
	}

	<-gctx.Done()
	relay.Log.Info("shutting down...")
	shutdown(srv, node)
	return g.Wait()
}

// shutdown 停止 http 服务并关闭节点，使 errgroup 中的协程全部返回
func shutdown(srv *http.Server, node *relay.Node) {
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	_ = node.Close()
}

func splitPeer(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// readConsole 每行 "x y [texture]" 作为一次本地落子
func readConsole(ctx context.Context, node *relay.Node) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() && ctx.Err() == nil {
		m, err := parseConsoleMove(sc.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad move: %v\n", err)
			continue
		}
		if err := node.SendLocalMove(m); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
		}
	}
}

func parseConsoleMove(line string) (relay.MoveMessage, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return relay.MoveMessage{}, fmt.Errorf("want \"x y [texture]\", got %q", line)
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return relay.MoveMessage{}, err
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return relay.MoveMessage{}, err
	}
	m := relay.MoveMessage{X: x, Y: y}
	if len(fields) == 3 {
		m.TexturePath = fields[2]
	}
	return m, nil
}
