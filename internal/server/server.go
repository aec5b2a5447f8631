package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"spapreview/internal/config"
	"spapreview/internal/rewrite"
	"spapreview/internal/watch"
)

// State はサーバーのライフサイクル上の状態
type State int32

const (
	StateIdle State = iota
	StateBinding
	StateListening
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBinding:
		return "binding"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config *config.Config
	rules  rewrite.Rules
	opener Opener
	out    io.Writer

	root  http.Dir
	files http.Handler

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	port       int
	watcher    *watch.Watcher

	state        atomic.Int32
	shutdownOnce sync.Once
	shutdownErr  error
	serving      atomic.Bool
	served       chan struct{}
}

// Option は Server の生成オプション
type Option func(*Server)

// WithOpener はブラウザ起動に使う Opener を指定する
func WithOpener(o Opener) Option {
	return func(s *Server) { s.opener = o }
}

// WithOutput はバナーとリクエストログの出力先を指定する
func WithOutput(w io.Writer) Option {
	return func(s *Server) { s.out = w }
}

// WithRules は書き換えルールを差し替える
func WithRules(rules rewrite.Rules) Option {
	return func(s *Server) { s.rules = rules }
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, opts ...Option) *Server {
	root := http.Dir(cfg.Static.Root)

	s := &Server{
		config: cfg,
		rules:  cfg.Rules(),
		opener: SystemOpener{},
		out:    os.Stdout,
		root:   root,
		files:  http.FileServer(root),
		served: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = s.newEngine()
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return s
}

// Handler はリクエスト処理のハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// State は現在の状態を返す
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// Port は実際にバインドしたポートを返す
func (s *Server) Port() int {
	return s.port
}

// URL はブラウザで開くURLを返す
func (s *Server) URL() string {
	return s.config.URL(s.port)
}

// Bind は設定されたポートでリッスンを開始し、実際のポートを返す
func (s *Server) Bind() (int, error) {
	if s.State() != StateIdle {
		return 0, fmt.Errorf("バインドできない状態です: %s", s.State())
	}
	s.setState(StateBinding)

	ln, port, err := Listen(s.config.Server.Host, s.config.Server.Port, s.config.Server.PortFallback)
	if err != nil {
		s.setState(StateStopped)
		return 0, err
	}

	s.listener = ln
	s.port = port
	s.setState(StateListening)
	return port, nil
}

// Start はサーバーを起動し、停止するまでブロックする
//
// SIGINT/SIGTERM または ctx のキャンセルでグレースフルに停止し、nil を返す。
func (s *Server) Start(ctx context.Context) error {
	// バインド前に登録しておき、起動直後のシグナルも取りこぼさない
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
	if _, err := s.Bind(); err != nil {
		return err
	}

	s.printBanner()

	if s.config.Browser.Open {
		if err := s.opener.Open(s.URL()); err != nil {
			log.Printf("ブラウザを開けませんでした: %v", err)
		}
	}

	if s.config.Watch.Enabled {
		if err := s.startWatcher(); err != nil {
			log.Printf("ファイル監視を開始できませんでした: %v", err)
		}
	}

	return s.Serve(ctx)
}

// Serve はバインド済みのリスナーで接続を受け付け、ctx が終了するまでブロックする
func (s *Server) Serve(ctx context.Context) error {
	if s.State() != StateListening {
		return fmt.Errorf("リッスンしていません: %s", s.State())
	}

	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("既に接続を受け付けています")
	}

	// サーバーを別ゴルーチンで起動
	serveCh := make(chan error, 1)
	go func() {
		defer close(s.served)
		serveCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		log.Println("停止要求を受信しました")
	case err := <-serveCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.watcher != nil {
				_ = s.watcher.Stop()
			}
			s.closeListener()
			s.setState(StateStopped)
			return fmt.Errorf("サーバーの実行に失敗: %w", err)
		}
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 複数回呼んでもよい
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Server) shutdown() error {
	if s.State() == StateIdle || s.State() == StateStopped {
		s.setState(StateStopped)
		return nil
	}
	s.setState(StateShuttingDown)
	defer s.setState(StateStopped)

	if s.watcher != nil {
		_ = s.watcher.Stop()
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		// 処理中の接続が残っていても強制的に閉じる
		_ = s.httpServer.Close()
		err = fmt.Errorf("サーバーのシャットダウンに失敗: %w", shutdownErr)
	}

	s.closeListener()
	s.waitServed()
	s.printFarewell()

	return err
}

// closeListener はリスニングソケットを解放する
func (s *Server) closeListener() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// waitServed は Serve のゴルーチンが終了するのを待つ
func (s *Server) waitServed() {
	if !s.serving.Load() {
		return
	}
	select {
	case <-s.served:
	case <-time.After(time.Second):
	}
}

// startWatcher は配信ディレクトリの変更監視を開始する
func (s *Server) startWatcher() error {
	w, err := watch.New()
	if err != nil {
		return err
	}

	root := s.config.Static.Root
	err = w.Watch(root, func(path string) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		log.Printf("変更: %s（ブラウザを再読み込みしてください）", filepath.ToSlash(rel))
	})
	if err != nil {
		_ = w.Stop()
		return err
	}

	s.watcher = w
	return nil
}
