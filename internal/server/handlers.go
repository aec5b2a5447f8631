package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// レスポンスに付与するヘッダー
const (
	allowOrigin  = "*"
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "*"
	noCacheValue = "no-cache, no-store, must-revalidate"
)

const indexPage = "index.html"

func init() {
	// ルート一覧などのデバッグ出力を抑制する
	gin.SetMode(gin.ReleaseMode)
}

// newEngine はリクエスト処理のミドルウェアチェーンを組み立てる
//
// ルートは登録せず、すべてのリクエストを NoRoute で静的ファイル配信に回す。
func (s *Server) newEngine() *gin.Engine {
	engine := gin.New()
	// ClientIP にはソケットの接続元アドレスを使う
	_ = engine.SetTrustedProxies(nil)

	engine.Use(
		requestLogger(s.out),
		gin.RecoveryWithWriter(s.out),
		corsHeaders(s.config.Static.NoCache),
		preflight(),
	)
	engine.NoRoute(s.serveStatic)

	return engine
}

// requestLogger はリクエストごとに1行ログを出力する
func requestLogger(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output: out,
		Formatter: func(p gin.LogFormatterParams) string {
			return fmt.Sprintf("[%s] \"%s %s %s\" %d %d %v\n",
				p.ClientIP,
				p.Method,
				p.Path,
				p.Request.Proto,
				p.StatusCode,
				p.BodySize,
				p.Latency.Round(time.Microsecond),
			)
		},
	})
}

// corsHeaders はすべてのレスポンスにCORSヘッダーを付与する
func corsHeaders(noCache bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		if noCache {
			h.Set("Cache-Control", noCacheValue)
		}
		c.Next()
	}
}

// preflight は OPTIONS リクエストに本文なしの 200 を返す
func preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// serveStatic は書き換えルールを適用してファイルを配信する
func (s *Server) serveStatic(c *gin.Context) {
	r := c.Request

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		c.String(http.StatusNotImplemented, "Unsupported method (%s)\n", r.Method)
		return
	}

	// NoRoute では gin が 404 を既定にしているため、200 に戻しておく
	// エラー時は http.Error などが WriteHeader で上書きする
	c.Status(http.StatusOK)

	target, rewritten := s.rules.Resolve(r.URL.Path)
	if rewritten || strings.HasSuffix(target, "/"+indexPage) {
		s.serveDocument(c.Writer, r, target)
		return
	}

	// 通常のファイル配信（ディレクトリ一覧・404・パス正規化を含む）
	s.files.ServeHTTP(c.Writer, r)
}

// serveDocument は書き換え先のドキュメントをそのまま配信する
//
// http.FileServer は .../index.html へのリクエストを ./ にリダイレクトするため、
// 書き換え先と index.html は ServeContent で直接返す。
func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request, name string) {
	f, err := s.root.Open(name)
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return
	}

	if info.IsDir() {
		// ディレクトリは通常の配信に任せる
		r2 := r.Clone(r.Context())
		r2.URL.Path = name
		r2.URL.RawPath = ""
		s.files.ServeHTTP(w, r2)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// toHTTPError はファイルアクセスのエラーをHTTPステータスに変換する
func toHTTPError(err error) (string, int) {
	if errors.Is(err, fs.ErrNotExist) {
		return "404 page not found", http.StatusNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return "403 Forbidden", http.StatusForbidden
	}
	return "500 Internal Server Error", http.StatusInternalServerError
}
