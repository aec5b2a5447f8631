package server

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
)

// printBanner は起動時の案内を表示する
func (s *Server) printBanner() {
	rule := strings.Repeat("=", 50)
	url := s.URL()

	titleColor.Fprintln(s.out, "SPA プレビューサーバー")
	fmt.Fprintln(s.out, rule)
	fmt.Fprintf(s.out, "ディレクトリ: %s\n", s.config.Static.Root)
	fmt.Fprintf(s.out, "ポート:       %d\n", s.port)
	if s.port != s.config.Server.Port && s.config.Server.Port != 0 {
		warnColor.Fprintf(s.out, "              (ポート %d が使用中のため代替ポートを使用)\n", s.config.Server.Port)
	}
	fmt.Fprintf(s.out, "URL:          %s\n", url)
	fmt.Fprintf(s.out, "アプリ:       %s%s\n", url, s.config.Static.EntryDocument)
	fmt.Fprintln(s.out, rule)
	okColor.Fprintln(s.out, "サーバーを起動しました")
	fmt.Fprintln(s.out, "Ctrl+C で停止します")
	fmt.Fprintln(s.out)
}

// printFarewell は停止時のメッセージを表示する
func (s *Server) printFarewell() {
	okColor.Fprintln(s.out, "\nサーバーを正常に停止しました")
}
