// Package rewrite はSPAのクライアントサイドルーティング用のパス書き換えルールを扱います。
//
// ルールは順序付きのリストとして保持され、先に一致したものが採用されます。
// ネットワーク層から独立しているため、単体でテストできます。
package rewrite

import (
	"fmt"
	"strings"
)

// デフォルトのドキュメント
const (
	DefaultEntryDocument   = "/index.html"
	DefaultLandingDocument = "/static-index.html"
)

// Rule はひとつの書き換えルール
type Rule struct {
	Prefix string // 一致させるパス（またはプレフィックス）
	Target string // 代わりに配信するパス
	Exact  bool   // true の場合はパス全体の完全一致
}

// Match はパスがルールに一致するかを返す
func (r Rule) Match(path string) bool {
	if r.Exact {
		return path == r.Prefix
	}
	return strings.HasPrefix(path, r.Prefix)
}

// String はルールを人間向けの表記で返す
func (r Rule) String() string {
	if r.Exact {
		return fmt.Sprintf("%s -> %s", r.Prefix, r.Target)
	}
	return fmt.Sprintf("%s* -> %s", r.Prefix, r.Target)
}

// Rules は評価順に並んだルールのリスト
type Rules []Rule

// Default は標準のルールセットを返す
// ルートはランディングドキュメント、管理画面系のパスはSPAエントリに書き換える
func Default(entry, landing string) Rules {
	return Rules{
		{Prefix: "/", Target: landing, Exact: true},
		{Prefix: "/dashboard", Target: entry},
		{Prefix: "/admin", Target: entry},
		{Prefix: "/client", Target: entry},
	}
}

// Resolve は最初に一致したルールのターゲットを返す
// 一致しない場合は元のパスをそのまま返し、rewritten は false になる
func (rs Rules) Resolve(path string) (target string, rewritten bool) {
	for _, r := range rs {
		if r.Match(path) {
			return r.Target, true
		}
	}
	return path, false
}

// String はルール一覧を1行1ルールで返す
func (rs Rules) String() string {
	var b strings.Builder
	for i, r := range rs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	return b.String()
}
