// Package cmd は spapreview のコマンドライン定義です
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// Version はビルド時に -ldflags で埋め込まれる
var Version = "dev"

// options はコマンドラインオプション
type options struct {
	configPath string
	dir        string
	host       string
	port       int
	strictPort bool
	noCache    bool
	noBrowser  bool
	watch      bool
}

// newRootCmd はルートコマンドを組み立てる
// 引数なしで実行した場合は serve と同じ動作をする
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "spapreview",
		Short: "SPA 開発用の静的ファイルプレビューサーバー",
		Long: "ディレクトリを静的に配信し、CORSヘッダーを付与します。\n" +
			"/dashboard, /admin, /client 以下は index.html に、/ は static-index.html に書き換えます。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "設定ファイル (.yaml / .toml)")
	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", "", "配信するディレクトリ (デフォルト: 実行ファイルのディレクトリ)")
	addServeFlags(rootCmd, opts)

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newRulesCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute はルートコマンドを実行する
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
