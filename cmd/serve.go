package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"spapreview/internal/config"
	"spapreview/internal/server"
)

// openerOverride はテストでブラウザ起動を差し替えるために使う
var openerOverride server.Opener

func newServeCmd(opts *options) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "プレビューサーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(serveCmd, opts)
	return serveCmd
}

func addServeFlags(c *cobra.Command, opts *options) {
	f := c.Flags()
	f.StringVar(&opts.host, "host", "", "サーバーのホスト (デフォルト: 全インターフェース)")
	f.IntVarP(&opts.port, "port", "p", config.DefaultPort, "サーバーのポート")
	f.BoolVar(&opts.strictPort, "strict-port", false, "ポートが使用中でも代替ポートを試さない")
	f.BoolVar(&opts.noCache, "no-cache", true, "Cache-Control: no-cache を付与する")
	f.BoolVar(&opts.noBrowser, "no-browser", false, "起動後にブラウザを開かない")
	f.BoolVarP(&opts.watch, "watch", "w", false, "ファイルの変更をログに表示する")
}

// loadConfig は設定を読み込み、指定されたフラグで上書きする
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, flagOverrides(cmd, opts))
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	return cfg, nil
}

// flagOverrides は明示的に指定されたフラグだけを設定に反映する
func flagOverrides(cmd *cobra.Command, opts *options) config.Override {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if opts.dir != "" {
			cfg.Static.Root = opts.dir
		}
		if flags.Changed("host") {
			cfg.Server.Host = opts.host
		}
		if flags.Changed("port") {
			cfg.Server.Port = opts.port
		}
		if flags.Changed("strict-port") {
			cfg.Server.PortFallback = !opts.strictPort
		}
		if flags.Changed("no-cache") {
			cfg.Static.NoCache = opts.noCache
		}
		if flags.Changed("no-browser") {
			cfg.Browser.Open = !opts.noBrowser
		}
		if flags.Changed("watch") {
			cfg.Watch.Enabled = opts.watch
		}
	}
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{server.WithOutput(cmd.OutOrStdout())}
	if openerOverride != nil {
		srvOpts = append(srvOpts, server.WithOpener(openerOverride))
	}
	srv := server.New(cfg, srvOpts...)

	if err := srv.Start(cmd.Context()); err != nil {
		if errors.Is(err, server.ErrPortInUse) {
			errColor := color.New(color.FgRed)
			// 代替ポートも使用中の場合はエラーに両方のポートが含まれる
			errColor.Fprintln(cmd.ErrOrStderr(), err)
			fmt.Fprintln(cmd.ErrOrStderr(), "--port で別のポートを指定するか、使用中のプロセスを終了してください")
		}
		return err
	}
	return nil
}
