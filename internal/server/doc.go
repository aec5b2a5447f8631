// Package server は、SPAプレビュー用の静的ファイルHTTPサーバーを管理します。
//
// このパッケージは、ポートのバインド、リクエスト処理、
// レスポンスヘッダーの付与、起動と停止の表示を担当します。
//
// 責務:
//   - ポートのバインド（使用中の場合は Port+1 で一度だけ再試行）
//   - 書き換えルールに基づく静的ファイルの配信
//   - CORSヘッダーと Cache-Control の付与
//   - OPTIONS（プリフライト）への応答
//   - リクエストごとのログ出力
//   - グレースフルシャットダウン
//
// 仕様:
//   - リクエスト処理はginのミドルウェアチェーンで構成
//   - ファイル配信は標準ライブラリの http.FileServer に任せ、
//     パスの正規化（ルート外へのトラバーサル防止）をそのまま利用
//   - ブラウザ起動は Opener として注入し、テストでは差し替える
package server
