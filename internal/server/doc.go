// Package server は、静的ファイル配信サーバーと管理APIを管理します。
//
// このパッケージは、TCP接続の受付、スレッドプールへのジョブ投入、
// リクエストの分類とファイルの返送、管理用HTTP APIの提供を担当します。
//
// 責務:
//   - TCPリスナーの起動と接続の受付
//   - 1接続につき1ジョブをスレッドプールに投入
//   - リクエスト先頭のバイト列によるリクエストの分類
//   - 配信ルート以下のファイルの返送（ファイル一覧による認可付き）
//   - 管理API（ヘルスチェック、状態、ファイル一覧、メトリクス）
//
// 仕様:
//   - HTTPの完全な解析は行わず、"GET / HTTP/1.1" と "GET /" の前方一致のみで判定
//   - レスポンスはステータス行、Content-Length、本文のみ
//   - 管理APIはginを使用し、AdminPort が0の場合は起動しない
//   - グレースフルシャットダウンに対応（投入済みのジョブは全て完了させる）
package server
