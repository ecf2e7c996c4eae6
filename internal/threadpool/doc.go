// Package threadpool は固定数のワーカーでジョブを実行するスレッドプールを提供する
//
// # 責務
// - 固定数のワーカー goroutine の起動と管理
// - 単一の共有キューからのジョブ配送
// - 順序だったシャットダウン（ワーカー数分の終了シグナル送信とインデックス順の join）
//
// # 仕様
//   - プールのサイズは生成時に決まり、以後変化しない。サイズ0以下は panic する
//   - Execute はジョブをキューに積むだけで、空きワーカーやジョブの完了を待たない
//   - キューはFIFO。各メッセージはどれか1つのワーカーにちょうど1回だけ届く
//   - 受信側は1つの mutex で排他されるが、ジョブ本体はロックの外で実行される
//   - ジョブ内の panic は回収してログに記録し、ワーカーはそのまま動き続ける
//   - Shutdown 開始前に受け付けたジョブは全て実行されてからワーカーが終了する
//   - Shutdown 開始後の Execute は ErrPoolClosed を返す
//
// # 使い方
//
//	pool := threadpool.New(4, threadpool.WithLogger(logger))
//	defer pool.Close()
//
//	if err := pool.Execute(func() { handle(conn) }); err != nil {
//		// プール停止後の投入
//	}
package threadpool
