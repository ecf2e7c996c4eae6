package threadpool

import "sync"

// messageKind はディスパッチチャンネルを流れるメッセージの種別
type messageKind int

const (
	kindJob       messageKind = iota // ジョブの実行
	kindTerminate                    // ワーカーの終了
)

// message はワーカーに届けられる1件のメッセージ
type message struct {
	kind messageKind
	job  Job
}

// channel は送信側からワーカー群へメッセージを渡すFIFOキュー
//
// 容量の上限はなく、send は待機しない。
// recv は mu で排他されるため、同時にデキューできるワーカーは1つだけ。
type channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []message
	closed bool

	// jobs はキュー内のジョブメッセージ数
	jobs int
	// onDepth は jobs が変わるたびにロックを保持したまま呼ばれる
	onDepth func(int)
}

// newChannel は空のチャンネルを作成する
func newChannel() *channel {
	c := &channel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// send はメッセージを末尾に追加し、待機中のワーカーを1つ起こす
func (c *channel) send(msg message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrPoolClosed
	}

	c.queue = append(c.queue, msg)
	if msg.kind == kindJob {
		c.jobs++
		c.reportDepth()
	}
	c.cond.Signal()
	return nil
}

// closeWith は以後の send を拒否し、最後のメッセージとして msgs を積む
// 既に閉じられていた場合は何もせず false を返す
func (c *channel) closeWith(msgs ...message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.closed = true
	c.queue = append(c.queue, msgs...)
	c.cond.Broadcast()
	return true
}

// recv はメッセージが届くまでブロックし、先頭の1件を取り出す
// 戻った時点でロックは解放されている
func (c *channel) recv() message {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 {
		c.cond.Wait()
	}

	msg := c.queue[0]
	c.queue[0] = message{}
	c.queue = c.queue[1:]
	if msg.kind == kindJob {
		c.jobs--
		c.reportDepth()
	}
	return msg
}

func (c *channel) reportDepth() {
	if c.onDepth != nil {
		c.onDepth(c.jobs)
	}
}

// len は未取得のメッセージ数を返す
func (c *channel) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
