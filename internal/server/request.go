package server

import "bytes"

// requestKind はリクエストの分類
type requestKind int

const (
	requestIndex requestKind = iota // "GET / HTTP/1.1"
	requestFile                     // "GET /<path>"
	requestBad                      // それ以外
)

// maxRequestSize は1回の読み込みで受け取るリクエストの最大長
const maxRequestSize = 1024

var (
	indexPrefix = []byte("GET / HTTP/1.1\r\n")
	getPrefix   = []byte("GET /")
)

// request は分類済みのリクエスト
type request struct {
	kind   requestKind
	target string // requestFile の場合の配信ルートからの相対パス
}

// classifyRequest は受信したバイト列を前方一致で分類する
func classifyRequest(buf []byte) request {
	if bytes.HasPrefix(buf, indexPrefix) {
		return request{kind: requestIndex}
	}

	if !bytes.HasPrefix(buf, getPrefix) {
		return request{kind: requestBad}
	}

	rest := buf[len(getPrefix):]
	if end := bytes.IndexAny(rest, " \t\r\n"); end >= 0 {
		rest = rest[:end]
	}
	// クエリ文字列は無視する
	if q := bytes.IndexByte(rest, '?'); q >= 0 {
		rest = rest[:q]
	}

	if len(rest) == 0 {
		return request{kind: requestIndex}
	}
	return request{kind: requestFile, target: string(rest)}
}
