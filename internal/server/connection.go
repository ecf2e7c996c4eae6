package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webserver/internal/registry"
)

// ステータス行
const (
	statusOK         = "HTTP/1.1 200 OK"
	statusNotFound   = "HTTP/1.1 404 NOT FOUND"
	statusBadRequest = "HTTP/1.1 400 BAD REQUEST"
)

// エラーページのファイル名（配信ルートの default/ 以下）
const (
	notFoundPage   = "404.html"
	badRequestPage = "400.html"
	indexPage      = "index.html"
)

// response は接続に書き戻す内容
type response struct {
	status string
	file   string
	body   []byte
}

// connHandler は1接続分の処理を行う
// Handle はスレッドプールのジョブとして実行される
type connHandler struct {
	root        string
	registry    *registry.Registry
	logger      logrus.FieldLogger
	readTimeout time.Duration
}

// Handle はリクエストを読み、ファイルを返して接続を閉じる
func (h *connHandler) Handle(conn net.Conn) {
	defer conn.Close()

	logger := h.logger.WithFields(logrus.Fields{
		"conn":   uuid.New().String(),
		"remote": conn.RemoteAddr().String(),
	})

	if h.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			logger.WithError(err).Warn("読み込み期限の設定に失敗しました")
		}
	}

	buf := make([]byte, maxRequestSize)
	n, err := conn.Read(buf)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		logger.WithError(err).Warn("リクエストの読み込みに失敗しました")
		return
	}

	resp := h.respond(classifyRequest(buf[:n]))
	logger.WithFields(logrus.Fields{
		"status": strings.TrimPrefix(resp.status, "HTTP/1.1 "),
		"file":   resp.file,
	}).Info("レスポンスを返します")

	if err := writeResponse(conn, resp); err != nil {
		logger.WithError(err).Warn("レスポンスの書き込みに失敗しました")
	}
}

// respond はリクエストに対応するレスポンスを組み立てる
func (h *connHandler) respond(req request) response {
	switch req.kind {
	case requestIndex:
		return h.serveFile(indexPage)
	case requestFile:
		return h.serveFile(req.target)
	default:
		return h.errorPage(statusBadRequest, badRequestPage)
	}
}

// serveFile は配信ルートからの相対パス target のファイルを返す
// 存在しない・ディレクトリ・未許可の場合は404
func (h *connHandler) serveFile(target string) response {
	rel := strings.TrimPrefix(path.Clean("/"+target), "/")
	full := filepath.Join(h.root, filepath.FromSlash(rel))

	if err := h.registry.Authorize(rel); err != nil {
		h.logger.WithField("path", rel).Debug("未許可のファイルです")
		return h.errorPage(statusNotFound, notFoundPage)
	}

	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return h.errorPage(statusNotFound, notFoundPage)
	}

	body, err := os.ReadFile(full)
	if err != nil {
		h.logger.WithError(err).WithField("path", full).Error("ファイルの読み込みに失敗しました")
		return h.errorPage(statusNotFound, notFoundPage)
	}

	return response{status: statusOK, file: full, body: body}
}

// errorPage は default/ 以下のエラーページを返す
// 配信ルートに無い場合は埋め込みのページを使う
func (h *connHandler) errorPage(status, name string) response {
	full := filepath.Join(h.root, "default", name)
	if body, err := os.ReadFile(full); err == nil {
		return response{status: status, file: full, body: body}
	}

	body, err := getFallbackPage(name)
	if err != nil {
		h.logger.WithError(err).Error("エラーページを用意できません")
	}
	return response{status: status, file: "embedded:" + name, body: body}
}

// writeResponse はステータス行・Content-Length・本文を書き込む
func writeResponse(w io.Writer, resp response) error {
	header := fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n", resp.status, len(resp.body))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(resp.body)
	return err
}
