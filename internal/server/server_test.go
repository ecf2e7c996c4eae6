package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"webserver/internal/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestConfig はテスト用の設定を作成する
func newTestConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0, // ランダムポートを使用
			ReadTimeout:     2 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Pool: config.PoolConfig{
			Size: 3,
		},
		Files: config.FilesConfig{
			WebRoot: root,
		},
		Admin: config.AdminConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
	}
}

// startServer はサーバーを別ゴルーチンで起動し、受付開始まで待つ
func startServer(t *testing.T, srv *Server) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("サーバーの起動に失敗しました: %v", err)
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("サーバーの起動がタイムアウトしました")
	}
	return cancel, errCh
}

// dial はサーバーに生のリクエストを送り、受信したレスポンス全体を返す
func dial(addr net.Addr, raw string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	if err != nil {
		return "", fmt.Errorf("接続に失敗: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Write([]byte(raw)); err != nil {
		return "", fmt.Errorf("リクエストの送信に失敗: %w", err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("レスポンスの受信に失敗: %w", err)
	}
	return string(data), nil
}

// doRequest は dial してステータス行と本文を返す
func doRequest(t *testing.T, addr net.Addr, raw string) (string, string) {
	t.Helper()
	data, err := dial(addr, raw)
	if err != nil {
		t.Fatal(err)
	}
	return parseResponse(t, data)
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	root := setupWebRoot(t)
	srv := New(newTestConfig(root), testLogger(), openRegistry(t, root, ""))

	cancel, errCh := startServer(t, srv)

	if srv.Addr() == nil {
		t.Fatal("リッスンアドレスが取得できません")
	}
	if srv.AdminAddr() != nil {
		t.Error("AdminPort が0なのに管理APIが起動しています")
	}

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}

	for _, w := range srv.Pool().Workers() {
		if w.State != "terminated" {
			t.Errorf("ワーカー %d が停止していません", w.ID)
		}
	}

	// 2回目の Shutdown は同じ結果を返す
	if err := srv.Shutdown(); err != nil {
		t.Errorf("2回目の Shutdown でエラーが発生しました: %v", err)
	}
}

// TestServer_ServesConcurrentConnections は複数接続の同時処理をテストする
func TestServer_ServesConcurrentConnections(t *testing.T) {
	root := setupWebRoot(t)
	srv := New(newTestConfig(root), testLogger(), openRegistry(t, root, ""))

	cancel, errCh := startServer(t, srv)
	defer func() {
		cancel()
		<-errCh
	}()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := "GET / HTTP/1.1\r\n\r\n"
			want := "<h1>index</h1>"
			if i%2 == 1 {
				raw = "GET /hello.txt HTTP/1.1\r\n\r\n"
				want = "hello"
			}

			data, err := dial(srv.Addr(), raw)
			if err != nil {
				t.Errorf("接続 %d: %v", i, err)
				return
			}
			if !strings.HasPrefix(data, statusOK+"\r\n") || !strings.HasSuffix(data, "\r\n\r\n"+want) {
				t.Errorf("接続 %d: 予期しないレスポンス %q", i, data)
			}
		}(i)
	}
	wg.Wait()

	status, _ := doRequest(t, srv.Addr(), "BREW / HTTP/1.1\r\n\r\n")
	if status != statusBadRequest {
		t.Errorf("ステータスが一致しません: got %q, want %q", status, statusBadRequest)
	}
}

// TestServerEndpoints は管理APIのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	root := setupWebRoot(t)
	srv := New(newTestConfig(root), testLogger(), openRegistry(t, root, `[{"path":"index.html","public":true}]`))
	cancel, errCh := startServer(t, srv)
	defer func() {
		cancel()
		<-errCh
	}()

	router := srv.newAdminRouter()

	// テストケース
	testCases := []struct {
		name           string
		method         string
		endpoint       string
		body           string
		expectedStatus int
	}{
		{"ヘルスチェックエンドポイント", http.MethodGet, "/health", "", http.StatusOK},
		{"ステータスエンドポイント", http.MethodGet, "/api/status", "", http.StatusOK},
		{"ファイル一覧エンドポイント", http.MethodGet, "/api/files", "", http.StatusOK},
		{"ファイル一覧の再読み込み", http.MethodPost, "/api/files/reload", "", http.StatusOK},
		{"ファイル一覧の更新", http.MethodPut, "/api/files", `{"path":"hello.txt","public":true}`, http.StatusOK},
		{"不正なファイル一覧の更新", http.MethodPut, "/api/files", `{"public":true}`, http.StatusBadRequest},
		{"メトリクスエンドポイント", http.MethodGet, "/metrics", "", http.StatusOK},
		{"存在しないエンドポイント", http.MethodGet, "/unknown", "", http.StatusNotFound},
	}

	// 各エンドポイントをテスト
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = bytes.NewBufferString(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.endpoint, body)
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d (%s)",
					rec.Code, tc.expectedStatus, rec.Body.String())
			}
		})
	}

	// 更新したファイルが配信されるようになっている
	status, body := doRequest(t, srv.Addr(), "GET /hello.txt HTTP/1.1\r\n\r\n")
	if status != statusOK || body != "hello" {
		t.Errorf("登録したファイルが配信されません: got %q %q", status, body)
	}
}

// TestServerStatus はステータスの内容をテストする
func TestServerStatus(t *testing.T) {
	root := setupWebRoot(t)
	srv := New(newTestConfig(root), testLogger(), openRegistry(t, root, ""))

	cancel, errCh := startServer(t, srv)
	defer func() {
		cancel()
		<-errCh
	}()

	// メトリクスに記録されるよう1接続処理させる
	doRequest(t, srv.Addr(), "GET / HTTP/1.1\r\n\r\n")

	router := srv.newAdminRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("ステータスの解析に失敗しました: %v", err)
	}
	if status.Pool.Size != 3 || len(status.Pool.Workers) != 3 {
		t.Errorf("プールの状態が一致しません: %+v", status.Pool)
	}
	if status.Registry.Enabled {
		t.Error("一覧ファイルが無いのに認可が有効になっています")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "webserver_threadpool_jobs_submitted_total") {
		t.Error("メトリクスにジョブ投入数が含まれていません")
	}
}

// TestServer_AdminListener は管理APIのリスナー起動をテストする
func TestServer_AdminListener(t *testing.T) {
	// 空いているポートを確保する
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	root := setupWebRoot(t)
	cfg := newTestConfig(root)
	cfg.Admin.Port = port

	srv := New(cfg, testLogger(), openRegistry(t, root, ""))
	cancel, errCh := startServer(t, srv)
	defer func() {
		cancel()
		<-errCh
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.AdminAddr()))
	if err != nil {
		t.Fatalf("HTTPリクエストでエラーが発生しました: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("予期しないステータスコード: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

// TestServer_AdminListenFailure は管理APIの起動失敗時に速やかに停止することをテストする
func TestServer_AdminListenFailure(t *testing.T) {
	// 使用中のポートを管理APIに指定する
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	root := setupWebRoot(t)
	cfg := newTestConfig(root)
	cfg.Admin.Port = busy.Addr().(*net.TCPAddr).Port

	srv := New(cfg, testLogger(), openRegistry(t, root, ""))

	start := time.Now()
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("使用中のポートで管理APIが起動しました")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("停止に時間がかかりすぎています: %v", elapsed)
	}

	for _, w := range srv.Pool().Workers() {
		if w.State != "terminated" {
			t.Errorf("ワーカー %d が停止していません", w.ID)
		}
	}
}
