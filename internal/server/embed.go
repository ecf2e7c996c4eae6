package server

import (
	"embed"
	"fmt"
)

// 配信ルートに default/ のエラーページが無い場合に使う
//
//go:embed pages/*.html
var embedFS embed.FS

// getFallbackPage は埋め込みのエラーページを返す
func getFallbackPage(name string) ([]byte, error) {
	data, err := embedFS.ReadFile("pages/" + name)
	if err != nil {
		return nil, fmt.Errorf("埋め込みページ %s の読み込みに失敗: %w", name, err)
	}
	return data, nil
}
