// Package registry は配信を許可するファイルの一覧を管理する
//
// 一覧は {path, public} のJSON配列としてファイルに保存される。
// path は配信ルートからの相対パスで、区切りは "/"。
// 一覧ファイルが存在しない場合は認可を行わず、配信ルート配下の全ファイルを許可する。
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

var (
	// ErrNotRegistered はファイルが公開ファイルとして登録されていないことを表す
	ErrNotRegistered = errors.New("公開ファイルとして登録されていません")
	// ErrRegistryMissing は読み込み済みの一覧ファイルが消えたことを表す
	// この場合は前回読み込んだ一覧を使い続ける
	ErrRegistryMissing = errors.New("ファイル一覧が見つかりません")
)

// WebFile は一覧の1エントリ
type WebFile struct {
	Path   string `json:"path"`
	Public bool   `json:"public"`
}

// Load は一覧ファイルを読み込む
func Load(file string) ([]WebFile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("ファイル一覧の読み込みに失敗: %w", err)
	}

	var files []WebFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("ファイル一覧の解析に失敗: %w", err)
	}
	return files, nil
}

// Save は一覧ファイルを書き出す
// root 配下でディレクトリを指すエントリは保存しない
func Save(file, root string, files []WebFile) error {
	kept := make([]WebFile, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(normalize(f.Path))))
		if err == nil && info.IsDir() {
			continue
		}
		kept = append(kept, WebFile{Path: normalize(f.Path), Public: f.Public})
	}

	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return fmt.Errorf("ファイル一覧の変換に失敗: %w", err)
	}
	data = append(data, '\n')

	// 一時ファイルに書いてから置き換える
	tmp, err := os.CreateTemp(filepath.Dir(file), ".files-*.json")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ファイル一覧の書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ファイル一覧の書き込みに失敗: %w", err)
	}

	if err := os.Rename(tmp.Name(), file); err != nil {
		return fmt.Errorf("ファイル一覧の置き換えに失敗: %w", err)
	}
	return nil
}

// Registry は一覧ファイルの内容をメモリ上に保持する
type Registry struct {
	file string
	root string

	// writeMu は Set による一覧ファイルの書き込みを直列化する
	writeMu sync.Mutex

	mu      sync.RWMutex
	enabled bool
	files   map[string]bool
}

// Open は一覧ファイルを読み込んだ Registry を作成する
// ファイルが存在しない場合は認可無効の状態で返す
func Open(file, root string) (*Registry, error) {
	r := &Registry{
		file:  file,
		root:  root,
		files: make(map[string]bool),
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload は一覧ファイルを読み直す
// 一度読み込めたファイルが消えた場合は一覧を維持し ErrRegistryMissing を返す
func (r *Registry) Reload() error {
	if r.file == "" {
		r.set(false, nil)
		return nil
	}

	files, err := Load(r.file)
	if errors.Is(err, fs.ErrNotExist) {
		if r.Enabled() {
			return fmt.Errorf("%s: %w", r.file, ErrRegistryMissing)
		}
		r.set(false, nil)
		return nil
	}
	if err != nil {
		return err
	}

	r.set(true, files)
	return nil
}

func (r *Registry) set(enabled bool, files []WebFile) {
	m := make(map[string]bool, len(files))
	for _, f := range files {
		m[normalize(f.Path)] = f.Public
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
	r.files = m
}

// Enabled は認可が有効かどうかを返す
func (r *Registry) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Path は一覧ファイルのパスを返す
func (r *Registry) Path() string {
	return r.file
}

// Authorize は配信ルートからの相対パス rel の配信が許可されているか確認する
func (r *Registry) Authorize(rel string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.enabled {
		return nil
	}

	key := normalize(rel)
	if public, ok := r.files[key]; ok && public {
		return nil
	}
	return fmt.Errorf("%s: %w", key, ErrNotRegistered)
}

// Files は登録済みエントリをパス順に返す
func (r *Registry) Files() []WebFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make([]WebFile, 0, len(r.files))
	for p, public := range r.files {
		files = append(files, WebFile{Path: p, Public: public})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files
}

// Set はエントリを追加または更新し、一覧ファイルに保存する
func (r *Registry) Set(rel string, public bool) error {
	if r.file == "" {
		return fmt.Errorf("ファイル一覧のパスが設定されていません")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	files := r.Files()
	key := normalize(rel)
	found := false
	for i := range files {
		if files[i].Path == key {
			files[i].Public = public
			found = true
		}
	}
	if !found {
		files = append(files, WebFile{Path: key, Public: public})
	}

	if err := Save(r.file, r.root, files); err != nil {
		return err
	}
	return r.Reload()
}

// normalize は相対パスを "a/b.html" の形に揃える
func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
