package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore_SaveAndRemove(t *testing.T) {
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "photos"), "/photos/")
	if err != nil {
		t.Fatalf("NewLocalStore 失败: %v", err)
	}

	rel, err := s.Save("c1", "JPG", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Save 失败: %v", err)
	}
	if !strings.HasPrefix(rel, "c1/") || !strings.HasSuffix(rel, ".jpg") {
		t.Errorf("相对路径格式错误: %s", rel)
	}

	data, err := os.ReadFile(filepath.Join(s.Root(), filepath.FromSlash(rel)))
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("读取已保存照片失败: %v", err)
	}

	if got := s.URL(rel); got != "/photos/"+rel {
		t.Errorf("URL 错误: %s", got)
	}
	if got := s.URL(""); got != "" {
		t.Errorf("空路径应返回空 URL，得到 %s", got)
	}

	if err := s.Remove(rel); err != nil {
		t.Fatalf("Remove 失败: %v", err)
	}
	if err := s.Remove(rel); err != nil {
		t.Errorf("重复删除不应报错: %v", err)
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir(), "/photos")

	if _, err := s.Save("../etc", ".jpg", nil); err != ErrInvalidPath {
		t.Errorf("期望 ErrInvalidPath，得到 %v", err)
	}

	outside := filepath.Join(filepath.Dir(s.Root()), "keep.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("../keep.txt"); err != nil {
		t.Fatalf("Remove 失败: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("越界路径不应删除根目录之外的文件")
	}
}
