// Package storage 参考照片的本地磁盘存储。
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPath 非法的相对路径（越出存储根目录）
var ErrInvalidPath = errors.New("非法的照片路径")

// LocalStore 以 <root>/<classroom_id>/<uuid><ext> 形式保存照片
type LocalStore struct {
	root         string
	publicPrefix string
}

// NewLocalStore 创建存储，根目录不存在时自动创建
func NewLocalStore(root, publicPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建照片目录失败: %w", err)
	}
	return &LocalStore{root: root, publicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

// Root 存储根目录
func (s *LocalStore) Root() string { return s.root }

// Save 写入照片，返回相对路径（正斜杠分隔）
func (s *LocalStore) Save(classroomID, ext string, data []byte) (string, error) {
	if classroomID == "" || strings.ContainsAny(classroomID, `/\.`) {
		return "", ErrInvalidPath
	}
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir := filepath.Join(s.root, classroomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建班级照片目录失败: %w", err)
	}

	name := uuid.NewString() + ext
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("写入照片失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("写入照片失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("保存照片失败: %w", err)
	}

	return path.Join(classroomID, name), nil
}

// Remove 删除照片，文件不存在时不报错
func (s *LocalStore) Remove(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URL 照片的对外访问路径；rel 为空时返回空串
func (s *LocalStore) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.publicPrefix + "/" + strings.TrimLeft(rel, "/")
}

func (s *LocalStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}
