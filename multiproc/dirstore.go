package multiproc

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ceyewan/reqmetrics/xerrors"
)

const snapshotExt = ".db"

// DirStore 把快照保存为共享目录下的 <key>.db 文件
//
// 写入先落到临时文件再 rename，读取方不会看到写了一半的快照。
type DirStore struct {
	dir string
}

// NewDirStore 创建目录存储，目录不存在时自动创建
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "multiprocess directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "failed to create multiprocess directory %s", dir)
	}
	return &DirStore{dir: dir}, nil
}

// Dir 返回快照目录
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) Put(_ context.Context, key Key, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+key.String()+".*.tmp")
	if err != nil {
		return xerrors.Wrap(err, "failed to create snapshot file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, "failed to close snapshot")
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return xerrors.Wrap(err, "failed to publish snapshot")
	}
	return nil
}

func (s *DirStore) List(_ context.Context) ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "failed to read multiprocess directory %s", s.dir)
	}

	var entries []Entry
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		key, ok := parseKey(strings.TrimSuffix(name, snapshotExt))
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// 进程退出时删除了快照
				continue
			}
			return nil, xerrors.Wrapf(err, "failed to read snapshot %s", name)
		}
		entries = append(entries, Entry{Key: key, Data: data})
	}
	return entries, nil
}

func (s *DirStore) Remove(_ context.Context, keys ...Key) error {
	var errs []error
	for _, k := range keys {
		if err := os.Remove(s.path(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}

func (s *DirStore) path(k Key) string {
	return filepath.Join(s.dir, k.String()+snapshotExt)
}
