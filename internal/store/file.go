package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dkeye/CoWatch/internal/domain"
	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Videos       []domain.Video       `yaml:"videos"`
	CurrentVideo domain.PlaybackState `yaml:"current_video"`
}

// File keeps the catalog and playback state in one YAML document, the
// way a hand-editable config file would. Every mutation rewrites the file
// through a temp file and rename.
type File struct {
	mu   sync.Mutex
	path string
	doc  fileDoc
}

// OpenFile reads path if it exists; a missing file starts empty.
func OpenFile(path string) (*File, error) {
	f := &File{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f.doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return f, nil
}

func (f *File) List(context.Context) ([]domain.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Video{}, f.doc.Videos...), nil
}

func (f *File) Lookup(_ context.Context, id domain.VideoID) (domain.Video, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.doc.Videos {
		if v.ID == id {
			return v, true, nil
		}
	}
	return domain.Video{}, false, nil
}

func (f *File) Add(_ context.Context, v domain.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.Videos = append(f.doc.Videos, v)
	return f.writeLocked()
}

func (f *File) Delete(_ context.Context, id domain.VideoID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range f.doc.Videos {
		if v.ID == id {
			f.doc.Videos = append(f.doc.Videos[:i], f.doc.Videos[i+1:]...)
			return true, f.writeLocked()
		}
	}
	return false, nil
}

func (f *File) LoadState(context.Context) (domain.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.CurrentVideo, nil
}

func (f *File) SaveState(_ context.Context, s domain.PlaybackState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.CurrentVideo = s
	return f.writeLocked()
}

func (f *File) writeLocked() error {
	data, err := yaml.Marshal(&f.doc)
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
