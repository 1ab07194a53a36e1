package authgate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// State is the on-disk CLI state: the auth flag plus the session cookies.
type State struct {
	Auth    bool              `toml:"auth"`
	Cookies map[string]string `toml:"cookies,omitempty"`
}

// FileState is a FlagStore backed by a TOML file.
type FileState struct {
	path  string
	mu    sync.Mutex
	state State
}

// LoadFileState reads path. A missing file yields an empty state.
func LoadFileState(path string) (*FileState, error) {
	f := &FileState{path: path}
	if _, err := toml.DecodeFile(path, &f.state); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read state %s: %w", path, err)
		}
	}
	if f.state.Cookies == nil {
		f.state.Cookies = map[string]string{}
	}
	return f, nil
}

// DefaultStatePath is ~/.omocrm/state.toml.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".omocrm", "state.toml")
	}
	return filepath.Join(home, ".omocrm", "state.toml")
}

func (f *FileState) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Auth
}

// SetAuthenticated stores the flag. Clearing it also forgets the cookies.
func (f *FileState) SetAuthenticated(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Auth = v
	if !v {
		f.state.Cookies = map[string]string{}
	}
	return f.save()
}

// Cookies returns a copy of the stored cookies.
func (f *FileState) Cookies() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.state.Cookies))
	for k, v := range f.state.Cookies {
		out[k] = v
	}
	return out
}

// SaveCookies replaces the stored cookies.
func (f *FileState) SaveCookies(cookies map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Cookies = make(map[string]string, len(cookies))
	for k, v := range cookies {
		f.state.Cookies[k] = v
	}
	return f.save()
}

func (f *FileState) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.toml")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(f.state); err != nil {
		tmp.Close()
		return fmt.Errorf("encode state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
