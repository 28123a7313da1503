package frames

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Repo is the frame-store contract consumed by the capture pipeline
// (single writer) and the video assembler (single reader/deleter).
type Repo interface {
	Begin(session string) (string, error)
	Write(session string, seq int, data []byte) (string, error)
	List(session string) ([]string, error)
	Count(session string) (int, error)
	Clear(session string) error
	Dir(session string) string
	OutputPath(name string) string
}

const (
	framePrefix = "frame_"
	frameExt    = ".jpg"
	dirPerm     = 0o755
	filePerm    = 0o644
)

// Store keeps frames as zero-padded sequence files under
// <basedir>/<session>/; the file names are the frame index, so the
// directory listing is the ordered frame list and no other index exists.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Dir returns the session's frame directory.
func (s *Store) Dir(session string) string {
	return filepath.Join(s.baseDir, session)
}

// OutputPath returns where a rendered video for the given name goes: a
// sibling of the session dirs, so frame cleanup never touches it.
func (s *Store) OutputPath(name string) string {
	return filepath.Join(s.baseDir, name+".mp4")
}

// Begin creates an empty frame directory for the session, clearing any
// leftovers from an aborted run with the same id.
func (s *Store) Begin(session string) (string, error) {
	dir := s.Dir(session)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear frame dir: %w", err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create frame dir: %w", err)
	}
	return dir, nil
}

// Write persists one frame under its sequence index and returns the path.
func (s *Store) Write(session string, seq int, data []byte) (string, error) {
	dir := s.Dir(session)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("frame dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%06d%s", framePrefix, seq, frameExt))
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", fmt.Errorf("write frame %d: %w", seq, err)
	}
	return path, nil
}

// List returns the session's frame paths ordered by sequence index. The
// zero-padded names make the lexical order the numeric order.
func (s *Store) List(session string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(session))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameExt) {
			continue
		}
		paths = append(paths, filepath.Join(s.Dir(session), name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Count returns the number of stored frames.
func (s *Store) Count(session string) (int, error) {
	paths, err := s.List(session)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return len(paths), nil
}

// Clear removes the session's frame directory and everything in it.
func (s *Store) Clear(session string) error {
	return os.RemoveAll(s.Dir(session))
}
