// Package trackstore persists comment tracks as XML files under the
// configured danmaku directory.
//
// Callers address files by web path (/danmaku/{work}/{episode}.xml); the store
// maps those onto the filesystem root so the serving prefix stays independent
// of where files live on disk.
package trackstore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"danmu/internal/danmaku"
	"danmu/internal/episodeid"
	"danmu/internal/fileutil"
)

// WebPrefix is the path prefix every track web path starts with.
const WebPrefix = "/danmaku/"

// Store reads and writes track files beneath root.
type Store struct {
	root string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the filesystem root.
func (s *Store) Root() string {
	return s.root
}

// Write renders the comments and stores them for the episode, returning the
// web path.
func (s *Store) Write(workID, episodeID int64, comments []danmaku.Comment) (string, error) {
	web := episodeid.TrackPath(workID, episodeID)
	target, err := s.FilePath(web)
	if err != nil {
		return "", err
	}
	if err := fileutil.WriteFileAtomic(target, danmaku.Document(comments), 0o644); err != nil {
		return "", fmt.Errorf("write track %s: %w", web, err)
	}
	return web, nil
}

// Read parses the track stored at the web path.
func (s *Store) Read(webPath string) ([]danmaku.Comment, error) {
	target, err := s.FilePath(webPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return danmaku.ParseXML(f)
}

// Remove deletes the file behind a web path. Missing files are ignored.
func (s *Store) Remove(webPath string) error {
	if strings.TrimSpace(webPath) == "" {
		return nil
	}
	target, err := s.FilePath(webPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove track %s: %w", webPath, err)
	}
	return nil
}

// RemoveWork deletes a work's whole track directory.
func (s *Store) RemoveWork(workID int64) error {
	dir := filepath.Join(s.root, strconv.FormatInt(workID, 10))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove tracks for work %d: %w", workID, err)
	}
	return nil
}

// Relocate moves the file at oldWeb to newWeb. When there is no file at
// oldWeb nothing moves and oldWeb is returned.
func (s *Store) Relocate(oldWeb, newWeb string) (string, error) {
	if oldWeb == "" || oldWeb == newWeb {
		return oldWeb, nil
	}
	src, err := s.FilePath(oldWeb)
	if err != nil {
		return oldWeb, err
	}
	dst, err := s.FilePath(newWeb)
	if err != nil {
		return oldWeb, err
	}
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return oldWeb, nil
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		return oldWeb, fmt.Errorf("relocate %s to %s: %w", oldWeb, newWeb, err)
	}
	return newWeb, nil
}

// FilePath maps a web path onto the filesystem.
func (s *Store) FilePath(webPath string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(webPath))
	if !strings.HasPrefix(clean, WebPrefix) {
		return "", fmt.Errorf("track path %q is outside %s", webPath, WebPrefix)
	}
	rel := strings.TrimPrefix(clean, WebPrefix)
	if rel == "" {
		return "", fmt.Errorf("track path %q has no file component", webPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}
