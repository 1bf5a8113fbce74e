package target

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/yaklabco/buildhook/internal/log"
)

var (
	// errNewer is an ugly sentinel error to cause afero.Walk to abort
	// as soon as a newer file is encountered.
	errNewer = errors.New("newer item encountered")
)

// Epoch is the threshold used when there is no reference file yet.
var Epoch = time.Unix(0, 0) //nolint:gochecknoglobals // fixed reference time

// SkipFunc reports whether the entry at rel (relative to the walk root, slash
// separated) should be left out. Returning true for a directory prunes it.
type SkipFunc func(rel string, isDir bool) bool

// FirstNewer walks root and returns the first file (or symlink to a file)
// whose modification time is strictly after threshold. The walk stops at that
// file. A missing root is not an error.
func FirstNewer(fsys afero.Fs, threshold time.Time, root string, skip SkipFunc) (string, bool, error) {
	isDir, err := afero.IsDir(fsys, root)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !isDir {
		return "", false, nil
	}

	var found string
	err = walkFiles(fsys, root, skip, func(path string, info os.FileInfo) error {
		if info.ModTime().After(threshold) {
			found = path
			return errNewer
		}
		return nil
	})
	if errors.Is(err, errNewer) {
		return found, true, nil
	}
	return "", false, err
}

// walkFiles calls fn for every regular file below root, following symlinks
// to files but not into directories. Unreadable entries below root are
// skipped; only an unreadable root is an error.
func walkFiles(fsys afero.Fs, root string, skip SkipFunc, fn func(path string, info os.FileInfo) error) error {
	// A trailing separator makes lstat follow a symlinked root.
	walkRoot := root
	if lst, ok := fsys.(afero.Lstater); ok {
		if info, _, err := lst.LstatIfPossible(root); err == nil && info.Mode()&fs.ModeSymlink != 0 {
			walkRoot = root + string(filepath.Separator)
		}
	}

	return afero.Walk(fsys, walkRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == walkRoot {
				return err
			}
			slog.Debug("skipping unreadable entry", slog.String(log.Path, path), slog.Any(log.Error, err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if skip != nil && path != walkRoot {
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil && skip(filepath.ToSlash(rel), info.IsDir()) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			target, statErr := fsys.Stat(path)
			if statErr != nil {
				slog.Debug("skipping dangling symlink", slog.String(log.Path, path))
				return nil
			}
			info = target
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return fn(path, info)
	})
}

// ModTimeOrEpoch returns the modification time of path, or Epoch when it
// does not exist. The boolean reports whether the file exists.
func ModTimeOrEpoch(fsys afero.Fs, path string) (time.Time, bool, error) {
	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Epoch, false, nil
	}
	if err != nil {
		return Epoch, false, err
	}
	return info.ModTime(), true, nil
}

// PathNewer checks whether any of the sources are newer than the target time.
// It stops at the first newer file it encounters.
func PathNewer(fsys afero.Fs, target time.Time, sources ...string) (bool, error) {
	for _, source := range sources {
		stat, err := fsys.Stat(source)
		if err != nil {
			return false, err
		}
		if stat.ModTime().After(target) {
			return true, nil
		}
	}
	return false, nil
}

// NewestModTime recurses root and finds the newest regular file in it,
// returning its path and ModTime. An empty or missing root yields the zero
// time and an empty path.
func NewestModTime(fsys afero.Fs, root string, skip SkipFunc) (string, time.Time, error) {
	var newestPath string
	newestTime := time.Time{}

	if _, err := fsys.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return "", newestTime, nil
	}

	err := walkFiles(fsys, root, skip, func(path string, info os.FileInfo) error {
		if mTime := info.ModTime(); mTime.After(newestTime) {
			newestTime = mTime
			newestPath = path
		}
		return nil
	})
	if err != nil {
		return "", newestTime, err
	}
	return newestPath, newestTime, nil
}
