// Package scanner implements the filesystem prober (§4.1) and the periodic
// scanner task (§4.8) that feeds newly discovered files into the identity
// registry and onto the dispatcher queue.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
)

// Entry is a single regular file discovered by a walk, carrying the identity
// fields the registry needs.
type Entry struct {
	Path     string
	Size     int64
	DeviceID uint64
	Inode    uint64
}

// WalkOptions configures a single probe of the source root, mirroring the
// scanner-relevant configuration keys (§6).
type WalkOptions struct {
	Root           string
	Extensions     []string // lower-cased, leading dot, e.g. [".mkv", ".mp4"]
	MinSizeBytes   int64
	ExcludeDir     string // absolute path to prune from the walk; empty disables
	FollowSymlinks bool
}

type dirIdentity struct {
	device uint64
	inode  uint64
}

type walker struct {
	opts    WalkOptions
	logger  hclog.Logger
	allow   map[string]struct{}
	exclude string
	visited map[dirIdentity]struct{}
	entries []Entry
}

// Walk performs one full, synchronous pass over opts.Root, returning every
// regular file that passes the extension and size filters. Unreadable
// entries are logged and skipped rather than aborting the walk. Directory
// symlinks are only descended into when FollowSymlinks is set; when they
// are, each directory's (device, inode) identity is tracked so a symlink
// cycle is entered at most once. A symlink to a regular file is always
// eligible, independent of FollowSymlinks — only directory traversal is
// gated by that flag.
func Walk(ctx context.Context, opts WalkOptions, logger hclog.Logger) ([]Entry, error) {
	allow := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allow[strings.ToLower(ext)] = struct{}{}
	}

	exclude := ""
	if opts.ExcludeDir != "" {
		if abs, err := filepath.Abs(opts.ExcludeDir); err == nil {
			exclude = abs
		} else {
			exclude = opts.ExcludeDir
		}
	}

	w := &walker{
		opts:    opts,
		logger:  logger,
		allow:   allow,
		exclude: exclude,
		visited: make(map[dirIdentity]struct{}),
	}

	if err := w.walkDir(ctx, opts.Root, true); err != nil {
		return w.entries, err
	}
	return w.entries, nil
}

// walkDir visits root. isRootCall is true only for the initial call, so the
// configured root itself is always descended into even if, unusually, it is
// itself a symlink.
func (w *walker) walkDir(ctx context.Context, dir string, isRootCall bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if w.exclude != "" {
		if abs, err := filepath.Abs(dir); err == nil && (abs == w.exclude || strings.HasPrefix(abs, w.exclude+string(filepath.Separator))) {
			return nil
		}
	}

	if !isRootCall {
		lst, err := os.Lstat(dir)
		if err != nil {
			w.logger.Warn("skipping unreadable directory", "path", dir, "error", err)
			return nil
		}
		if lst.Mode()&os.ModeSymlink != 0 && !w.opts.FollowSymlinks {
			return nil
		}
	}

	if w.opts.FollowSymlinks {
		info, err := os.Stat(dir)
		if err != nil {
			w.logger.Warn("skipping unreadable directory", "path", dir, "error", err)
			return nil
		}
		if deviceID, inode, ok := identity(info); ok {
			id := dirIdentity{device: deviceID, inode: inode}
			if _, seen := w.visited[id]; seen {
				return nil
			}
			w.visited[id] = struct{}{}
		}
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("skipping unreadable directory", "path", dir, "error", err)
		return nil
	}

	for _, de := range dirEntries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(dir, de.Name())

		if de.IsDir() {
			if err := w.walkDir(ctx, path, false); err != nil {
				return err
			}
			continue
		}

		if de.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				w.logger.Warn("skipping broken symlink", "path", path, "error", err)
				continue
			}
			if info.IsDir() {
				if err := w.walkDir(ctx, path, false); err != nil {
					return err
				}
				continue
			}
			w.considerFile(path, info)
			continue
		}

		info, err := de.Info()
		if err != nil {
			w.logger.Warn("skipping file with unreadable metadata", "path", path, "error", err)
			continue
		}
		w.considerFile(path, info)
	}
	return nil
}

func (w *walker) considerFile(path string, info os.FileInfo) {
	if !info.Mode().IsRegular() {
		return
	}
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := w.allow[ext]; !ok {
		return
	}
	if info.Size() < w.opts.MinSizeBytes {
		return
	}
	deviceID, inode, ok := identity(info)
	if !ok {
		w.logger.Warn("skipping file with no platform identity", "path", path)
		return
	}
	w.entries = append(w.entries, Entry{
		Path:     path,
		Size:     info.Size(),
		DeviceID: deviceID,
		Inode:    inode,
	})
}

func identity(info os.FileInfo) (deviceID, inode uint64, ok bool) {
	stat, isStatT := info.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, false
	}
	return uint64(stat.Dev), uint64(stat.Ino), true
}
