package fsutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// dirPair is one pending directory copy.
type dirPair struct {
	src string
	dst string
}

// CopyStats reports what CopyTree copied.
type CopyStats struct {
	Files       int
	Directories int
	Links       int
	Skipped     []string // entries that could not be reproduced at dst
}

// CopyTree copies the directory src to dst, which must not exist yet.
// Directories are created as encountered, and every regular file keeps its
// mode and modification time. Symbolic links are recreated with the same
// target when fs supports links; links on other filesystems and special
// files such as devices or pipes are listed in Skipped. Traversal uses an
// explicit queue of pending directory pairs, so tree depth is bounded only
// by memory.
//
// ctx is checked before each file. On error the partially copied tree is
// left in place; callers own the cleanup of dst.
func CopyTree(ctx context.Context, fs afero.Fs, src, dst string) (CopyStats, error) {
	var stats CopyStats

	rootInfo, err := fs.Stat(src)
	if err != nil {
		return stats, fmt.Errorf("stat %s: %w", src, err)
	}
	if !rootInfo.IsDir() {
		return stats, fmt.Errorf("%s is not a directory", src)
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return stats, fmt.Errorf("creating parent of %s: %w", dst, err)
	}
	// Mkdir, not MkdirAll: an existing destination is an error.
	if err := fs.Mkdir(dst, rootInfo.Mode().Perm()); err != nil {
		return stats, fmt.Errorf("creating %s: %w", dst, err)
	}
	stats.Directories++

	queue := []dirPair{{src: src, dst: dst}}
	for len(queue) > 0 {
		pair := queue[0]
		queue = queue[1:]

		entries, err := afero.ReadDir(fs, pair.src)
		if err != nil {
			return stats, fmt.Errorf("reading %s: %w", pair.src, err)
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			from := filepath.Join(pair.src, entry.Name())
			to := filepath.Join(pair.dst, entry.Name())

			switch {
			case entry.IsDir():
				if err := fs.Mkdir(to, entry.Mode().Perm()); err != nil {
					return stats, fmt.Errorf("creating %s: %w", to, err)
				}
				stats.Directories++
				queue = append(queue, dirPair{src: from, dst: to})
			case entry.Mode().IsRegular():
				if err := copyFile(fs, from, to, entry); err != nil {
					return stats, err
				}
				stats.Files++
			case entry.Mode()&os.ModeSymlink != 0:
				copied, err := copyLink(fs, from, to)
				if err != nil {
					return stats, err
				}
				if !copied {
					stats.Skipped = append(stats.Skipped, from)
					continue
				}
				stats.Links++
			default:
				stats.Skipped = append(stats.Skipped, from)
			}
		}
	}

	return stats, nil
}

// copyFile copies one regular file and restores its mode and mtime.
func copyFile(fs afero.Fs, from, to string, info os.FileInfo) error {
	in, err := fs.Open(from)
	if err != nil {
		return fmt.Errorf("opening %s: %w", from, err)
	}
	defer in.Close()

	out, err := fs.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", from, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", to, err)
	}

	if err := fs.Chmod(to, info.Mode().Perm()); err != nil {
		return fmt.Errorf("preserving mode of %s: %w", to, err)
	}
	if err := fs.Chtimes(to, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserving mtime of %s: %w", to, err)
	}
	return nil
}

// copyLink recreates the symbolic link from at to. It reports false when fs
// cannot read or create links.
func copyLink(fs afero.Fs, from, to string) (bool, error) {
	reader, canRead := fs.(afero.LinkReader)
	linker, canLink := fs.(afero.Linker)
	if !canRead || !canLink {
		return false, nil
	}
	target, err := reader.ReadlinkIfPossible(from)
	if err != nil {
		return false, fmt.Errorf("reading link %s: %w", from, err)
	}
	if err := linker.SymlinkIfPossible(target, to); err != nil {
		return false, fmt.Errorf("creating link %s: %w", to, err)
	}
	return true, nil
}

// CountFiles counts regular files and symbolic links under root, skipping
// any entry whose path relative to root is listed in exclude. Links are
// counted, not followed.
func CountFiles(fs afero.Fs, root string, exclude ...string) (int, error) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[filepath.Clean(e)] = true
	}

	count := 0
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !skip[rel] {
			count++
		}
		return nil
	})
	return count, err
}
