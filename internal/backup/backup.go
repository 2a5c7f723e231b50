// Package backup writes the pre-migration safety archive.
package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ManifestName is the archive entry holding the session payload.
const ManifestName = "backup.json"

// FileBackuper archives a session payload together with the files of the
// application data directory.
type FileBackuper struct {
	// DataDir is copied into the archive under data/. Empty means no
	// files are archived.
	DataDir string
	// Exclude lists absolute or DataDir-relative paths that are left out,
	// typically the live database and the backup directory itself.
	Exclude []string
	Logger  *slog.Logger
}

// Backup writes destDir/filename atomically and returns its path. When
// skipFiles is set only the payload is archived.
func (b *FileBackuper) Backup(ctx context.Context, destDir, filename string, payload []byte, skipFiles bool) (string, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid backup filename %q", filename)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, "."+filename+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	if err := writeEntry(zw, ManifestName, payload); err != nil {
		return "", err
	}

	files := 0
	if !skipFiles && b.DataDir != "" {
		files, err = b.addDataDir(ctx, zw, destDir)
		if err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish backup archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync backup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close backup file: %w", err)
	}

	path := filepath.Join(destDir, filename)
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		tmp = nil
		return "", fmt.Errorf("rename backup file: %w", err)
	}
	tmp = nil

	logger.Info("backup archive written", "path", path, "files", files, "skipped_files", skipFiles)
	return path, nil
}

func (b *FileBackuper) addDataDir(ctx context.Context, zw *zip.Writer, destDir string) (int, error) {
	root, err := filepath.Abs(b.DataDir)
	if err != nil {
		return 0, fmt.Errorf("resolve data directory: %w", err)
	}
	skip := map[string]bool{}
	if abs, err := filepath.Abs(destDir); err == nil {
		skip[abs] = true
	}
	for _, ex := range b.Exclude {
		if !filepath.IsAbs(ex) {
			ex = filepath.Join(root, ex)
		}
		skip[filepath.Clean(ex)] = true
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if skip[path] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := copyFile(zw, path, "data/"+filepath.ToSlash(rel)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive data directory: %w", err)
	}
	return count, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}

func copyFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", strings.TrimPrefix(name, "data/"), err)
	}
	return nil
}
