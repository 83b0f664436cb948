// Package localfs is the reference fsiface.FS backend: the native
// filesystem under a single root directory. It mirrors the atomic
// write-via-temp-file and root-escape-guard style of the repo's older
// flat-tree local adapter, generalised to the narrower scan/rename/
// fingerprint contract the reconciler drives.
package localfs

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/syncrules/cloudsync/internal/debris"
	"github.com/syncrules/cloudsync/internal/domain"
	"github.com/syncrules/cloudsync/internal/fsiface"
)

// maxFingerprintBytes bounds which files get a content CRC computed
// during Enumerate; larger files keep a zero CRC and fall back to
// size+mtime comparison, matching the checksum-skip threshold the
// flat-tree adapter used before it.
const maxFingerprintBytes = 100 * 1024 * 1024

// FS is the reference fsiface.FS implementation, rooted at a single
// absolute directory on the local machine.
type FS struct {
	root string
}

// New validates root exists and is a directory, then returns an FS
// rooted there. Paths passed to FS methods are expected to already be
// absolute (the reconciler builds them from the synced tree's own
// root), but every one is still checked against root before use.
func New(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}
	return &FS{root: abs}, nil
}

func (fs *FS) Root() string { return fs.root }

// guard rejects a path that does not resolve under root, the same
// defense the flat-tree adapter applied to its relative paths, adapted
// to the absolute paths this interface actually receives.
func (fs *FS) guard(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(fs.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrPermissionDenied
	}
	return abs, nil
}

type handle struct {
	f    *os.File
	path string
}

func (h *handle) Close() error { return h.f.Close() }

func (fs *FS) Open(ctx context.Context, path string, follow bool) (fsiface.Handle, error) {
	abs, err := fs.guard(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, mapError(err)
	}
	return &handle{f: f, path: abs}, nil
}

func (fs *FS) Enumerate(ctx context.Context, dir fsiface.Handle) ([]fsiface.FsNode, error) {
	h, ok := dir.(*handle)
	if !ok {
		return nil, fmt.Errorf("localfs: foreign handle type %T", dir)
	}
	entries, err := h.f.ReadDir(-1)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]fsiface.FsNode, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, err := entry.Info()
		if err != nil {
			// Vanished between readdir and stat; the next scan will
			// simply omit it.
			continue
		}

		childPath := filepath.Join(h.path, entry.Name())
		node := fsiface.FsNode{
			Localname: entry.Name(),
			Type:      fileType(info),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Fsid:      fsidFromInfo(info),
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
		}

		if node.Type == domain.FileTypeRegular && node.Size <= maxFingerprintBytes {
			if crc, err := crcFile(childPath); err == nil {
				node.Fingerprint = domain.Fingerprint{Size: node.Size, ModTime: node.ModTime, CRC: crc}
			}
		}

		out = append(out, node)
	}
	return out, nil
}

func (fs *FS) StatHandle(ctx context.Context, h fsiface.Handle) (fsiface.Stat, error) {
	hh, ok := h.(*handle)
	if !ok {
		return fsiface.Stat{}, fmt.Errorf("localfs: foreign handle type %T", h)
	}
	info, err := hh.f.Stat()
	if err != nil {
		return fsiface.Stat{}, mapError(err)
	}
	return fsiface.Stat{
		Type:      fileType(info),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Fsid:      fsidForHandle(hh.path, info),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}, nil
}

func (fs *FS) Rename(ctx context.Context, src, dst string) (fsiface.RenameResult, error) {
	srcAbs, err := fs.guard(src)
	if err != nil {
		return fsiface.RenameResult{}, err
	}
	dstAbs, err := fs.guard(dst)
	if err != nil {
		return fsiface.RenameResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return fsiface.RenameResult{}, mapError(err)
	}
	if err := os.Rename(srcAbs, dstAbs); err != nil {
		if os.IsPermission(err) {
			return fsiface.RenameResult{Transient: true}, nil
		}
		return fsiface.RenameResult{}, mapError(err)
	}
	return fsiface.RenameResult{OK: true}, nil
}

func (fs *FS) Mkdir(ctx context.Context, path string) error {
	abs, err := fs.guard(path)
	if err != nil {
		return err
	}
	return mapError(os.MkdirAll(abs, 0o755))
}

// Shortname has no analogue on this platform; a FAT/NTFS-backed
// implementation would resolve the 8.3 alias here.
func (fs *FS) Shortname(ctx context.Context, path string) (string, error) {
	return "", nil
}

func (fs *FS) Fingerprint(ctx context.Context, h fsiface.Handle) (domain.Fingerprint, error) {
	hh, ok := h.(*handle)
	if !ok {
		return domain.Fingerprint{}, fmt.Errorf("localfs: foreign handle type %T", h)
	}
	info, err := hh.f.Stat()
	if err != nil {
		return domain.Fingerprint{}, mapError(err)
	}
	if _, err := hh.f.Seek(0, io.SeekStart); err != nil {
		return domain.Fingerprint{}, err
	}
	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, hh.f); err != nil {
		return domain.Fingerprint{}, err
	}
	return domain.Fingerprint{Size: info.Size(), ModTime: info.ModTime(), CRC: sum.Sum32()}, nil
}

// Notifications returns nil: this reference implementation relies on
// the scheduler's interval rescans rather than an OS-level file watch.
func (fs *FS) Notifications() <-chan fsiface.Event {
	return nil
}

func (fs *FS) PathsContainsDebris(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(debris.DirName(fs.root), abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (fs *FS) VolumeFingerprint(path string) (uint64, error) {
	return volumeFingerprintForPath(path)
}

func (fs *FS) DriveLetter(path string) string {
	return driveLetterForPath(path)
}

func (fs *FS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	abs, err := fs.guard(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, mapError(err)
	}
	return f, nil
}

// tempWriter streams into a sibling temp file and renames it into place
// on Close, so a transfer that dies partway never leaves a truncated
// file at the destination path.
type tempWriter struct {
	f        *os.File
	tempPath string
	destPath string
}

func (w *tempWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *tempWriter) Close() error {
	closeErr := w.f.Close()
	if closeErr != nil {
		os.Remove(w.tempPath)
		return closeErr
	}
	if err := os.Rename(w.tempPath, w.destPath); err != nil {
		os.Remove(w.tempPath)
		return mapError(err)
	}
	return nil
}

func (fs *FS) Write(ctx context.Context, path string) (io.WriteCloser, error) {
	abs, err := fs.guard(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, mapError(err)
	}
	tempPath := abs + ".syncrules.tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return nil, mapError(err)
	}
	return &tempWriter{f: f, tempPath: tempPath, destPath: abs}, nil
}

func fileType(info os.FileInfo) domain.FileType {
	switch {
	case info.IsDir():
		return domain.FileTypeDirectory
	case info.Mode()&os.ModeSymlink != 0:
		return domain.FileTypeSymlink
	default:
		return domain.FileTypeRegular
	}
}

func crcFile(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, f); err != nil {
		return 0, err
	}
	return sum.Sum32(), nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return domain.ErrNotFound
	}
	if os.IsPermission(err) {
		return domain.ErrPermissionDenied
	}
	if os.IsExist(err) {
		return domain.ErrAlreadyExists
	}
	return err
}
