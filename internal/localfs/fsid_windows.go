//go:build windows
// +build windows

package localfs

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/syncrules/cloudsync/internal/domain"
)

// fsidFromInfo is best-effort on Windows: os.FileInfo carries no file
// index, so a directory-entry scan falls back to UndefFSID and the
// move detector relies on its mtime/size secondary guard instead. A
// freshly Open'd handle (fsidForPath) can still resolve a real id.
func fsidFromInfo(info os.FileInfo) domain.FSID {
	return domain.UndefFSID
}

func fsidForHandle(path string, info os.FileInfo) domain.FSID {
	return fsidForPath(path)
}

func fsidForPath(path string) domain.FSID {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return domain.UndefFSID
	}
	h, err := syscall.CreateFile(p, 0,
		syscall.FILE_SHARE_READ|syscall.FILE_SHARE_WRITE|syscall.FILE_SHARE_DELETE,
		nil, syscall.OPEN_EXISTING, syscall.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return domain.UndefFSID
	}
	defer syscall.CloseHandle(h)

	var info syscall.ByHandleFileInformation
	if err := syscall.GetFileInformationByHandle(h, &info); err != nil {
		return domain.UndefFSID
	}
	return domain.FSID(uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow))
}

func volumeFingerprintForPath(path string) (uint64, error) {
	vol := filepath.VolumeName(path) + `\`
	p, err := syscall.UTF16PtrFromString(vol)
	if err != nil {
		return 0, err
	}
	var serial uint32
	if err := syscall.GetVolumeInformation(p, nil, 0, &serial, nil, nil, nil, 0); err != nil {
		return 0, err
	}
	return uint64(serial), nil
}

func driveLetterForPath(path string) string {
	return filepath.VolumeName(path)
}
