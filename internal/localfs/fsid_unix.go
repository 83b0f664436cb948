//go:build !windows
// +build !windows

package localfs

import (
	"os"
	"syscall"

	"github.com/syncrules/cloudsync/internal/domain"
)

func fsidFromInfo(info os.FileInfo) domain.FSID {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return domain.UndefFSID
	}
	return domain.FSID(st.Ino)
}

func fsidForHandle(path string, info os.FileInfo) domain.FSID {
	return fsidFromInfo(info)
}

func volumeFingerprintForPath(path string) (uint64, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, mapError(err)
	}
	return uint64(st.Dev), nil
}

func driveLetterForPath(path string) string {
	return ""
}
