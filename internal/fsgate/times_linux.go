//go:build linux

package fsgate

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// fileTimes returns the last-access and birth time of path. statx reports
// birth time only on filesystems that record it; a zero time means unknown.
func fileTimes(path string, info fs.FileInfo) (atime, btime time.Time) {
	var stx unix.Statx_t
	mask := unix.STATX_ATIME | unix.STATX_BTIME
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, mask, &stx); err != nil {
		return info.ModTime(), time.Time{}
	}
	if stx.Mask&unix.STATX_ATIME != 0 {
		atime = time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		btime = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
	return atime, btime
}
