//go:build unix

package archiver

import (
	"os"
	"syscall"
)

// Advisory lock while appending, in case another yt-dlp instance writes
// the same archive. Best effort; callers fall back to a plain append.
func flock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

func funlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
