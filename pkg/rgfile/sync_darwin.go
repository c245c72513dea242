//go:build darwin

package rgfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncFile asks the drive to flush its cache; fsync alone does not on darwin.
func syncFile(f *os.File) error {
	if _, err := unix.FcntlInt(f.Fd(), unix.F_FULLFSYNC, 0); err == nil {
		return nil
	}
	return f.Sync()
}
