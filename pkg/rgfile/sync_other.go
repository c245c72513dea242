//go:build !darwin

package rgfile

import "os"

func syncFile(f *os.File) error {
	return f.Sync()
}
