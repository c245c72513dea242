//go:build unix

package mmap

import "golang.org/x/sys/unix"

func mmap(fd, length int) ([]byte, error) {
	return unix.Mmap(fd, 0, length, unix.PROT_READ, unix.MAP_SHARED)
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}

func madvise(b []byte, a Advice) error {
	advice := unix.MADV_NORMAL
	switch a {
	case Sequential:
		advice = unix.MADV_SEQUENTIAL
	case Random:
		advice = unix.MADV_RANDOM
	case WillNeed:
		advice = unix.MADV_WILLNEED
	}
	return unix.Madvise(b, advice)
}
