//go:build linux

package memsys

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// memfdRegion is an anonymous memory file. Every mapping maps the whole file
// MAP_SHARED, so writes through one mapping are visible through all others.
type memfdRegion struct {
	fd   int
	size uint64
}

func newRegion(size uint64) (region, error) {
	fd, err := unix.MemfdCreate("mojo-wire-buffer", unix.MFD_CLOEXEC)
	if err != nil {
		Logger().Debug("memfd unavailable, using heap memory", zap.Error(err))
		return newHeapRegion(size), nil
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &memfdRegion{fd: fd, size: size}, nil
}

func (r *memfdRegion) mapRange(offset, length uint64, readOnly bool) ([]byte, func() error, error) {
	prot := unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
	}
	full, err := unix.Mmap(r.fd, 0, int(r.size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	end := offset + length
	return full[offset:end:end], func() error { return unix.Munmap(full) }, nil
}

func (r *memfdRegion) release() error {
	return unix.Close(r.fd)
}
