// Package shm maps the shared memory that the harness and the fuzzer use to
// exchange inputs, results, and bitmaps.
package shm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// Dir is where POSIX shared-memory objects live.
var Dir = "/dev/shm"

// A Region is a shared memory mapping.
type Region struct {
	path string
	data []byte
}

// PathOf returns the file that backs the shared-memory object name.
func PathOf(name string) string {
	return filepath.Join(Dir, strings.TrimPrefix(name, "/"))
}

// Open maps an existing shared-memory object. If size is zero, the whole
// object is mapped.
func Open(name string, size int) (*Region, error) {
	return OpenFile(PathOf(name), size)
}

// Create creates a shared-memory object of the given size and maps it.
func Create(name string, size int) (*Region, error) {
	return CreateFile(PathOf(name), size)
}

// OpenFile maps an existing file. If size is zero, the whole file is mapped.
// A size beyond the end of the file is not valid, since touching the pages
// past the end raises SIGBUS.
func OpenFile(path string, size int) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "opening shared memory")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Annotatef(err, "sizing shared memory")
	}

	switch {
	case size == 0:
		size = int(info.Size())
	case int64(size) > info.Size():
		return nil, errors.NotValidf("mapping %d bytes of %s with %d bytes",
			size, path, info.Size())
	}

	return mmap(f, path, size)
}

// CreateFile creates or truncates a file to size bytes and maps it.
func CreateFile(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.NotValidf("shared memory size %d", size)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Annotatef(err, "creating shared memory")
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, errors.Annotatef(err, "sizing shared memory")
	}

	return mmap(f, path, size)
}

func mmap(f *os.File, path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.NotValidf("shared memory size %d", size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Annotatef(err, "mapping %s", path)
	}

	return &Region{path: path, data: data}, nil
}

// Bytes returns the mapped memory.
func (r *Region) Bytes() []byte {
	return r.data
}

// Size returns the size of the mapping.
func (r *Region) Size() int {
	return len(r.data)
}

// Path returns the file that backs the region.
func (r *Region) Path() string {
	return r.path
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}

	err := unix.Munmap(r.data)
	r.data = nil

	return errors.Annotatef(err, "unmapping %s", r.path)
}

// Unlink removes the backing file. Existing mappings stay valid.
func (r *Region) Unlink() error {
	return errors.Annotatef(os.Remove(r.path), "removing %s", r.path)
}
