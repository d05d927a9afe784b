// Package shm wraps POSIX shared memory objects behind a small mmap-based
// segment type. Segments live under /dev/shm and are shared by name between
// producer and consumer processes.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// ErrInvalidName reports a segment name that cannot be used as a shared
// memory object name.
var ErrInvalidName = errors.New("invalid segment name")

// Segment is a memory-mapped shared memory object. The mapping is shared
// (MAP_SHARED): writes are visible to every process that maps the same name.
type Segment struct {
	name string
	file *os.File
	data []byte
}

// Sanitize turns a service name like "camera/frames" into a flat shm object
// name. Slashes separate namespaces in service names but are not allowed in
// shm object names.
func Sanitize(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

func objectPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(shmDir, name), nil
}

// Create makes a new shared memory object of the given size and maps it.
// It fails if an object with the same name already exists; check with
// errors.Is(err, os.ErrExist) to attach instead.
func Create(name string, size int) (*Segment, error) {
	p, err := objectPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		f.Close()
		os.Remove(p)
		return nil, fmt.Errorf("ftruncate %s: %w", name, err)
	}
	seg, err := mapSegment(name, f, size)
	if err != nil {
		// mapSegment closed the file; remove the object so a failed create
		// does not leave a name behind.
		os.Remove(p)
		return nil, err
	}
	return seg, nil
}

// Open attaches to an existing shared memory object. The mapping size is
// taken from the object itself.
func Open(name string) (*Segment, error) {
	p, err := objectPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return mapSegment(name, f, int(info.Size()))
}

func mapSegment(name string, f *os.File, size int) (*Segment, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &Segment{
		name: name,
		file: f,
		data: data,
	}, nil
}

func (s *Segment) Name() string { return s.name }

func (s *Segment) Size() int { return len(s.data) }

// Bytes returns the mapped region. The base address is page-aligned.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps the segment and closes the underlying object. The object
// itself stays available to other processes until Unlink is called.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Unlink removes the shared memory object name. Existing mappings stay valid
// until every process unmaps.
func (s *Segment) Unlink() error {
	p, err := objectPath(s.name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}
