//go:build windows

package mmap

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"unsafe"
)

const minMmapSize = 1024 * 1024

const (
	fileMapRead  = 0x0004
	pageReadonly = 0x02
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	procCreateFileMapping = kernel32.NewProc("CreateFileMappingW")
	procMapViewOfFile     = kernel32.NewProc("MapViewOfFile")
	procUnmapViewOfFile   = kernel32.NewProc("UnmapViewOfFile")
	procCloseHandle       = kernel32.NewProc("CloseHandle")
)

// Reader is a read-only memory-mapped view of a container file.
type Reader struct {
	file    *os.File
	data    []byte
	mapping uintptr
	offset  int64
	size    int64
}

// Open maps filename read-only via CreateFileMapping/MapViewOfFile.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("mmap open: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap stat: %w", err)
	}
	size := stat.Size()
	if size < minMmapSize {
		file.Close()
		return nil, fmt.Errorf("mmap: file too small (%d bytes)", size)
	}

	mapping, _, callErr := procCreateFileMapping.Call(
		file.Fd(), 0, pageReadonly,
		uintptr(size>>32), uintptr(size&0xFFFFFFFF), 0)
	if mapping == 0 {
		file.Close()
		return nil, fmt.Errorf("mmap: CreateFileMapping: %v", callErr)
	}

	view, _, callErr := procMapViewOfFile.Call(mapping, fileMapRead, 0, 0, uintptr(size))
	if view == 0 {
		procCloseHandle.Call(mapping)
		file.Close()
		return nil, fmt.Errorf("mmap: MapViewOfFile: %v", callErr)
	}

	return &Reader{
		file:    file,
		data:    unsafe.Slice((*byte)(unsafe.Pointer(view)), size),
		mapping: mapping,
		size:    size,
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.offset:])
	r.offset += int64(n)
	return n, nil
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("mmap: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("mmap: negative position %d", abs)
	}
	r.offset = abs
	return abs, nil
}

func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Close() error {
	var err error
	if r.data != nil {
		ptr := uintptr(unsafe.Pointer(&r.data[0]))
		if ret, _, callErr := procUnmapViewOfFile.Call(ptr); ret == 0 {
			err = fmt.Errorf("mmap: UnmapViewOfFile: %v", callErr)
		}
		r.data = nil
	}
	if r.mapping != 0 {
		procCloseHandle.Call(r.mapping)
		r.mapping = 0
	}
	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.file = nil
	}
	return err
}
