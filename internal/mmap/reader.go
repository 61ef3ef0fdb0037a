//go:build !windows

package mmap

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

// minMmapSize 小文件直接走常规读取，映射不划算
const minMmapSize = 1024 * 1024

// Reader is a read-only memory-mapped view of a container file. Large
// inputs avoid a second copy of the encrypted payload in the page cache.
type Reader struct {
	file   *os.File
	data   []byte
	offset int64
	size   int64
}

// Open maps filename read-only. Files below the size threshold are
// rejected so the caller falls back to a regular file handle.
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

	data, err := syscall.Mmap(int(file.Fd()), 0, int(size),
		syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &Reader{file: file, data: data, size: size}, nil
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
		if unmapErr := syscall.Munmap(r.data); unmapErr != nil {
			err = fmt.Errorf("munmap: %w", unmapErr)
		}
		r.data = nil
	}
	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close: %w", closeErr)
		}
		r.file = nil
	}
	return err
}
