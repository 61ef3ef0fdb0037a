package pool

import "sync"

// 预定义的缓冲区大小
const (
	SmallBufferSize  = 4 * 1024   // header 和密钥小节
	MediumBufferSize = 64 * 1024  // 音频分块解密
	LargeBufferSize  = 1024 * 1024
)

var sizes = []int{SmallBufferSize, MediumBufferSize, LargeBufferSize}

var pools = func() map[int]*sync.Pool {
	m := make(map[int]*sync.Pool, len(sizes))
	for _, size := range sizes {
		size := size
		m[size] = &sync.Pool{
			New: func() any { return make([]byte, size) },
		}
	}
	return m
}()

// GetBuffer returns a buffer of exactly size bytes, drawn from the nearest
// pooled class. Sizes above the largest class are allocated directly.
func GetBuffer(size int) []byte {
	for _, class := range sizes {
		if size <= class {
			return pools[class].Get().([]byte)[:size]
		}
	}
	return make([]byte, size)
}

// PutBuffer returns a buffer to its pool. Buffers that did not come from a
// pooled class are left for the GC.
func PutBuffer(buf []byte) {
	c := cap(buf)
	if p, ok := pools[c]; ok {
		clear(buf[:c])
		p.Put(buf[:c])
	}
}

// GetMediumBuffer returns a 64KB buffer, the audio decryption chunk size.
func GetMediumBuffer() []byte {
	return GetBuffer(MediumBufferSize)
}
