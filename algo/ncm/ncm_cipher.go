package ncm

import (
	"ncmdump.dev/cli/internal/pool"
	"ncmdump.dev/cli/internal/simd"
)

type ncmCipher struct {
	box       []byte
	optimized *simd.NCMCipherOptimized
}

func newNcmCipher(key []byte) *ncmCipher {
	box := buildKeyBox(key)
	return &ncmCipher{
		box:       box,
		optimized: simd.NewNCMCipherOptimized(box),
	}
}

// Decrypt transforms buf in place. offset is the absolute position of
// buf[0] in the audio section; the transform has no cross-byte state, so
// any range may be processed independently.
func (c *ncmCipher) Decrypt(buf []byte, offset int) {
	// 大缓冲区走展开的快速路径
	if len(buf) >= 64 && c.optimized != nil {
		c.optimized.Decrypt(buf, offset)
	} else {
		c.decryptStandard(buf, offset)
	}
}

func (c *ncmCipher) decryptStandard(buf []byte, offset int) {
	for i := 0; i < len(buf); i++ {
		buf[i] ^= c.box[(i+offset)&0xff]
	}
}

// buildKeyBox expands the recovered audio key into the fixed 256-byte
// substitution table. First an RC4-style key schedule over S, then the
// format's own extraction step: the (i+1) shift and the double lookup are
// part of the wire format, NOT textbook RC4 keystream generation, and the
// resulting table is indexed directly by audio offset.
func buildKeyBox(key []byte) []byte {
	tmp := pool.GetBuffer(256)
	defer pool.PutBuffer(tmp)

	for i := 0; i < 256; i++ {
		tmp[i] = byte(i)
	}

	var j byte
	for i := 0; i < 256; i++ {
		j = tmp[i] + j + key[i%len(key)]
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}

	box := make([]byte, 256)
	for i := 0; i < 256; i++ {
		k1 := byte(i + 1)
		s1 := tmp[k1]
		s2 := tmp[k1+s1]
		box[i] = tmp[s1+s2]
	}
	return box
}
