package simd

// NCMCipherOptimized applies the 256-byte keybox XOR with the inner loop
// unrolled. The table is copied at construction so the hot path never
// shares state with the builder.
type NCMCipherOptimized struct {
	box [256]byte
}

func NewNCMCipherOptimized(box []byte) *NCMCipherOptimized {
	if len(box) != 256 {
		return nil
	}
	c := &NCMCipherOptimized{}
	copy(c.box[:], box)
	return c
}

// Decrypt XORs buf in place with box[(offset+i) & 0xff].
func (c *NCMCipherOptimized) Decrypt(buf []byte, offset int) {
	i := 0
	// 8路展开处理对齐部分
	for ; i+8 <= len(buf); i += 8 {
		p := offset + i
		buf[i+0] ^= c.box[(p+0)&0xff]
		buf[i+1] ^= c.box[(p+1)&0xff]
		buf[i+2] ^= c.box[(p+2)&0xff]
		buf[i+3] ^= c.box[(p+3)&0xff]
		buf[i+4] ^= c.box[(p+4)&0xff]
		buf[i+5] ^= c.box[(p+5)&0xff]
		buf[i+6] ^= c.box[(p+6)&0xff]
		buf[i+7] ^= c.box[(p+7)&0xff]
	}
	for ; i < len(buf); i++ {
		buf[i] ^= c.box[(offset+i)&0xff]
	}
}

// XORConst XORs every byte of data with a constant mask, 8 bytes at a
// time. Used to undo the section obfuscation masks.
func XORConst(data []byte, mask byte) {
	i := 0
	for ; i+8 <= len(data); i += 8 {
		data[i+0] ^= mask
		data[i+1] ^= mask
		data[i+2] ^= mask
		data[i+3] ^= mask
		data[i+4] ^= mask
		data[i+5] ^= mask
		data[i+6] ^= mask
		data[i+7] ^= mask
	}
	for ; i < len(data); i++ {
		data[i] ^= mask
	}
}
