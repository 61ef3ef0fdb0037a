package pool

import "testing"

func TestGetBufferSizes(t *testing.T) {
	tests := []struct {
		size    int
		wantCap int
	}{
		{256, SmallBufferSize},
		{SmallBufferSize, SmallBufferSize},
		{SmallBufferSize + 1, MediumBufferSize},
		{MediumBufferSize, MediumBufferSize},
		{LargeBufferSize, LargeBufferSize},
		{LargeBufferSize + 1, LargeBufferSize + 1}, // above the largest class
	}
	for _, tt := range tests {
		buf := GetBuffer(tt.size)
		if len(buf) != tt.size {
			t.Errorf("GetBuffer(%d) len = %d, want %d", tt.size, len(buf), tt.size)
		}
		if cap(buf) != tt.wantCap {
			t.Errorf("GetBuffer(%d) cap = %d, want %d", tt.size, cap(buf), tt.wantCap)
		}
		PutBuffer(buf)
	}
}

func TestPutBufferClears(t *testing.T) {
	buf := GetBuffer(64)
	for i := range buf {
		buf[i] = 0xFF
	}
	PutBuffer(buf)

	again := GetBuffer(64)
	defer PutBuffer(again)
	for i, b := range again {
		if b != 0 {
			t.Fatalf("recycled buffer not cleared at index %d", i)
		}
	}
}
