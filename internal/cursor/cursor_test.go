package cursor

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadSection(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantErr bool
	}{
		{
			name:  "normal section",
			input: []byte{0x03, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC},
			want:  []byte{0xAA, 0xBB, 0xCC},
		},
		{
			name:  "zero length section",
			input: []byte{0x00, 0x00, 0x00, 0x00},
			want:  nil,
		},
		{
			name:    "length exceeds payload",
			input:   []byte{0x10, 0x00, 0x00, 0x00, 0xAA},
			wantErr: true,
		},
		{
			name:    "truncated length prefix",
			input:   []byte{0x03, 0x00},
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   nil,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(bytes.NewReader(tt.input))
			got, err := c.ReadSection()
			if tt.wantErr {
				if !errors.Is(err, ErrTruncated) {
					t.Errorf("ReadSection() error = %v, want ErrTruncated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadSection() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ReadSection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadUint32LE(t *testing.T) {
	c := New(bytes.NewReader([]byte{0x78, 0x56, 0x34, 0x12}))
	got, err := c.ReadUint32LE()
	if err != nil {
		t.Fatalf("ReadUint32LE() error = %v", err)
	}
	if got != 0x12345678 {
		t.Errorf("ReadUint32LE() = %#x, want 0x12345678", got)
	}
	if c.Pos() != 4 {
		t.Errorf("Pos() = %d, want 4", c.Pos())
	}
}

func TestSkipTracksPosition(t *testing.T) {
	c := New(bytes.NewReader(make([]byte, 10)))
	if err := c.Skip(2); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if _, err := c.ReadExact(3); err != nil {
		t.Fatalf("ReadExact() error = %v", err)
	}
	if c.Pos() != 5 {
		t.Errorf("Pos() = %d, want 5", c.Pos())
	}
}

func TestSkipPastEnd(t *testing.T) {
	c := New(bytes.NewReader(make([]byte, 3)))
	if err := c.Skip(10); !errors.Is(err, ErrTruncated) {
		t.Errorf("Skip() error = %v, want ErrTruncated", err)
	}
}
