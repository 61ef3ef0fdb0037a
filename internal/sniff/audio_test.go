package sniff

import "testing"

func TestAudioExtension(t *testing.T) {
	// a valid MPEG1 Layer3 frame header: sync + 128kbps + 44.1kHz
	mp3Frame := []byte{0xFF, 0xFB, 0x90, 0x00}

	tests := []struct {
		name   string
		header []byte
		want   string
		wantOK bool
	}{
		{
			name:   "flac",
			header: append([]byte("fLaC"), make([]byte, 12)...),
			want:   ".flac",
			wantOK: true,
		},
		{
			name:   "mp3 with id3 tag",
			header: append([]byte("ID3"), make([]byte, 13)...),
			want:   ".mp3",
			wantOK: true,
		},
		{
			name:   "mp3 bare frame",
			header: append(mp3Frame, make([]byte, 12)...),
			want:   ".mp3",
			wantOK: true,
		},
		{
			name:   "ogg",
			header: append([]byte("OggS"), make([]byte, 12)...),
			want:   ".ogg",
			wantOK: true,
		},
		{
			name:   "wav",
			header: append([]byte("RIFF"), make([]byte, 12)...),
			want:   ".wav",
			wantOK: true,
		},
		{
			name:   "unknown payload",
			header: make([]byte, 16),
			wantOK: false,
		},
		{
			name:   "bad frame sync",
			header: []byte{0xFF, 0x00, 0x90, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			wantOK: false,
		},
		{
			name:   "reserved mp3 bitrate",
			header: []byte{0xFF, 0xFB, 0xF0, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AudioExtension(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("AudioExtension() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("AudioExtension() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImageExtension(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
	jpg := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	if ext, ok := ImageExtension(png); !ok || ext != ".png" {
		t.Errorf("ImageExtension(png) = %q, %v", ext, ok)
	}
	if ext, ok := ImageExtension(jpg); !ok || ext != ".jpg" {
		t.Errorf("ImageExtension(jpg) = %q, %v", ext, ok)
	}
	if _, ok := ImageExtension([]byte("not an image")); ok {
		t.Error("ImageExtension() matched garbage")
	}

	if mime := ImageMIME(png); mime != "image/png" {
		t.Errorf("ImageMIME(png) = %q", mime)
	}
	if mime := ImageMIME(jpg); mime != "image/jpeg" {
		t.Errorf("ImageMIME(jpg) = %q", mime)
	}
}
