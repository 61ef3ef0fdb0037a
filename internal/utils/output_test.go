package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "晴天 - 周杰伦", "晴天 - 周杰伦"},
		{"path separators", "AC/DC - Back\\In Black", "AC_DC - Back_In Black"},
		{"windows reserved chars", `a:b*c?d"e<f>g|h`, "a_b_c_d_e_f_g_h"},
		{"control chars stripped", "a\x01b\nc", "abc"},
		{"surrounding space trimmed", "  title  ", "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCopy(t *testing.T) {
	src := bytes.Repeat([]byte{0xAB}, 200*1024)
	var dst bytes.Buffer
	n, err := Copy(&dst, bytes.NewReader(src))
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if n != int64(len(src)) || !bytes.Equal(dst.Bytes(), src) {
		t.Errorf("Copy() wrote %d bytes, want %d", n, len(src))
	}
}

func TestVerifyOutput(t *testing.T) {
	dir := t.TempDir()

	flacPath := filepath.Join(dir, "ok.flac")
	if err := os.WriteFile(flacPath, append([]byte("fLaC"), make([]byte, 64)...), 0644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyOutput(flacPath, ".flac"); err != nil {
		t.Errorf("VerifyOutput() error = %v for valid flac", err)
	}
	if err := VerifyOutput(flacPath, ".mp3"); err == nil {
		t.Error("VerifyOutput() accepted flac payload as mp3")
	}

	garbagePath := filepath.Join(dir, "bad.flac")
	if err := os.WriteFile(garbagePath, make([]byte, 64), 0644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyOutput(garbagePath, ".flac"); err == nil {
		t.Error("VerifyOutput() accepted garbage payload")
	}

	shortPath := filepath.Join(dir, "short.flac")
	if err := os.WriteFile(shortPath, []byte("fL"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyOutput(shortPath, ".flac"); err == nil {
		t.Error("VerifyOutput() accepted file shorter than a header")
	}
}
