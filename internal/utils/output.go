package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"ncmdump.dev/cli/internal/pool"
	"ncmdump.dev/cli/internal/sniff"
)

// Copy is io.Copy with a pooled 64KB buffer, the audio chunk size.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := pool.GetMediumBuffer()
	defer pool.PutBuffer(buf)
	return io.CopyBuffer(dst, src, buf)
}

// SanitizeFilename normalizes a tag-derived filename to NFC and strips
// characters that are invalid on common filesystems.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

// VerifyOutput re-reads the head of a written file and checks it against
// the extension it was written with. A mismatch means the keystream was
// wrong and the output is garbage.
func VerifyOutput(path, ext string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 16)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("output shorter than a header: %w", err)
	}

	got, ok := sniff.AudioExtension(header)
	if !ok || got != ext {
		return fmt.Errorf("output does not look like %s", ext)
	}
	return nil
}
