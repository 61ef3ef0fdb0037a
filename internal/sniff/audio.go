package sniff

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/exp/slices"
)

// AudioExtension sniffs the decrypted payload for a known compressed-audio
// magic and returns the matching file extension. A successful FLAC or MP3
// match is the primary sanity check that decryption worked at all.
// header should be at least 16 bytes.
func AudioExtension(header []byte) (string, bool) {
	// the two formats the encoder actually produces
	if bytes.HasPrefix(header, []byte("fLaC")) {
		return ".flac", true
	}
	if (&mp3Sniffer{}).Sniff(header) {
		return ".mp3", true
	}

	// defensive extras for payloads the encoder should not produce
	if bytes.HasPrefix(header, []byte("OggS")) {
		return ".ogg", true
	}
	if bytes.HasPrefix(header, []byte("RIFF")) {
		return ".wav", true
	}
	if (m4aSniffer{}).Sniff(header) {
		return ".m4a", true
	}

	return "", false
}

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// ImageExtension sniffs cover image bytes (JPEG/PNG).
func ImageExtension(header []byte) (string, bool) {
	if bytes.HasPrefix(header, pngMagic) {
		return ".png", true
	}
	if bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF}) {
		return ".jpg", true
	}
	return "", false
}

// ImageMIME returns the MIME type for cover embedding, defaulting to JPEG
// the way the encoder does.
func ImageMIME(header []byte) string {
	if bytes.HasPrefix(header, pngMagic) {
		return "image/png"
	}
	return "image/jpeg"
}

type m4aSniffer struct{}

func (m4aSniffer) Sniff(header []byte) bool {
	box := readMpeg4FtypBox(header)
	if box == nil {
		return false
	}
	return box.majorBrand == "M4A " || slices.Contains(box.compatibleBrands, "M4A ")
}

type mpeg4FtypBox struct {
	majorBrand       string
	compatibleBrands []string
}

func readMpeg4FtypBox(header []byte) *mpeg4FtypBox {
	if len(header) < 8 || !bytes.Equal([]byte("ftyp"), header[4:8]) {
		return nil
	}
	size := binary.BigEndian.Uint32(header[0:4])
	if size < 16 || size%4 != 0 {
		return nil
	}

	box := mpeg4FtypBox{majorBrand: string(header[8:12])}
	for i := 16; i < int(size) && i+4 < len(header); i += 4 {
		box.compatibleBrands = append(box.compatibleBrands, string(header[i:i+4]))
	}
	return &box
}

// mp3Sniffer detects MP3 payloads with or without an ID3v2 tag.
type mp3Sniffer struct{}

func (m *mp3Sniffer) Sniff(header []byte) bool {
	if len(header) < 4 {
		return false
	}
	if bytes.HasPrefix(header, []byte("ID3")) {
		return true
	}
	// no tag: the payload must start with a valid frame sync
	return m.isValidMP3Frame(header)
}

// isValidMP3Frame checks 4 bytes for a valid MPEG audio frame header.
func (m *mp3Sniffer) isValidMP3Frame(frame []byte) bool {
	if len(frame) < 4 {
		return false
	}
	// 11 sync bits, all ones
	if frame[0] != 0xFF || (frame[1]&0xE0) != 0xE0 {
		return false
	}
	if version := (frame[1] >> 3) & 0x03; version == 1 { // reserved
		return false
	}
	if layer := (frame[1] >> 1) & 0x03; layer == 0 { // reserved
		return false
	}
	if bitrate := (frame[2] >> 4) & 0x0F; bitrate == 0 || bitrate == 15 {
		return false
	}
	if samplingFreq := (frame[2] >> 2) & 0x03; samplingFreq == 3 { // reserved
		return false
	}
	return true
}
