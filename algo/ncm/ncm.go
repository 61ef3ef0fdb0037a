package ncm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ncmdump.dev/cli/algo/common"
	"ncmdump.dev/cli/internal/cursor"
)

// magicHeader identifies the container format ("CTENFDAM").
var magicHeader = []byte{0x43, 0x54, 0x45, 0x4E, 0x46, 0x44, 0x41, 0x4D}

// ErrInvalidMagic is returned when the file does not start with the format
// signature. The file is rejected before any decryption is attempted.
var ErrInvalidMagic = errors.New("ncm: invalid magic header")

type Decoder struct {
	raw io.ReadSeeker // raw is the original file reader

	cipher common.StreamDecoder

	audioStart int64 // absolute offset of the audio section
	audioLen   int   // audio section length, runs to end of file
	offset     int   // current position inside the audio section

	meta    *Meta
	metaErr error // non-fatal metadata decode failure, if any
	cover   []byte

	logger *zap.Logger
}

func NewDecoder(p *common.DecoderParams) common.Decoder {
	return &Decoder{raw: p.Reader, logger: p.Logger}
}

// Validate walks the container sections in order: magic header, key
// section, metadata section, cover section, audio. Each section's length
// is encoded immediately before its payload, so nothing can be interpreted
// out of order. On return the reader is positioned at the audio section.
//
// Structural failures (bad magic, truncated section, key recovery) are
// fatal. Metadata and cover failures are recorded and decoding continues:
// they enrich the output but are not a correctness requirement for the
// audio payload.
func (d *Decoder) Validate() error {
	if _, err := d.raw.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("ncm seek to start: %w", err)
	}
	cur := cursor.New(d.raw)

	header, err := cur.ReadExact(uint32(len(magicHeader)))
	if err != nil {
		return fmt.Errorf("ncm read header: %w", err)
	}
	if !bytes.Equal(magicHeader, header) {
		return ErrInvalidMagic
	}

	// 2 unused bytes follow the signature
	if err := cur.Skip(2); err != nil {
		return err
	}

	keyBlob, err := cur.ReadSection()
	if err != nil {
		return fmt.Errorf("ncm read key section: %w", err)
	}
	audioKey, err := decryptKeyBlob(keyBlob)
	if err != nil {
		return err
	}
	d.cipher = newNcmCipher(audioKey)

	metaBlob, err := cur.ReadSection()
	if err != nil {
		return fmt.Errorf("ncm read metadata section: %w", err)
	}
	d.meta, d.metaErr = decryptMetaBlob(metaBlob)
	if d.metaErr != nil && d.logger != nil {
		d.logger.Warn("ncm metadata decode failed, continuing without metadata",
			zap.Error(d.metaErr))
	}

	// crc32 field (4) and one unused byte
	if err := cur.Skip(5); err != nil {
		return err
	}

	if err := d.readCover(cur); err != nil {
		return err
	}

	return d.prepareAudio(cur.Pos())
}

// readCover reads the cover section. The frame length may exceed the image
// length; the padding gap must be skipped so the audio section starts at
// the right offset.
func (d *Decoder) readCover(cur *cursor.Cursor) error {
	frameLen, err := cur.ReadUint32LE()
	if err != nil {
		return fmt.Errorf("ncm read cover frame length: %w", err)
	}
	imgLen, err := cur.ReadUint32LE()
	if err != nil {
		return fmt.Errorf("ncm read cover length: %w", err)
	}
	if imgLen > 0 {
		if d.cover, err = cur.ReadExact(imgLen); err != nil {
			return fmt.Errorf("ncm read cover image: %w", err)
		}
	}
	if frameLen > imgLen {
		if err := cur.Skip(frameLen - imgLen); err != nil {
			return fmt.Errorf("ncm skip cover padding: %w", err)
		}
	}
	return nil
}

func (d *Decoder) prepareAudio(audioStart int64) error {
	fileSize, err := d.raw.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("ncm seek to end: %w", err)
	}
	if audioStart >= fileSize {
		return fmt.Errorf("%w: no audio section", cursor.ErrTruncated)
	}
	d.audioStart = audioStart
	d.audioLen = int(fileSize - audioStart)
	d.offset = 0

	if _, err := d.raw.Seek(audioStart, io.SeekStart); err != nil {
		return fmt.Errorf("ncm seek to audio: %w", err)
	}
	return nil
}

// Read implements io.Reader, offering the decrypted audio bitstream.
// Validate must be called first.
func (d *Decoder) Read(p []byte) (int, error) {
	if remain := d.audioLen - d.offset; remain <= 0 {
		return 0, io.EOF
	} else if len(p) > remain {
		p = p[:remain]
	}
	n, err := d.raw.Read(p)
	if n > 0 {
		d.cipher.Decrypt(p[:n], d.offset)
		d.offset += n
	}
	return n, err
}

// Seek implements io.Seeker over the decrypted audio. The transform is a
// pure function of the absolute offset, so random access needs no cipher
// state replay.
func (d *Decoder) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(d.offset) + offset
	case io.SeekEnd:
		abs = int64(d.audioLen) + offset
	default:
		return 0, errors.New("ncm: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("ncm: negative position")
	}
	if abs > int64(d.audioLen) {
		abs = int64(d.audioLen)
	}
	if _, err := d.raw.Seek(d.audioStart+abs, io.SeekStart); err != nil {
		return 0, fmt.Errorf("ncm seek raw: %w", err)
	}
	d.offset = int(abs)
	return abs, nil
}

// GetAudioMeta returns the decrypted metadata record, or the non-fatal
// decode error when the blob was present but unreadable. Files without
// metadata return (nil, nil).
func (d *Decoder) GetAudioMeta(_ context.Context) (common.AudioMeta, error) {
	if d.metaErr != nil {
		return nil, d.metaErr
	}
	if d.meta == nil {
		return nil, nil
	}
	return d.meta, nil
}

// GetCoverImage returns the embedded cover image bytes, if any. Callers
// fall back to the metadata cover URL when the section is empty.
func (d *Decoder) GetCoverImage(_ context.Context) ([]byte, error) {
	if d.cover == nil {
		return nil, errors.New("ncm: no embedded cover image")
	}
	return d.cover, nil
}

// Meta exposes the raw metadata record for collaborators that need the
// format hint, the music id or the cover URL. Nil until Validate, and for
// files without metadata.
func (d *Decoder) Meta() *Meta {
	return d.meta
}

func init() {
	common.RegisterDecoder("ncm", false, NewDecoder)
}
