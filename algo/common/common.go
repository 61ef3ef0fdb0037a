package common

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Decoder is the contract every container decoder implements. Validate
// checks the magic header and recovers the cryptographic state; Read then
// streams the decrypted audio bitstream.
type Decoder interface {
	Validate() error
	io.Reader
}

// StreamDecoder transforms a buffer of encrypted audio in place. offset is
// the absolute position of buf[0] inside the audio section, so chunks may
// be decrypted independently and in any order.
type StreamDecoder interface {
	Decrypt(buf []byte, offset int)
}

// DecoderParams carries per-file context into a decoder.
type DecoderParams struct {
	Reader    io.ReadSeeker // the source file
	Extension string        // extension of the source file, with dot
	FilePath  string

	Logger *zap.Logger
}

// AudioMeta provides the tags to embed into the recovered audio file.
type AudioMeta interface {
	GetArtists() []string
	GetTitle() string
	GetAlbum() string
}

// AudioMetaGetter is implemented by decoders that can recover embedded
// metadata. The result is best-effort: a nil AudioMeta with a nil error
// means the container carried none.
type AudioMetaGetter interface {
	GetAudioMeta(ctx context.Context) (AudioMeta, error)
}

// CoverImageGetter is implemented by decoders that can recover an embedded
// cover image.
type CoverImageGetter interface {
	GetCoverImage(ctx context.Context) ([]byte, error)
}

type NewDecoderFunc func(p *DecoderParams) Decoder

type DecoderFactory struct {
	Suffix string
	Create NewDecoderFunc
	noop   bool
}

var DecoderRegistry []DecoderFactory

// RegisterDecoder registers a decoder factory for files with the given
// extension (without dot).
func RegisterDecoder(ext string, noop bool, dispatchFunc NewDecoderFunc) {
	DecoderRegistry = append(DecoderRegistry,
		DecoderFactory{Suffix: "." + ext, Create: dispatchFunc, noop: noop})
}

// GetDecoder returns the decoder factories whose suffix matches filename.
func GetDecoder(filename string, skipNoop bool) []DecoderFactory {
	var ret []DecoderFactory
	name := strings.ToLower(filename)
	for _, dec := range DecoderRegistry {
		if skipNoop && dec.noop {
			continue
		}
		if strings.HasSuffix(name, dec.Suffix) {
			ret = append(ret, dec)
		}
	}
	return ret
}
