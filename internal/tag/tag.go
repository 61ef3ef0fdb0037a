package tag

import (
	"fmt"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
	"go.uber.org/zap"

	"ncmdump.dev/cli/algo/common"
	"ncmdump.dev/cli/internal/sniff"
)

// Params carries everything to embed into the recovered audio file.
type Params struct {
	Meta     common.AudioMeta
	Cover    []byte // raw embedded or fetched cover image, may be nil
	CoverURL string // fallback reference when no image bytes are available
}

// Embed writes title/artist/album/cover into the output file. Tags already
// present are left alone. Formats without tag support are skipped.
func Embed(path, ext string, p *Params, logger *zap.Logger) error {
	if p == nil || (p.Meta == nil && p.Cover == nil && p.CoverURL == "") {
		return nil
	}
	switch ext {
	case ".flac":
		return embedFLAC(path, p)
	case ".mp3":
		return embedMP3(path, p)
	default:
		logger.Debug("no tag support for format, skipping", zap.String("ext", ext))
		return nil
	}
}

func embedFLAC(path string, p *Params) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse flac: %w", err)
	}

	if p.Cover != nil {
		picture, err := flacpicture.NewFromImageData(
			flacpicture.PictureTypeFrontCover, "Front cover",
			p.Cover, sniff.ImageMIME(p.Cover))
		if err != nil {
			return fmt.Errorf("build flac picture: %w", err)
		}
		block := picture.Marshal()
		f.Meta = append(f.Meta, &block)
	} else if p.CoverURL != "" {
		picture := &flacpicture.MetadataBlockPicture{
			PictureType: flacpicture.PictureTypeFrontCover,
			MIME:        "-->",
			Description: "Front cover",
			ImageData:   []byte(p.CoverURL),
		}
		block := picture.Marshal()
		f.Meta = append(f.Meta, &block)
	}

	if p.Meta != nil {
		if err := setVorbisComments(f, p.Meta); err != nil {
			return err
		}
	}
	return f.Save(path)
}

func setVorbisComments(f *flac.File, meta common.AudioMeta) error {
	var existing *flac.MetaDataBlock
	for _, m := range f.Meta {
		if m.Type == flac.VorbisComment {
			existing = m
			break
		}
	}

	cmts := flacvorbis.New()
	if existing != nil {
		parsed, err := flacvorbis.ParseFromMetaDataBlock(*existing)
		if err != nil {
			return fmt.Errorf("parse vorbis comment: %w", err)
		}
		cmts = parsed
	}

	addIfEmpty := func(field, value string) {
		if value == "" {
			return
		}
		if got, err := cmts.Get(field); err == nil && len(got) == 0 {
			_ = cmts.Add(field, value)
		}
	}
	addIfEmpty(flacvorbis.FIELD_TITLE, meta.GetTitle())
	addIfEmpty(flacvorbis.FIELD_ALBUM, meta.GetAlbum())
	if got, err := cmts.Get(flacvorbis.FIELD_ARTIST); err == nil && len(got) == 0 {
		for _, artist := range meta.GetArtists() {
			_ = cmts.Add(flacvorbis.FIELD_ARTIST, artist)
		}
	}

	block := cmts.Marshal()
	if existing != nil {
		*existing = block
	} else {
		f.Meta = append(f.Meta, &block)
	}
	return nil
}

func embedMP3(path string, p *Params) error {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3v2: %w", err)
	}
	defer t.Close()

	t.SetDefaultEncoding(id3v2.EncodingUTF8)

	if p.Cover != nil {
		t.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingISO,
			MimeType:    sniff.ImageMIME(p.Cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     p.Cover,
		})
	} else if p.CoverURL != "" {
		t.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingISO,
			MimeType:    "-->",
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     []byte(p.CoverURL),
		})
	}

	if p.Meta != nil {
		if t.Title() == "" && p.Meta.GetTitle() != "" {
			t.SetTitle(p.Meta.GetTitle())
		}
		if t.Album() == "" && p.Meta.GetAlbum() != "" {
			t.SetAlbum(p.Meta.GetAlbum())
		}
		if artists := p.Meta.GetArtists(); t.Artist() == "" && len(artists) > 0 {
			t.SetArtist(strings.Join(artists, "/"))
		}
	}

	return t.Save()
}
