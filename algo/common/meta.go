package common

import (
	"path"
	"strings"

	"github.com/samber/lo"
)

type filenameMeta struct {
	artists []string
	title   string
	album   string
}

func (f *filenameMeta) GetArtists() []string {
	return f.artists
}

func (f *filenameMeta) GetTitle() string {
	return f.title
}

func (f *filenameMeta) GetAlbum() string {
	return f.album
}

// ParseFilenameMeta derives fallback metadata from the source filename.
// Containers without a metadata section still get a usable title this way.
//
// 支持 "标题 - 艺术家1,艺术家2.ext" 形式的文件名。
func ParseFilenameMeta(filename string) AudioMeta {
	partName := strings.TrimSuffix(filename, path.Ext(filename))
	items := strings.Split(partName, "-")
	ret := &filenameMeta{}

	switch len(items) {
	case 0:
		// no-op
	case 1:
		ret.title = strings.TrimSpace(items[0])
	default:
		// 第一部分是标题，后面的部分是艺术家
		ret.title = strings.TrimSpace(items[0])

		for _, v := range items[1:] {
			artists := strings.FieldsFunc(v, func(r rune) bool {
				return r == ',' || r == '_'
			})
			ret.artists = append(ret.artists, lo.Map(artists, func(s string, _ int) string {
				return strings.TrimSpace(s)
			})...)
		}
	}

	return ret
}

// metaWrapper prefers the container's own metadata and falls back to the
// filename-derived values field by field.
type metaWrapper struct {
	original AudioMeta
	filename AudioMeta
}

func (m *metaWrapper) GetTitle() string {
	if t := m.original.GetTitle(); t != "" {
		return t
	}
	return m.filename.GetTitle()
}

func (m *metaWrapper) GetAlbum() string {
	if a := m.original.GetAlbum(); a != "" {
		return a
	}
	return m.filename.GetAlbum()
}

func (m *metaWrapper) GetArtists() []string {
	if a := m.original.GetArtists(); len(a) > 0 {
		return a
	}
	return m.filename.GetArtists()
}

// WrapMetaWithFilename fills the gaps of original with filename-derived
// metadata. A nil original yields pure filename metadata.
func WrapMetaWithFilename(original AudioMeta, filename string) AudioMeta {
	if original == nil {
		return ParseFilenameMeta(filename)
	}
	return &metaWrapper{
		original: original,
		filename: ParseFilenameMeta(filename),
	}
}
