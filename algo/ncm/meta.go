package ncm

import "github.com/samber/lo"

// Meta is the decrypted metadata record embedded in the container.
// Decoded once per file, read-only afterwards.
type Meta struct {
	MusicID   int      `json:"musicId"`
	MusicName string   `json:"musicName"`
	Artist    [][]any  `json:"artist"` // pairs of [name, id]
	AlbumID   int      `json:"albumId"`
	Album     string   `json:"album"`
	AlbumPic  string   `json:"albumPic"`
	Bitrate   int      `json:"bitrate"`
	Duration  int      `json:"duration"`
	Format    string   `json:"format"`
	Alias     []string `json:"alias"`
}

func (m *Meta) GetTitle() string {
	return m.MusicName
}

func (m *Meta) GetAlbum() string {
	return m.Album
}

func (m *Meta) GetArtists() []string {
	return lo.FilterMap(m.Artist, func(pair []any, _ int) (string, bool) {
		if len(pair) == 0 {
			return "", false
		}
		name, ok := pair[0].(string)
		return name, ok && name != ""
	})
}

// CoverURL returns the album art URL, if the record carries one.
func (m *Meta) CoverURL() string {
	return m.AlbumPic
}
