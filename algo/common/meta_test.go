package common

import (
	"reflect"
	"testing"
)

func TestParseFilenameMeta(t *testing.T) {
	tests := []struct {
		name     string
		wantMeta AudioMeta
	}{
		{
			name:     "test1",
			wantMeta: &filenameMeta{title: "test1"},
		},
		{
			name:     "晴天 - 周杰伦.flac",
			wantMeta: &filenameMeta{artists: []string{"周杰伦"}, title: "晴天"},
		},
		{
			name:     "Sing Me to Sleep - Alan Walker _ Iselin Solheim.flac",
			wantMeta: &filenameMeta{artists: []string{"Alan Walker", "Iselin Solheim"}, title: "Sing Me to Sleep"},
		},
		{
			name:     "Limousine - Christopher,Madcon.flac",
			wantMeta: &filenameMeta{artists: []string{"Christopher", "Madcon"}, title: "Limousine"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if gotMeta := ParseFilenameMeta(tt.name); !reflect.DeepEqual(gotMeta, tt.wantMeta) {
				t.Errorf("ParseFilenameMeta() = %v, want %v", gotMeta, tt.wantMeta)
			}
		})
	}
}

type staticMeta struct {
	title   string
	album   string
	artists []string
}

func (s *staticMeta) GetTitle() string     { return s.title }
func (s *staticMeta) GetAlbum() string     { return s.album }
func (s *staticMeta) GetArtists() []string { return s.artists }

func TestWrapMetaWithFilename(t *testing.T) {
	tests := []struct {
		name        string
		original    AudioMeta
		filename    string
		wantTitle   string
		wantArtists []string
		wantAlbum   string
	}{
		{
			name:        "原始元数据优先",
			original:    &staticMeta{title: "晴天", album: "叶惠美", artists: []string{"周杰伦"}},
			filename:    "foo - bar.ncm",
			wantTitle:   "晴天",
			wantArtists: []string{"周杰伦"},
			wantAlbum:   "叶惠美",
		},
		{
			name:        "缺失字段由文件名补齐",
			original:    &staticMeta{album: "叶惠美"},
			filename:    "晴天 - 周杰伦.ncm",
			wantTitle:   "晴天",
			wantArtists: []string{"周杰伦"},
			wantAlbum:   "叶惠美",
		},
		{
			name:        "无原始元数据",
			original:    nil,
			filename:    "Love Story - Taylor Swift.ncm",
			wantTitle:   "Love Story",
			wantArtists: []string{"Taylor Swift"},
			wantAlbum:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapMetaWithFilename(tt.original, tt.filename)
			if got.GetTitle() != tt.wantTitle {
				t.Errorf("GetTitle() = %q, want %q", got.GetTitle(), tt.wantTitle)
			}
			if !reflect.DeepEqual(got.GetArtists(), tt.wantArtists) {
				t.Errorf("GetArtists() = %v, want %v", got.GetArtists(), tt.wantArtists)
			}
			if got.GetAlbum() != tt.wantAlbum {
				t.Errorf("GetAlbum() = %q, want %q", got.GetAlbum(), tt.wantAlbum)
			}
		})
	}
}

func TestGetDecoder(t *testing.T) {
	RegisterDecoder("fake", false, func(p *DecoderParams) Decoder { return nil })
	RegisterDecoder("raw", true, func(p *DecoderParams) Decoder { return nil })

	if got := GetDecoder("song.fake", true); len(got) != 1 {
		t.Errorf("GetDecoder() = %d decoders for .fake, want 1", len(got))
	}
	if got := GetDecoder("song.raw", true); len(got) != 0 {
		t.Errorf("GetDecoder() = %d noop decoders with skipNoop, want 0", len(got))
	}
	if got := GetDecoder("song.mp3", true); len(got) != 0 {
		t.Errorf("GetDecoder() = %d decoders for .mp3, want 0", len(got))
	}
}
