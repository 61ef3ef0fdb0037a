package tag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"go.uber.org/zap"
)

type fixedMeta struct {
	title   string
	album   string
	artists []string
}

func (m *fixedMeta) GetTitle() string     { return m.title }
func (m *fixedMeta) GetAlbum() string     { return m.album }
func (m *fixedMeta) GetArtists() []string { return m.artists }

// a bare MPEG1 Layer3 frame so the payload looks like a tagless mp3
var mp3Payload = append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 412)...)

func TestEmbedMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp3")
	if err := os.WriteFile(path, mp3Payload, 0644); err != nil {
		t.Fatal(err)
	}

	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}
	params := &Params{
		Meta:  &fixedMeta{title: "晴天", album: "叶惠美", artists: []string{"周杰伦"}},
		Cover: cover,
	}
	if err := Embed(path, ".mp3", params, zap.NewNop()); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	tg, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen tagged file: %v", err)
	}
	defer tg.Close()

	if tg.Title() != "晴天" {
		t.Errorf("Title() = %q, want 晴天", tg.Title())
	}
	if tg.Album() != "叶惠美" {
		t.Errorf("Album() = %q, want 叶惠美", tg.Album())
	}
	if tg.Artist() != "周杰伦" {
		t.Errorf("Artist() = %q, want 周杰伦", tg.Artist())
	}
	if frames := tg.GetFrames(tg.CommonID("Attached picture")); len(frames) != 1 {
		t.Errorf("attached pictures = %d, want 1", len(frames))
	}
}

// Existing tags must not be overwritten.
func TestEmbedMP3KeepsExistingTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp3")
	if err := os.WriteFile(path, mp3Payload, 0644); err != nil {
		t.Fatal(err)
	}

	pre, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	pre.SetDefaultEncoding(id3v2.EncodingUTF8)
	pre.SetTitle("original title")
	if err := pre.Save(); err != nil {
		t.Fatal(err)
	}
	pre.Close()

	params := &Params{Meta: &fixedMeta{title: "new title"}}
	if err := Embed(path, ".mp3", params, zap.NewNop()); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	tg, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tg.Close()
	if tg.Title() != "original title" {
		t.Errorf("Title() = %q, existing tag was overwritten", tg.Title())
	}
}

func TestEmbedSkipsUnsupportedFormat(t *testing.T) {
	params := &Params{Meta: &fixedMeta{title: "x"}}
	if err := Embed("/nonexistent/file.wav", ".wav", params, zap.NewNop()); err != nil {
		t.Errorf("Embed() error = %v for unsupported format, want nil", err)
	}
}

func TestEmbedNothingToDo(t *testing.T) {
	if err := Embed("/nonexistent/file.mp3", ".mp3", &Params{}, zap.NewNop()); err != nil {
		t.Errorf("Embed() error = %v for empty params, want nil", err)
	}
}
