package home

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leeineian/blare/sys"
)

func TestFormatSoundCatalog(t *testing.T) {
	t.Run("small catalog lists everything", func(t *testing.T) {
		sounds := []*sys.SoundRecord{
			{Name: "airhorn", SourceKind: sys.SourceLocal, Location: "airhorn.mp3", Volume: 1.0},
			{Name: "applause", SourceKind: sys.SourceRemote, Location: "https://example.com/a.mp3", Volume: 0.5},
		}

		out := formatSoundCatalog(sounds)
		for _, s := range sounds {
			if !strings.Contains(out, "**"+s.Name+"**") {
				t.Errorf("output missing %s", s.Name)
			}
		}
		if strings.Contains(out, "more.") {
			t.Error("small catalog should not be truncated")
		}
	})

	t.Run("truncation reports the omitted count", func(t *testing.T) {
		var sounds []*sys.SoundRecord
		for i := 0; i < 30; i++ {
			sounds = append(sounds, &sys.SoundRecord{
				Name:       fmt.Sprintf("sound-%02d-%s", i, strings.Repeat("x", 80)),
				SourceKind: sys.SourceLocal,
				Location:   "x.mp3",
				Volume:     1.0,
			})
		}

		out := formatSoundCatalog(sounds)
		listed := strings.Count(out, "> **")
		if listed == 0 || listed >= len(sounds) {
			t.Fatalf("listed = %d, expected a truncated listing", listed)
		}

		want := fmt.Sprintf("...and %d more.", len(sounds)-listed)
		if !strings.Contains(out, want) {
			t.Errorf("output reports the wrong remainder: want %q in\n%s", want, out)
		}
		if len(out) > 2000 {
			t.Errorf("len(out) = %d, exceeds the message ceiling", len(out))
		}
	})
}
