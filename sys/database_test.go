package sys

import (
	"context"
	"path/filepath"
	"testing"
)

func setupTestDatabase(t *testing.T) context.Context {
	t.Helper()
	SetSilentMode(true)

	ctx := context.Background()
	if err := InitDatabase(ctx, filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	t.Cleanup(CloseDatabase)
	return ctx
}

func TestSoundCatalog(t *testing.T) {
	ctx := setupTestDatabase(t)

	t.Run("get missing returns nil", func(t *testing.T) {
		rec, err := GetSound(ctx, "nope")
		if err != nil {
			t.Fatalf("GetSound: %v", err)
		}
		if rec != nil {
			t.Errorf("rec = %+v, want nil", rec)
		}
	})

	t.Run("upsert and get", func(t *testing.T) {
		err := UpsertSound(ctx, &SoundRecord{
			Name:       "ding.mp3",
			SourceKind: SourceLocal,
			Location:   "ding.mp3",
			Volume:     1.0,
		})
		if err != nil {
			t.Fatalf("UpsertSound: %v", err)
		}

		rec, err := GetSound(ctx, "ding.mp3")
		if err != nil {
			t.Fatalf("GetSound: %v", err)
		}
		if rec == nil || rec.SourceKind != SourceLocal || rec.Location != "ding.mp3" || rec.Volume != 1.0 {
			t.Errorf("rec = %+v", rec)
		}
	})

	t.Run("upsert replaces", func(t *testing.T) {
		err := UpsertSound(ctx, &SoundRecord{
			Name:       "ding.mp3",
			SourceKind: SourceRemote,
			Location:   "https://example.com/ding.mp3",
			Volume:     0.5,
		})
		if err != nil {
			t.Fatalf("UpsertSound: %v", err)
		}

		rec, err := GetSound(ctx, "ding.mp3")
		if err != nil {
			t.Fatalf("GetSound: %v", err)
		}
		if rec.SourceKind != SourceRemote || rec.Volume != 0.5 {
			t.Errorf("rec = %+v", rec)
		}
	})

	t.Run("list and search", func(t *testing.T) {
		for _, name := range []string{"airhorn", "applause", "boo"} {
			err := UpsertSound(ctx, &SoundRecord{
				Name: name, SourceKind: SourceLocal, Location: name + ".mp3", Volume: 1.0,
			})
			if err != nil {
				t.Fatalf("UpsertSound(%s): %v", name, err)
			}
		}

		sounds, err := ListSounds(ctx)
		if err != nil {
			t.Fatalf("ListSounds: %v", err)
		}
		if len(sounds) != 4 {
			t.Errorf("len(sounds) = %d, want 4", len(sounds))
		}

		names, err := SearchSounds(ctx, "a", 25)
		if err != nil {
			t.Fatalf("SearchSounds: %v", err)
		}
		if len(names) != 2 || names[0] != "airhorn" || names[1] != "applause" {
			t.Errorf("names = %v", names)
		}

		limited, err := SearchSounds(ctx, "a", 1)
		if err != nil {
			t.Fatalf("SearchSounds: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("limited = %v, want one result", limited)
		}
	})

	t.Run("find by location", func(t *testing.T) {
		rec, err := FindSoundByLocation(ctx, "airhorn.mp3")
		if err != nil {
			t.Fatalf("FindSoundByLocation: %v", err)
		}
		if rec == nil || rec.Name != "airhorn" {
			t.Errorf("rec = %+v", rec)
		}

		// A remote entry never matches a disk path.
		missing, err := FindSoundByLocation(ctx, "https://example.com/ding.mp3")
		if err != nil {
			t.Fatalf("FindSoundByLocation: %v", err)
		}
		if missing != nil {
			t.Errorf("rec = %+v, want nil", missing)
		}
	})

	t.Run("delete", func(t *testing.T) {
		removed, err := DeleteSound(ctx, "boo")
		if err != nil {
			t.Fatalf("DeleteSound: %v", err)
		}
		if !removed {
			t.Error("expected the row to be removed")
		}

		removed, err = DeleteSound(ctx, "boo")
		if err != nil {
			t.Fatalf("DeleteSound: %v", err)
		}
		if removed {
			t.Error("second delete should report nothing removed")
		}
	})
}

func TestPlayStatistics(t *testing.T) {
	ctx := setupTestDatabase(t)

	for i := 0; i < 3; i++ {
		if err := RecordPlay(ctx, "airhorn", "alice"); err != nil {
			t.Fatalf("RecordPlay: %v", err)
		}
	}
	if err := RecordPlay(ctx, "applause", "bob"); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	count, err := GetSoundPlayCount(ctx, "airhorn")
	if err != nil {
		t.Fatalf("GetSoundPlayCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	top, err := GetTopPlays(ctx, 10)
	if err != nil {
		t.Fatalf("GetTopPlays: %v", err)
	}
	if len(top) != 2 || top[0].Sound != "airhorn" || top[0].Count != 3 || top[1].Sound != "applause" {
		t.Errorf("top = %+v", top)
	}

	count, err = GetSoundPlayCount(ctx, "never-played")
	if err != nil {
		t.Fatalf("GetSoundPlayCount: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestBotConfig(t *testing.T) {
	ctx := setupTestDatabase(t)

	value, err := GetBotConfig(ctx, "missing")
	if err != nil {
		t.Fatalf("GetBotConfig: %v", err)
	}
	if value != "" {
		t.Errorf("value = %q, want empty", value)
	}

	if err := SetBotConfig(ctx, "registered_mode", "dev"); err != nil {
		t.Fatalf("SetBotConfig: %v", err)
	}
	if err := SetBotConfig(ctx, "registered_mode", "prod"); err != nil {
		t.Fatalf("SetBotConfig upsert: %v", err)
	}

	value, err = GetBotConfig(ctx, "registered_mode")
	if err != nil {
		t.Fatalf("GetBotConfig: %v", err)
	}
	if value != "prod" {
		t.Errorf("value = %q, want prod", value)
	}
}
