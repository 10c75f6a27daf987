package home

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/proc"
	"github.com/leeineian/blare/sys"
)

// Playback outcomes arrive asynchronously on the broadcaster, so the reply
// is deferred and edited once the worker reports back.
func handleBoardPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	sound, _ := data.OptString("sound")

	// Instant Defer
	_ = event.DeferCreateMessage(false)

	outcomes, cancel := coordinator.Events.Subscribe()
	defer cancel()

	if _, err := coordinator.Play(sound, event.User().Username); err != nil {
		updateResponse(event, playErrorMessage(sound, err))
		return
	}

	updateResponse(event, fmt.Sprintf(sys.MsgBoardPlaying, sound))

	deadline := time.NewTimer(60 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-outcomes:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case proc.PlaybackSucceeded:
				if e.Sound == sound {
					updateResponse(event, fmt.Sprintf(sys.MsgBoardPlayDone, sound))
					return
				}
			case proc.PlaybackFailed:
				updateResponse(event, fmt.Sprintf(sys.MsgBoardPlayFailed, e.Message))
				return
			case proc.PlaybackStopped:
				updateResponse(event, sys.MsgBoardStopped)
				return
			}
		case <-deadline.C:
			return
		}
	}
}

func handleBoardAutocomplete(event *events.AutocompleteInteractionCreate) {
	data := event.Data
	focused := data.Focused()
	if focused.Name != "sound" && focused.Name != "name" {
		return
	}
	query := focused.String()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	names, err := sys.SearchSounds(ctx, query, 25)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	var choices []discord.AutocompleteChoice
	for _, name := range names {
		display := name
		if len(display) > 100 {
			display = display[:97] + "..."
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  display,
			Value: name,
		})
	}
	_ = event.AutocompleteResult(choices)
}

func playErrorMessage(sound string, err error) string {
	switch {
	case errors.Is(err, proc.ErrNotBound):
		return sys.MsgBoardErrNotBound
	case errors.Is(err, proc.ErrBusy):
		return sys.MsgBoardErrBusy
	case errors.Is(err, proc.ErrSoundNotFound):
		return fmt.Sprintf(sys.MsgBoardErrNotFound, sound)
	case errors.Is(err, proc.ErrFileMissing):
		return fmt.Sprintf(sys.MsgBoardErrFileMissing, sound)
	default:
		return fmt.Sprintf(sys.MsgBoardErrPlayFail, err)
	}
}

func updateResponse(event *events.ApplicationCommandInteractionCreate, content string) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdate().
		WithContent(content))
	if err != nil {
		sys.LogBoard("Failed to update response: %v", err)
	}
}
