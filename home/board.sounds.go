package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/sys"
)

func handleBoardSounds(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sounds, err := sys.ListSounds(ctx)
	if err != nil {
		updateResponse(event, fmt.Sprintf(sys.MsgGenericError, err))
		return
	}
	if len(sounds) == 0 {
		updateResponse(event, sys.MsgBoardNoSounds)
		return
	}

	updateResponse(event, formatSoundCatalog(sounds))
}

func formatSoundCatalog(sounds []*sys.SoundRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("**Sound Catalog** (%d)\n\n", len(sounds)))
	for i, s := range sounds {
		line := fmt.Sprintf("> **%s** `%s` (vol %.1f)\n", s.Name, s.SourceKind, s.Volume)
		// Stay under the message length ceiling
		if b.Len()+len(line) > 1900 {
			b.WriteString(fmt.Sprintf("> ...and %d more.\n", len(sounds)-i))
			break
		}
		b.WriteString(line)
	}
	return b.String()
}
