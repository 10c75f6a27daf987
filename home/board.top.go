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

func handleBoardTop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if sound, ok := data.OptString("sound"); ok && sound != "" {
		count, err := sys.GetSoundPlayCount(ctx, sound)
		if err != nil {
			updateResponse(event, fmt.Sprintf(sys.MsgGenericError, err))
			return
		}
		updateResponse(event, fmt.Sprintf("**%s** has been played **%d** time(s).", sound, count))
		return
	}

	counts, err := sys.GetTopPlays(ctx, 10)
	if err != nil {
		updateResponse(event, fmt.Sprintf(sys.MsgGenericError, err))
		return
	}
	if len(counts) == 0 {
		updateResponse(event, "Nothing has been played yet.")
		return
	}

	var b strings.Builder
	b.WriteString("**Most Played Sounds**\n\n")
	for i, pc := range counts {
		b.WriteString(fmt.Sprintf("%d. **%s** - %d play(s)\n", i+1, pc.Sound, pc.Count))
	}

	updateResponse(event, b.String())
}
