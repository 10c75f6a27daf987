package home

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/proc"
	"github.com/leeineian/blare/sys"
)

func handleBoardUpsert(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !sys.GlobalConfig.IsOwner(event.User().ID.String()) {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(sys.MsgBoardErrOwnerOnly).
			WithEphemeral(true))
		return
	}

	name, _ := data.OptString("name")
	source, _ := data.OptString("source")
	location, _ := data.OptString("location")

	volume := 1.0
	if raw, ok := data.OptString("volume"); ok {
		volume = proc.ParseVolume(raw)
	}

	_ = event.DeferCreateMessage(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &sys.SoundRecord{
		Name:       name,
		SourceKind: sys.SourceKind(source),
		Location:   location,
		Volume:     volume,
	}
	if err := sys.UpsertSound(ctx, rec); err != nil {
		updateResponse(event, fmt.Sprintf(sys.MsgGenericError, err))
		return
	}

	// A changed record must not serve a stale resolution
	coordinator.Invalidate(name)

	updateResponse(event, fmt.Sprintf(sys.MsgBoardUpserted, name))
}
