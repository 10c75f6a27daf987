package home

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/sys"
)

func handleBoardRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if !sys.GlobalConfig.IsOwner(event.User().ID.String()) {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(sys.MsgBoardErrOwnerOnly).
			WithEphemeral(true))
		return
	}

	name, _ := data.OptString("name")

	_ = event.DeferCreateMessage(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := sys.DeleteSound(ctx, name)
	if err != nil {
		updateResponse(event, fmt.Sprintf(sys.MsgGenericError, err))
		return
	}
	if !removed {
		updateResponse(event, fmt.Sprintf(sys.MsgBoardErrNotFound, name))
		return
	}

	coordinator.Invalidate(name)

	updateResponse(event, fmt.Sprintf(sys.MsgBoardRemoved, name))
}
