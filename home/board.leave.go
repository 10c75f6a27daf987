package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/sys"
)

func handleBoardLeave(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if _, bound := session.CurrentBinding(); !bound {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(sys.MsgBoardErrNotBound).
			WithEphemeral(true))
		return
	}

	_ = event.DeferCreateMessage(false)

	_ = coordinator.Stop()
	session.Unbind()
	voiceClient.Leave(sys.AppContext)

	updateResponse(event, sys.MsgBoardLeft)
}
