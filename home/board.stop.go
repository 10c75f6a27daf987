package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/sys"
)

func handleBoardStop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	_ = event.DeferCreateMessage(false)

	if err := coordinator.Stop(); err != nil {
		updateResponse(event, sys.MsgBoardErrNotBound)
		return
	}
	updateResponse(event, sys.MsgBoardStopped)
}
