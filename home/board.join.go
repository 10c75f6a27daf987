package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/sys"
)

func handleBoardJoin(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if event.GuildID() == nil {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(sys.MsgBoardErrGuildOnly).
			WithEphemeral(true))
		return
	}

	voiceState, ok := event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID)
	if !ok || voiceState.ChannelID == nil {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(sys.MsgBoardErrNotInVoice).
			WithEphemeral(true))
		return
	}

	_ = event.DeferCreateMessage(false)

	session.Bind(*event.GuildID(), *voiceState.ChannelID)

	binding, _ := session.CurrentBinding()
	if err := session.EnsureReady(sys.AppContext, binding); err != nil {
		session.Unbind()
		updateResponse(event, fmt.Sprintf(sys.MsgBoardErrPlayFail, err))
		return
	}

	updateResponse(event, fmt.Sprintf(sys.MsgBoardJoined, voiceState.ChannelID.String()))
}
