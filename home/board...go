package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/blare/proc"
	"github.com/leeineian/blare/sys"
)

// Wired from main once the playback stack is constructed. Handlers only
// run after the gateway is open, so these are set well before first use.
var (
	coordinator *proc.Coordinator
	session     *proc.Session
	voiceClient proc.VoiceClient
)

// Wire hands the board commands their playback collaborators.
func Wire(c *proc.Coordinator, s *proc.Session, v proc.VoiceClient) {
	coordinator = c
	session = s
	voiceClient = v
}

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "board",
		Description: "Soundboard",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a sound into the voice channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "sound",
						Description:  "The sound to play",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop the current sound",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "join",
				Description: "Bind the bot to your voice channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "leave",
				Description: "Unbind and disconnect from voice",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "sounds",
				Description: "List the sound catalog",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "top",
				Description: "Show play counts",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "sound",
						Description:  "Show the count for one sound",
						Required:     false,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "upsert",
				Description: "Add or update a catalog sound (owners only)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "name",
						Description: "Unique sound name",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "source",
						Description: "Where the audio lives",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "local file", Value: "local"},
							{Name: "remote URL", Value: "remote"},
						},
					},
					discord.ApplicationCommandOptionString{
						Name:        "location",
						Description: "Filename in the sounds directory, or a URL",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "volume",
						Description: "Playback volume (0.0 to 1.5, default 1.0)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a catalog sound (owners only)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "name",
						Description:  "The sound to remove",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}

		switch *data.SubCommandName {
		case "play":
			handleBoardPlay(event, data)
		case "stop":
			handleBoardStop(event, data)
		case "join":
			handleBoardJoin(event, data)
		case "leave":
			handleBoardLeave(event, data)
		case "sounds":
			handleBoardSounds(event, data)
		case "top":
			handleBoardTop(event, data)
		case "upsert":
			handleBoardUpsert(event, data)
		case "remove":
			handleBoardRemove(event, data)
		}
	})

	sys.RegisterAutocompleteHandler("board", handleBoardAutocomplete)
}
