package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/assault-pugbot/internal/match"
)

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func intOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

// bounded limits an integer or number option to [lo, hi].
func bounded(o *discordgo.ApplicationCommandOption, lo, hi float64) *discordgo.ApplicationCommandOption {
	o.MinValue = &lo
	o.MaxValue = hi
	return o
}

func numberOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionNumber,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func boolOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        name,
		Description: desc,
	}
}

func userOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func choices(opt *discordgo.ApplicationCommandOption, values ...string) *discordgo.ApplicationCommandOption {
	for _, v := range values {
		opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v})
	}
	return opt
}

func rankedModeOpt() *discordgo.ApplicationCommandOption {
	return choices(stringOpt("ranked-mode", "Ranked mode, defaults to the channel's mode", false), rankedModes()...)
}

func rankedModes() []string {
	var out []string
	for _, m := range match.Modes {
		if m.Ranked {
			out = append(out, m.Name)
		}
	}
	return out
}

func cmd(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	dm := false
	return &discordgo.ApplicationCommand{Name: name, Description: desc, Options: opts, DMPermission: &dm}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		cmd("enable", "Run pugs in this channel (admin only)"),
		cmd("disable", "Stop running pugs in this channel (admin only)"),
		cmd("join", "Sign up for the pug",
			stringOpt("note", `"q" to queue for the next pug, "nomic" if you have no microphone`, false)),
		cmd("leave", "Leave the pug or the queue"),
		cmd("list", "Show the pug"),
		cmd("captain", "Volunteer as a captain"),
		cmd("randomcaptains", "Choose the missing captains at random"),
		cmd("pick", "Pick players for your team",
			stringOpt("numbers", "Player numbers, e.g. 3 or 3 5 7", true)),
		cmd("map", "Pick a map for the match",
			intOpt("number", "Map number from /listmaps", true)),
		cmd("listmaps", "Show the maps to pick from",
			boolOpt("all", "Show the whole server map list in ranked mode")),
		cmd("listmodes", "Show the available pug modes"),
		cmd("setmode", "Change the pug mode",
			choices(stringOpt("mode", "Pug mode", true), match.ModeNames()...)),
		cmd("setplayers", "Change the number of players",
			intOpt("players", "An even number within the mode's limits", true)),
		cmd("adminsetplayers", "Force the number of players (admin only)",
			intOpt("players", "An even number", true)),
		cmd("setmaps", "Change the number of maps",
			intOpt("maps", "Number of maps", true)),
		cmd("reset", "Reset the pug; while a match is live both teams must ask"),
		cmd("retry", "Retry a failed match setup"),
		cmd("resetcaptains", "Return every drafted player and pick captains again"),
		cmd("last", "Show the last match"),
		cmd("passwords", "Show the passwords of the live match (admin only)"),
		cmd("promote", "Advertise the pug to the channel"),
		cmd("poke", "Mention everyone signed"),
		cmd("servers", "List the game servers"),
		cmd("server", "Show the game server in use"),
		cmd("serverstatus", "Show the live state of the game server"),
		cmd("serverquery", "Query the game server directly",
			choices(stringOpt("type", "Query type, defaults to info", false), "info", "players", "rules", "status")),
		cmd("setserver", "Play on another game server (admin only)",
			intOpt("number", "Server number from /servers", true)),
		cmd("controlserver", "Start or stop an on-demand server (admin only)",
			intOpt("number", "Server number from /servers", true),
			choices(stringOpt("action", "Start or stop", true), "start", "stop")),
		cmd("refreshservers", "Reload the server list from the API (admin only)"),
		cmd("rotation", "Show the weekly server rotation"),
		cmd("addmap", "Add a map to the server map list (admin only)",
			stringOpt("map", "Map name", true)),
		cmd("insertmap", "Insert a map into the server map list (admin only)",
			intOpt("position", "Position in the list", true),
			stringOpt("map", "Map name", true)),
		cmd("replacemap", "Replace a map in the server map list (admin only)",
			intOpt("number", "Map number to replace", true),
			stringOpt("map", "New map name", true)),
		cmd("removemap", "Remove a map from the server map list (admin only)",
			stringOpt("map", "Map name", true)),

		cmd("rkset", "Set a player's ranked rating (admin only)",
			userOpt("player", "Player", true),
			intOpt("rating", "Rating points", true),
			stringOpt("external-id", "Player id on the stats site", false),
			rankedModeOpt()),
		cmd("rkdel", "Remove a player's ranked rating (admin only)",
			userOpt("player", "Player", true),
			rankedModeOpt()),
		cmd("rkrecalc", "Replay a player's rating from their matches (admin only)",
			userOpt("player", "Player", true),
			intOpt("seed", "Starting rating, defaults to the oldest known", false),
			rankedModeOpt()),
		cmd("rkvoid", "Toggle whether a ranked match counts (admin only)",
			stringOpt("match", "Match code", true),
			rankedModeOpt()),
		cmd("rkrecent", "Show recent ranked matches",
			intOpt("count", "Number of matches, defaults to 5", false),
			rankedModeOpt()),
		cmd("rkreport", "Show the rating changes of a ranked match",
			stringOpt("match", "Match code", true),
			rankedModeOpt()),
		cmd("rkrp", "Show a ranked rating and its history",
			userOpt("player", "Player, defaults to you", false),
			rankedModeOpt()),
		cmd("rkmapsim", "Simulate ranked map selection (admin only)",
			bounded(intOpt("runs", "Number of selections, defaults to 1", false), 1, match.MaxSimulations)),
		cmd("rkresetmaps", "Reset every ranked map's desirability (admin only)"),
		cmd("rkboost", "Make a ranked map more likely (admin only)",
			stringOpt("map", "Map name", true),
			numberOpt("factor", "Multiplier, defaults to 2", false)),
		cmd("rknerf", "Make a ranked map less likely (admin only)",
			stringOpt("map", "Map name", true),
			numberOpt("factor", "Divisor, defaults to 2", false)),
		cmd("rkconf", "Configure ranked captains (admin only)",
			choices(stringOpt("captains", "How captains are chosen", true), "none", "random", "role", "volunteer"),
			stringOpt("role", "Captain role for role mode", false),
			intOpt("window", "Volunteer window in seconds", false),
			rankedModeOpt()),
		cmd("rkscoring", "Configure ranked scoring (admin only)",
			choices(stringOpt("type", "Points per map or per game", true), "permap", "pergame"),
			intOpt("teamwin", "Points for each winner", true),
			intOpt("teamlose", "Points for each loser", true),
			intOpt("capwin", "Extra points for the winning captain", false),
			intOpt("caplose", "Extra points for the losing captain", false),
			intOpt("volcapwin", "Extra points for a winning volunteer captain", false),
			intOpt("volcaplose", "Extra points for a losing volunteer captain", false),
			rankedModeOpt()),
		cmd("rkaddmaps", "Add maps to the ranked map list (admin only)",
			stringOpt("maps", "Entries as Map:Order:Weight separated by spaces", true),
			boolOpt("clear", "Empty the list first"),
			rankedModeOpt()),
		cmd("rkmaplimit", "Fix the number of ranked maps (admin only)",
			intOpt("limit", "Maps per match, 0 lets admins choose", true),
			rankedModeOpt()),
	}
}
