package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/assault-pugbot/internal/config"
	"github.com/jensholdgaard/assault-pugbot/internal/match"
	"github.com/jensholdgaard/assault-pugbot/internal/rating"
	"github.com/jensholdgaard/assault-pugbot/internal/roster"
	"github.com/jensholdgaard/assault-pugbot/internal/telemetry"
)

// MessageLimit is the longest message Discord accepts.
const MessageLimit = 2000

var (
	ErrNotAdmin     = errors.New("you do not have permission to use this command")
	ErrNoRankedMode = errors.New("no ranked mode given")
)

// Handlers process Discord interactions.
type Handlers struct {
	cfg          config.DiscordConfig
	pugs         *match.Manager
	ratings      *rating.Manager
	queryTimeout time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	run          map[string]command
}

// command runs one slash command. The reply is posted in place of the
// deferred interaction response.
type command struct {
	run       func(ctx context.Context, r *request) (string, error)
	admin     bool
	pug       bool // needs the channel's pug
	ephemeral bool
}

// request carries one interaction through a command.
type request struct {
	session *discordgo.Session
	channel string
	user    *roster.Player
	admin   bool
	opts    map[string]*discordgo.ApplicationCommandInteractionDataOption
	pug     *match.Coordinator
	files   []*discordgo.File
}

// NewHandlers creates new command handlers.
func NewHandlers(cfg config.DiscordConfig, pugs *match.Manager, ratings *rating.Manager, queryTimeout time.Duration, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	h := &Handlers{
		cfg:          cfg,
		pugs:         pugs,
		ratings:      ratings,
		queryTimeout: queryTimeout,
		logger:       logger,
		tracer:       tp.Tracer("github.com/jensholdgaard/assault-pugbot/internal/bot/commands"),
	}
	h.run = h.commands()
	return h
}

func (h *Handlers) commands() map[string]command {
	return map[string]command{
		"enable":          {run: h.enable, admin: true},
		"disable":         {run: h.disable, admin: true},
		"join":            {run: h.join, pug: true},
		"leave":           {run: h.leave, pug: true},
		"list":            {run: h.list, pug: true},
		"captain":         {run: h.captain, pug: true},
		"randomcaptains":  {run: h.randomCaptains, pug: true},
		"pick":            {run: h.pick, pug: true},
		"map":             {run: h.pickMap, pug: true},
		"listmaps":        {run: h.listMaps, pug: true},
		"listmodes":       {run: h.listModes},
		"setmode":         {run: h.setMode, pug: true},
		"setplayers":      {run: h.setPlayers, pug: true},
		"adminsetplayers": {run: h.adminSetPlayers, pug: true, admin: true},
		"setmaps":         {run: h.setMaps, pug: true},
		"reset":           {run: h.reset, pug: true},
		"retry":           {run: h.retry, pug: true},
		"resetcaptains":   {run: h.resetCaptains, pug: true},
		"last":            {run: h.last, pug: true},
		"passwords":       {run: h.passwords, pug: true, admin: true, ephemeral: true},
		"promote":         {run: h.promote, pug: true},
		"poke":            {run: h.poke, pug: true},
		"servers":         {run: h.servers, pug: true},
		"server":          {run: h.server, pug: true},
		"serverstatus":    {run: h.serverStatus, pug: true},
		"serverquery":     {run: h.serverQuery, pug: true},
		"setserver":       {run: h.setServer, pug: true, admin: true},
		"controlserver":   {run: h.controlServer, pug: true, admin: true},
		"refreshservers":  {run: h.refreshServers, pug: true, admin: true},
		"rotation":        {run: h.rotation, pug: true},
		"addmap":          {run: h.addMap, pug: true, admin: true},
		"insertmap":       {run: h.insertMap, pug: true, admin: true},
		"replacemap":      {run: h.replaceMap, pug: true, admin: true},
		"removemap":       {run: h.removeMap, pug: true, admin: true},

		"rkset":       {run: h.rkSet, admin: true},
		"rkdel":       {run: h.rkDel, admin: true},
		"rkrecalc":    {run: h.rkRecalc, admin: true},
		"rkvoid":      {run: h.rkVoid, admin: true},
		"rkrecent":    {run: h.rkRecent},
		"rkreport":    {run: h.rkReport},
		"rkrp":        {run: h.rkRP},
		"rkmapsim":    {run: h.rkMapSim, pug: true, admin: true},
		"rkresetmaps": {run: h.rkResetMaps, pug: true, admin: true},
		"rkboost":     {run: h.rkBoost, pug: true, admin: true},
		"rknerf":      {run: h.rkNerf, pug: true, admin: true},
		"rkconf":      {run: h.rkConf, admin: true},
		"rkscoring":   {run: h.rkScoring, admin: true},
		"rkaddmaps":   {run: h.rkAddMaps, admin: true},
		"rkmaplimit":  {run: h.rkMapLimit, admin: true},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	ctx, span := h.tracer.Start(context.Background(), "Handlers.InteractionCreate",
		trace.WithAttributes(
			attribute.String("command", data.Name),
			attribute.String("channel", i.ChannelID),
		),
	)
	defer span.End()
	logger := telemetry.LogWithTrace(ctx, h.logger)

	cmd, ok := h.run[data.Name]
	if !ok {
		respond(s, i, "Unknown command")
		return
	}

	r := &request{
		session: s,
		channel: i.ChannelID,
		user:    playerOf(i),
		admin:   h.isAdmin(i.Member),
		opts:    make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options)),
	}
	for _, o := range data.Options {
		r.opts[o.Name] = o
	}
	if cmd.admin && !r.admin {
		respondEphemeral(s, i, ErrNotAdmin.Error())
		return
	}
	if cmd.pug {
		pug, err := h.pugs.Get(i.ChannelID)
		if err != nil {
			respondEphemeral(s, i, sentence(err))
			return
		}
		r.pug = pug
	}

	if err := deferReply(s, i, cmd.ephemeral); err != nil {
		logger.ErrorContext(ctx, "failed to defer interaction", slog.String("command", data.Name), slog.Any("error", err))
		return
	}

	reply, err := cmd.run(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.InfoContext(ctx, "command rejected",
			slog.String("command", data.Name),
			slog.String("user_id", r.user.ID),
			slog.Any("error", err),
		)
		reply = sentence(err)
	}
	if err := edit(s, i, reply, r.files, cmd.ephemeral); err != nil {
		logger.ErrorContext(ctx, "failed to send reply", slog.String("command", data.Name), slog.Any("error", err))
	}
}

func (h *Handlers) isAdmin(m *discordgo.Member) bool {
	if m == nil {
		return false
	}
	if m.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return h.cfg.AdminRole != "" && slices.Contains(m.Roles, h.cfg.AdminRole)
}

// playerOf returns the invoking user as a pug player, named by their
// server nickname when they have one.
func playerOf(i *discordgo.InteractionCreate) *roster.Player {
	if i.Member != nil && i.Member.User != nil {
		p := userPlayer(i.Member.User)
		if i.Member.Nick != "" {
			p.Name = i.Member.Nick
		}
		p.Roles = i.Member.Roles
		return p
	}
	if i.User != nil {
		return userPlayer(i.User)
	}
	return &roster.Player{}
}

func userPlayer(u *discordgo.User) *roster.Player {
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return &roster.Player{ID: u.ID, Name: name}
}

// sentence renders an error for chat with a leading capital.
func sentence(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func (r *request) str(name string) string {
	if o, ok := r.opts[name]; ok {
		return o.StringValue()
	}
	return ""
}

func (r *request) integer(name string, def int) int {
	if o, ok := r.opts[name]; ok {
		return int(o.IntValue())
	}
	return def
}

func (r *request) boolean(name string) bool {
	if o, ok := r.opts[name]; ok {
		return o.BoolValue()
	}
	return false
}

func (r *request) number(name string, def float64) float64 {
	if o, ok := r.opts[name]; ok {
		return o.FloatValue()
	}
	return def
}

// target returns the user option name as a player, or the invoking user.
func (r *request) target(name string) *roster.Player {
	o, ok := r.opts[name]
	if !ok {
		return r.user
	}
	return userPlayer(o.UserValue(r.session))
}

// ParseNumbers reads the space or comma separated numbers of a pick.
func ParseNumbers(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("no numbers given")
	}
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", f)
		}
		out = append(out, n)
	}
	return out, nil
}

// SplitMessage breaks msg into parts no longer than limit, preferring to
// split at line breaks.
func SplitMessage(msg string, limit int) []string {
	var parts []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		parts = append(parts, msg[:cut])
		msg = strings.TrimPrefix(msg[cut:], "\n")
	}
	if msg != "" || len(parts) == 0 {
		parts = append(parts, msg)
	}
	return parts
}

func deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

// edit fills the deferred response with msg. Overflow goes out as
// follow-up messages.
func edit(s *discordgo.Session, i *discordgo.InteractionCreate, msg string, files []*discordgo.File, ephemeral bool) error {
	parts := SplitMessage(msg, MessageLimit)
	first := parts[0]
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &first, Files: files}); err != nil {
		return fmt.Errorf("editing response: %w", err)
	}
	for _, p := range parts[1:] {
		params := &discordgo.WebhookParams{Content: p}
		if ephemeral {
			params.Flags = discordgo.MessageFlagsEphemeral
		}
		if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
			return fmt.Errorf("sending follow-up: %w", err)
		}
	}
	return nil
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
