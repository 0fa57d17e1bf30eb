package transport

import (
	"SurveyBot/model"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const (
	discordMaxMessageLength = 2000
	discordButtonsPerRow    = 5
	discordRowsPerMessage   = 5
)

type discordPrompt struct {
	channelID string
	messageID string
}

// Discord is the Discord direct-message adapter.
type Discord struct {
	session *discordgo.Session
	handler EventHandler
	logger  zerolog.Logger

	mu       sync.Mutex
	channels map[int64]string
	prompts  map[int64]discordPrompt
}

func NewDiscord(token string, handler EventHandler, logger zerolog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	d := &Discord{
		session:  session,
		handler:  handler,
		logger:   logger,
		channels: make(map[int64]string),
		prompts:  make(map[int64]discordPrompt),
	}
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onInteractionCreate)
	return d, nil
}

func (d *Discord) SetHandler(handler EventHandler) {
	d.handler = handler
}

// Run opens the gateway connection and keeps it until ctx ends.
func (d *Discord) Run(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	d.logger.Info().Msg("discord gateway connected")
	<-ctx.Done()
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return nil
}

func (d *Discord) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	sender, text, ok := discordMessageEvent(m)
	if !ok || d.handler == nil {
		return
	}
	d.rememberChannel(sender.ID, m.ChannelID)
	d.handler.PostText(context.Background(), sender, text, nil)
}

// onInteractionCreate acknowledges a button press before queueing it: Discord
// fails interactions left unanswered for three seconds. Notices raised while
// handling the press go out as ephemeral follow-ups.
func (d *Discord) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || d.handler == nil {
		return
	}
	sender, ok := discordInteractionSender(i)
	if !ok {
		return
	}

	interaction := i.Interaction
	err := d.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		d.logger.Debug().Err(err).Msg("acknowledge interaction failed")
	}

	ack := &buttonAck{id: i.ID, recipient: sender.ID, ref: interaction}
	if i.Message != nil {
		pressed := discordPrompt{channelID: i.ChannelID, messageID: i.Message.ID}
		d.rememberChannel(sender.ID, i.ChannelID)
		d.rememberPrompt(sender.ID, pressed)
		ack.message = pressed
	}
	d.handler.PostButton(withAck(context.Background(), ack), sender, i.MessageComponentData().CustomID, nil)
}

// SendText sends a DM. Keyboards larger than one Discord message allows are
// continued in follow-up messages without text.
func (d *Discord) SendText(ctx context.Context, recipient int64, text string, opts ...model.SendOption) error {
	msg := model.BuildMessage(text, opts...)
	channelID, err := d.dmChannel(recipient)
	if err != nil {
		return err
	}

	pages := discordComponents(msg.Buttons)
	first := &discordgo.MessageSend{Content: msg.Text}
	if len(pages) > 0 {
		first.Components = pages[0]
	}
	sent, err := d.session.ChannelMessageSendComplex(channelID, first)
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	d.rememberPrompt(recipient, discordPrompt{channelID: channelID, messageID: sent.ID})

	for _, page := range pages[min(1, len(pages)):] {
		if _, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: "\u200b", Components: page}); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// EditDisplayedText rewrites the message whose button is being handled, or the
// last message sent to recipient outside a press.
func (d *Discord) EditDisplayedText(ctx context.Context, recipient int64, text string, buttons model.Keyboard) error {
	prompt, ok := d.displayed(ctx, recipient)
	if ok {
		components := []discordgo.MessageComponent{}
		if pages := discordComponents(buttons); len(pages) > 0 {
			components = pages[0]
		}
		edit := discordgo.NewMessageEdit(prompt.channelID, prompt.messageID).SetContent(text)
		edit.Components = &components
		_, err := d.session.ChannelMessageEditComplex(edit)
		if err == nil {
			return nil
		}
		zerolog.Ctx(ctx).Debug().Err(err).Str("message_id", prompt.messageID).Msg("edit refused, sending new message")
	}
	return d.SendText(ctx, recipient, text, model.WithButtons(buttons))
}

// Notify follows up ephemerally on the interaction being handled, or sends a DM.
func (d *Discord) Notify(ctx context.Context, recipient int64, text string) error {
	if ack := ackFor(ctx, recipient); ack != nil && ack.claim() {
		return d.followUpEphemeral(ack, text)
	}
	return d.SendText(ctx, recipient, text)
}

func (d *Discord) MaxMessageLength() int {
	return discordMaxMessageLength
}

// ContactURL links to the reviewer's Discord profile.
func (d *Discord) ContactURL(reviewer model.Sender) string {
	if reviewer.ID == 0 {
		return ""
	}
	return "https://discord.com/users/" + strconv.FormatInt(reviewer.ID, 10)
}

func (d *Discord) followUpEphemeral(ack *buttonAck, text string) error {
	interaction, ok := ack.ref.(*discordgo.Interaction)
	if !ok {
		return errors.New("button press carries no interaction")
	}
	_, err := d.session.FollowupMessageCreate(interaction, false, &discordgo.WebhookParams{
		Content: text,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		return fmt.Errorf("follow up on interaction: %w", err)
	}
	return nil
}

func (d *Discord) dmChannel(recipient int64) (string, error) {
	d.mu.Lock()
	channelID, ok := d.channels[recipient]
	d.mu.Unlock()
	if ok {
		return channelID, nil
	}

	channel, err := d.session.UserChannelCreate(strconv.FormatInt(recipient, 10))
	if err != nil {
		return "", fmt.Errorf("open dm channel with %d: %w", recipient, err)
	}
	d.rememberChannel(recipient, channel.ID)
	return channel.ID, nil
}

func (d *Discord) rememberChannel(userID int64, channelID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[userID] = channelID
}

func (d *Discord) rememberPrompt(userID int64, p discordPrompt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts[userID] = p
}

func (d *Discord) displayed(ctx context.Context, recipient int64) (discordPrompt, bool) {
	if m, ok := pressedMessage(ctx, recipient); ok {
		if p, ok := m.(discordPrompt); ok {
			return p, true
		}
	}
	return d.prompt(recipient)
}

func (d *Discord) prompt(userID int64) (discordPrompt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.prompts[userID]
	return p, ok
}

func discordMessageEvent(m *discordgo.MessageCreate) (model.Sender, string, bool) {
	if m.Author == nil || m.Author.Bot || m.GuildID != "" || m.Content == "" {
		return model.Sender{}, "", false
	}
	sender, ok := discordSender(m.Author)
	return sender, m.Content, ok
}

func discordInteractionSender(i *discordgo.InteractionCreate) (model.Sender, bool) {
	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return model.Sender{}, false
	}
	return discordSender(user)
}

func discordSender(u *discordgo.User) (model.Sender, bool) {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return model.Sender{}, false
	}
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return model.Sender{ID: id, DisplayName: name, Handle: u.Username}, true
}

// discordComponents lays the keyboard out in Discord's limits of five buttons
// per row and five rows per message, one component set per message.
func discordComponents(kb model.Keyboard) [][]discordgo.MessageComponent {
	var rows []discordgo.ActionsRow
	for _, row := range kb {
		for start := 0; start < len(row); start += discordButtonsPerRow {
			end := min(start+discordButtonsPerRow, len(row))
			var actions discordgo.ActionsRow
			for _, b := range row[start:end] {
				actions.Components = append(actions.Components, discordButton(b))
			}
			rows = append(rows, actions)
		}
	}

	var pages [][]discordgo.MessageComponent
	for start := 0; start < len(rows); start += discordRowsPerMessage {
		end := min(start+discordRowsPerMessage, len(rows))
		page := make([]discordgo.MessageComponent, 0, end-start)
		for _, r := range rows[start:end] {
			page = append(page, r)
		}
		pages = append(pages, page)
	}
	return pages
}

func discordButton(b model.Button) discordgo.Button {
	if b.URL != "" {
		return discordgo.Button{Label: b.Text, Style: discordgo.LinkButton, URL: b.URL}
	}
	return discordgo.Button{Label: b.Text, Style: discordgo.PrimaryButton, CustomID: b.Data}
}
