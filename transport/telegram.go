package transport

import (
	"SurveyBot/model"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

const telegramMaxMessageLength = 4096

// Telegram is the Telegram Bot API adapter.
type Telegram struct {
	bot     *bot.Bot
	handler EventHandler
	logger  zerolog.Logger

	mu sync.Mutex
	// prompts holds the id of the message last shown to each chat, the one
	// EditDisplayedText rewrites.
	prompts map[int64]int
}

// NewTelegram creates the bot client. opts are appended after the adapter's
// own options, e.g. bot.WithWebhookSecretToken.
func NewTelegram(token string, handler EventHandler, logger zerolog.Logger, opts ...bot.Option) (*Telegram, error) {
	t := &Telegram{
		handler: handler,
		logger:  logger,
		prompts: make(map[int64]int),
	}
	options := append([]bot.Option{
		bot.WithDefaultHandler(t.handleUpdate),
		bot.WithErrorsHandler(func(err error) {
			logger.Warn().Err(err).Msg("telegram client error")
		}),
	}, opts...)

	b, err := bot.New(token, options...)
	if err != nil {
		return nil, fmt.Errorf("error creating bot: %w", err)
	}
	t.bot = b
	return t, nil
}

// SetHandler replaces the event handler. Call before Run.
func (t *Telegram) SetHandler(handler EventHandler) {
	t.handler = handler
}

// RegisterCommands publishes the command menu.
func (t *Telegram) RegisterCommands(ctx context.Context, texts model.Messages) error {
	_, err := t.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: strings.TrimPrefix(model.CommandStart, "/"), Description: texts.StartCommandDescription},
			{Command: strings.TrimPrefix(model.CommandUsers, "/"), Description: texts.UsersCommandDescription},
		},
	})
	if err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}

// RunPolling long-polls for updates until ctx ends.
func (t *Telegram) RunPolling(ctx context.Context) {
	if _, err := t.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		t.logger.Warn().Err(err).Msg("could not delete webhook before polling")
	}
	t.logger.Info().Msg("telegram long polling started")
	t.bot.Start(ctx)
	<-ctx.Done()
}

// WebhookHandler registers url with Telegram and returns the handler that
// receives its updates. RunWebhook must run for updates to be processed.
func (t *Telegram) WebhookHandler(ctx context.Context, url, secret string) (http.Handler, error) {
	if _, err := t.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: url, SecretToken: secret}); err != nil {
		return nil, fmt.Errorf("set webhook: %w", err)
	}
	return t.bot.WebhookHandler(), nil
}

// RunWebhook processes webhook updates until ctx ends.
func (t *Telegram) RunWebhook(ctx context.Context) {
	t.logger.Info().Msg("telegram webhook processing started")
	t.bot.StartWebhook(ctx)
	<-ctx.Done()
}

func (t *Telegram) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if t.handler == nil {
		return
	}
	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		sender, text, ok := messageEvent(update.Message)
		if !ok {
			return
		}
		t.handler.PostText(ctx, sender, text, nil)
	}
}

func (t *Telegram) handleCallback(ctx context.Context, query *models.CallbackQuery) {
	sender := senderFromUser(query.From)
	ack := &buttonAck{id: query.ID, recipient: sender.ID}
	if chatID, messageID, ok := callbackMessage(query.Message); ok {
		t.rememberPrompt(chatID, messageID)
		ack.message = messageID
	}

	t.handler.PostButton(withAck(ctx, ack), sender, query.Data, func(error) {
		if ack.claim() {
			t.answerCallback(context.WithoutCancel(ctx), ack.id, "")
		}
	})
}

// SendText sends a new message to the recipient's private chat.
func (t *Telegram) SendText(ctx context.Context, recipient int64, text string, opts ...model.SendOption) error {
	msg := model.BuildMessage(text, opts...)
	params := &bot.SendMessageParams{
		ChatID: recipient,
		Text:   msg.Text,
	}
	if msg.Markdown {
		params.ParseMode = models.ParseModeMarkdown
	}
	if kb := inlineKeyboard(msg.Buttons); kb != nil {
		params.ReplyMarkup = kb
	}

	sent, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	t.rememberPrompt(recipient, sent.ID)
	return nil
}

// EditDisplayedText rewrites the message whose button is being handled, or
// the last message shown to recipient outside a press. It sends a new one
// when there is nothing to edit or the edit is refused.
func (t *Telegram) EditDisplayedText(ctx context.Context, recipient int64, text string, buttons model.Keyboard) error {
	messageID, ok := t.displayed(ctx, recipient)
	if ok {
		params := &bot.EditMessageTextParams{
			ChatID:    recipient,
			MessageID: messageID,
			Text:      text,
		}
		if kb := inlineKeyboard(buttons); kb != nil {
			params.ReplyMarkup = kb
		}
		_, err := t.bot.EditMessageText(ctx, params)
		if err == nil {
			return nil
		}
		zerolog.Ctx(ctx).Debug().Err(err).Int("message_id", messageID).Msg("edit refused, sending new message")
	}
	return t.SendText(ctx, recipient, text, model.WithButtons(buttons))
}

// Notify answers the button press being handled with an alert, or sends a
// plain message outside a press.
func (t *Telegram) Notify(ctx context.Context, recipient int64, text string) error {
	if ack := ackFor(ctx, recipient); ack != nil && ack.claim() {
		return t.answerCallbackAlert(ctx, ack.id, text)
	}
	return t.SendText(ctx, recipient, text)
}

func (t *Telegram) MaxMessageLength() int {
	return telegramMaxMessageLength
}

func (t *Telegram) displayed(ctx context.Context, recipient int64) (int, bool) {
	if m, ok := pressedMessage(ctx, recipient); ok {
		if id, ok := m.(int); ok {
			return id, true
		}
	}
	return t.prompt(recipient)
}

// ContactURL links to the reviewer's public username, empty without one.
func (t *Telegram) ContactURL(reviewer model.Sender) string {
	if reviewer.Handle == "" {
		return ""
	}
	return "https://t.me/" + reviewer.Handle
}

func (t *Telegram) answerCallback(ctx context.Context, id, text string) {
	if _, err := t.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: id, Text: text}); err != nil {
		t.logger.Debug().Err(err).Msg("answer callback query failed")
	}
}

func (t *Telegram) answerCallbackAlert(ctx context.Context, id, text string) error {
	_, err := t.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: id,
		Text:            text,
		ShowAlert:       true,
	})
	if err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

func (t *Telegram) rememberPrompt(chatID int64, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompts[chatID] = messageID
}

func (t *Telegram) prompt(chatID int64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.prompts[chatID]
	return id, ok
}

func senderFromUser(u models.User) model.Sender {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return model.Sender{ID: u.ID, DisplayName: name, Handle: u.Username}
}

// messageEvent extracts the sender and text of a private text message.
func messageEvent(msg *models.Message) (model.Sender, string, bool) {
	if msg.From == nil || msg.From.IsBot || msg.Text == "" {
		return model.Sender{}, "", false
	}
	if chatType := string(msg.Chat.Type); chatType != "" && chatType != "private" {
		return model.Sender{}, "", false
	}
	return senderFromUser(*msg.From), msg.Text, true
}

func callbackMessage(m models.MaybeInaccessibleMessage) (int64, int, bool) {
	switch {
	case m.Message != nil:
		return m.Message.Chat.ID, m.Message.ID, true
	case m.InaccessibleMessage != nil:
		return m.InaccessibleMessage.Chat.ID, m.InaccessibleMessage.MessageID, true
	}
	return 0, 0, false
}

func inlineKeyboard(kb model.Keyboard) *models.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			button := models.InlineKeyboardButton{Text: b.Text}
			if b.URL != "" {
				button.URL = b.URL
			} else {
				button.CallbackData = b.Data
			}
			buttons = append(buttons, button)
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
