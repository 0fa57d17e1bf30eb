package transport

import (
	"SurveyBot/model"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordComponentsLayout(t *testing.T) {
	assert.Empty(t, discordComponents(nil))

	nav := discordComponents(model.Row(
		model.Button{Text: "Back", Data: model.ButtonBackQuestion},
		model.Button{Text: "Contact", URL: "https://t.me/reviewer"},
	))
	require.Len(t, nav, 1)
	require.Len(t, nav[0], 1)
	row, ok := nav[0][0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)

	back := row.Components[0].(discordgo.Button)
	assert.Equal(t, model.ButtonBackQuestion, back.CustomID)
	assert.Equal(t, discordgo.PrimaryButton, back.Style)
	link := row.Components[1].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, link.Style)
	assert.Equal(t, "https://t.me/reviewer", link.URL)
	assert.Empty(t, link.CustomID)
}

func TestDiscordComponentsSplitsLargeKeyboards(t *testing.T) {
	// 12 single-button rows (a user picker) plus one row of 7 buttons.
	var kb model.Keyboard
	for i := 0; i < 12; i++ {
		kb = append(kb, []model.Button{{Text: fmt.Sprint(i), Data: model.ViewButton(int64(i))}})
	}
	wide := make([]model.Button, 7)
	for i := range wide {
		wide[i] = model.Button{Text: "w", Data: fmt.Sprintf("w%d", i)}
	}
	kb = append(kb, wide)

	pages := discordComponents(kb)

	// 12 rows + the wide row split into 5 and 2 = 14 rows, five per message.
	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 5)
	assert.Len(t, pages[1], 5)
	assert.Len(t, pages[2], 4)
	last := pages[2][3].(discordgo.ActionsRow)
	assert.Len(t, last.Components, 2)
	for _, page := range pages {
		for _, c := range page {
			assert.LessOrEqual(t, len(c.(discordgo.ActionsRow).Components), discordButtonsPerRow)
		}
	}
}

func TestDiscordMessageEvent(t *testing.T) {
	dm := &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "900",
		Content:   "hello",
		Author:    &discordgo.User{ID: "80351110224678912", Username: "ann", GlobalName: "Ann Lee"},
	}}
	sender, text, ok := discordMessageEvent(dm)
	require.True(t, ok)
	assert.Equal(t, "hello", text)
	assert.Equal(t, model.Sender{ID: 80351110224678912, DisplayName: "Ann Lee", Handle: "ann"}, sender)

	ignored := []*discordgo.MessageCreate{
		{Message: &discordgo.Message{Content: "guild", GuildID: "1", Author: &discordgo.User{ID: "2", Username: "x"}}},
		{Message: &discordgo.Message{Content: "bot", Author: &discordgo.User{ID: "3", Username: "b", Bot: true}}},
		{Message: &discordgo.Message{Content: "", Author: &discordgo.User{ID: "4", Username: "e"}}},
		{Message: &discordgo.Message{Content: "bad id", Author: &discordgo.User{ID: "not-a-snowflake", Username: "z"}}},
	}
	for _, m := range ignored {
		_, _, ok := discordMessageEvent(m)
		assert.False(t, ok, m.Content)
	}
}

func TestDiscordInteractionSender(t *testing.T) {
	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "42", Username: "ann"},
	}}
	sender, ok := discordInteractionSender(dm)
	require.True(t, ok)
	assert.Equal(t, model.Sender{ID: 42, DisplayName: "ann", Handle: "ann"}, sender)

	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "43", Username: "bob"}},
	}}
	sender, ok = discordInteractionSender(guild)
	require.True(t, ok)
	assert.Equal(t, int64(43), sender.ID)

	_, ok = discordInteractionSender(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}})
	assert.False(t, ok)
}

func TestDiscordRemembersChannelsFromInboundMessages(t *testing.T) {
	handler := &recordingHandler{}
	d, err := NewDiscord("token", handler, zerolog.Nop())
	require.NoError(t, err)

	d.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "900",
		Content:   "/start",
		Author:    &discordgo.User{ID: "42", Username: "ann"},
	}})

	channelID, err := d.dmChannel(42)
	require.NoError(t, err)
	assert.Equal(t, "900", channelID)
	require.Len(t, handler.events, 1)
	assert.Equal(t, "/start", handler.events[0].value)
	assert.Equal(t, discordMaxMessageLength, d.MaxMessageLength())
}

type discordRequest struct {
	method string
	path   string
	body   string
}

// discordAPI stands in for the Discord REST API behind the session's client.
type discordAPI struct {
	mu       sync.Mutex
	requests []discordRequest
}

func (a *discordAPI) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}
	a.mu.Lock()
	a.requests = append(a.requests, discordRequest{method: r.Method, path: r.URL.Path, body: string(body)})
	a.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"id":"1","channel_id":"900"}`)),
		Request:    r,
	}, nil
}

func (a *discordAPI) matching(method, pathSuffix string) []discordRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []discordRequest
	for _, r := range a.requests {
		if r.method == method && strings.HasSuffix(r.path, pathSuffix) {
			out = append(out, r)
		}
	}
	return out
}

func newTestDiscord(t *testing.T, handler EventHandler) (*Discord, *discordAPI) {
	t.Helper()
	d, err := NewDiscord("token", handler, zerolog.Nop())
	require.NoError(t, err)
	api := &discordAPI{}
	d.session.Client = &http.Client{Transport: api}
	return d, api
}

func buttonPress(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i1",
		AppID:     "app",
		Token:     "tok",
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "900",
		User:      &discordgo.User{ID: "42", Username: "ann"},
		Message:   &discordgo.Message{ID: "555", ChannelID: "900"},
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func TestDiscordAcknowledgesPressBeforeHandling(t *testing.T) {
	handler := &recordingHandler{}
	d, api := newTestDiscord(t, handler)
	handler.notify = func(ctx context.Context, sender model.Sender) {
		acks := api.matching(http.MethodPost, "/interactions/i1/tok/callback")
		require.Len(t, acks, 1, "press must be acknowledged before it is handled")
		assert.Contains(t, acks[0].body, `"type":6`)

		assert.NoError(t, d.Notify(ctx, sender.ID, "answer first"))
	}

	d.onInteractionCreate(nil, buttonPress(model.ButtonNextQuestion))

	require.Len(t, handler.events, 1)
	assert.Equal(t, model.ButtonNextQuestion, handler.events[0].value)
	followUps := api.matching(http.MethodPost, "/webhooks/app/tok")
	require.Len(t, followUps, 1)
	assert.Contains(t, followUps[0].body, "answer first")
	assert.Contains(t, followUps[0].body, `"flags":64`)
	assert.Len(t, api.matching(http.MethodPost, "/callback"), 1)
}

func TestDiscordEditDuringPressTargetsPressedMessage(t *testing.T) {
	handler := &recordingHandler{}
	d, api := newTestDiscord(t, handler)
	handler.notify = func(ctx context.Context, sender model.Sender) {
		assert.NoError(t, d.SendText(context.Background(), sender.ID, "reviewer reply"))
		assert.NoError(t, d.EditDisplayedText(ctx, sender.ID, "Q2", nil))
	}

	d.onInteractionCreate(nil, buttonPress(model.ButtonBackQuestion))

	assert.Len(t, api.matching(http.MethodPatch, "/channels/900/messages/555"), 1)
	assert.Empty(t, api.matching(http.MethodPatch, "/channels/900/messages/1"))
}

func TestDiscordContactURL(t *testing.T) {
	d, _ := newTestDiscord(t, nil)
	assert.Equal(t, "https://discord.com/users/42", d.ContactURL(model.Sender{ID: 42}))
	assert.Empty(t, d.ContactURL(model.Sender{}))
}
