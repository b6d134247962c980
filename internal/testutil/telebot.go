// Package testutil provides fakes shared by bot and middleware tests.
package testutil

import (
	"io"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"
)

// Sent is a single outgoing message captured by FakeContext.
type Sent struct {
	What any
	Opts []any
}

// Text returns the message body when it was sent as a string.
func (s Sent) Text() string {
	text, _ := s.What.(string)
	return text
}

// Markup returns the reply markup passed with the message, if any.
func (s Sent) Markup() *telebot.ReplyMarkup {
	for _, opt := range s.Opts {
		if m, ok := opt.(*telebot.ReplyMarkup); ok {
			return m
		}
	}
	return nil
}

// FakeContext implements the parts of telebot.Context the handlers use.
// Calling any other method panics through the nil embedded interface.
type FakeContext struct {
	telebot.Context

	User         *telebot.User
	MessageText  string
	CallbackData string
	SendErr      error

	mu        sync.Mutex
	sent      []Sent
	responded int
	responses []*telebot.CallbackResponse
	store     map[string]any
}

// NewMessage builds a context for a text message from user.
func NewMessage(user *telebot.User, text string) *FakeContext {
	return &FakeContext{User: user, MessageText: text}
}

// NewCallback builds a context for an inline button press.
func NewCallback(user *telebot.User, data string) *FakeContext {
	return &FakeContext{User: user, CallbackData: data}
}

func (c *FakeContext) Sender() *telebot.User { return c.User }

func (c *FakeContext) Text() string { return c.MessageText }

func (c *FakeContext) Callback() *telebot.Callback {
	if c.CallbackData == "" {
		return nil
	}
	return &telebot.Callback{ID: "cb-1", Data: c.CallbackData, Sender: c.User}
}

func (c *FakeContext) Message() *telebot.Message {
	return &telebot.Message{ID: 1, Text: c.MessageText, Sender: c.User}
}

func (c *FakeContext) Chat() *telebot.Chat {
	if c.User == nil {
		return nil
	}
	return &telebot.Chat{ID: c.User.ID}
}

func (c *FakeContext) Send(what any, opts ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{What: what, Opts: opts})
	return c.SendErr
}

func (c *FakeContext) Reply(what any, opts ...any) error {
	return c.Send(what, opts...)
}

func (c *FakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responded++
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *FakeContext) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *FakeContext) Set(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = val
}

// Sent returns every captured outgoing message.
func (c *FakeContext) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// LastText returns the text of the most recent message, or "".
func (c *FakeContext) LastText() string {
	sent := c.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1].Text()
}

// Responded returns how many times the callback was answered.
func (c *FakeContext) Responded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

// Responses returns the captured callback answers.
func (c *FakeContext) Responses() []*telebot.CallbackResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*telebot.CallbackResponse(nil), c.responses...)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
