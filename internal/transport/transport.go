// Package transport defines the chat-transport boundary ChatCommandHandler
// (C9) and RunStreamer (C10) are built against. The concrete transport,
// a Telegram bot API client, lives in cmd/ohmyremote/telegram.go and is
// wired in at cmd/ohmyremote/main.go; everything here is the narrow
// collaborator interface plus the wire shapes both components share.
package transport

// Chat identifies the conversation an update or action belongs to.
type Chat struct {
	ID   string
	Type string // "private", "group", "supergroup", "channel"
}

// User identifies the sender of a message or callback query.
type User struct {
	ID string
}

// Message is the inbound shape of a chat message.
type Message struct {
	MessageID string
	Chat      Chat
	From      User
	Text      string
}

// CallbackQuery is an inline-keyboard button press.
type CallbackQuery struct {
	ID      string
	Message *Message
	From    User
	Data    string
}

// Update is one inbound chat event, carrying at most one of Message or
// CallbackQuery.
type Update struct {
	UpdateID      string
	Message       *Message
	CallbackQuery *CallbackQuery
}

// Button is one inline-keyboard button.
type Button struct {
	Text         string
	CallbackData string
}

// Keyboard is an inline keyboard laid out as rows of buttons.
type Keyboard [][]Button

// ActionKind discriminates the closed set of outbound actions
// ChatCommandHandler emits.
type ActionKind string

const (
	ActionReply              ActionKind = "reply"
	ActionReplyWithDocument  ActionKind = "reply_with_document"
	ActionReplyKeyboard      ActionKind = "reply_keyboard"
	ActionEditKeyboard       ActionKind = "edit_keyboard"
	ActionAnswerCallback     ActionKind = "answer_callback"
)

// Action is one outbound effect the handler wants performed. Only the
// fields relevant to Kind are populated.
type Action struct {
	Kind ActionKind

	ChatID string
	Text   string

	// reply_with_document
	FilePath string
	Caption  string

	// reply_keyboard / edit_keyboard
	Keyboard Keyboard

	// edit_keyboard
	MessageID string

	// answer_callback
	CallbackQueryID string
	Toast           string
}

// MessageTransport is the collaborator RunStreamer drives directly (it
// needs synchronous message ids back to coalesce edits, unlike
// ChatCommandHandler's deferred Action list).
type MessageTransport interface {
	SendMessage(chatID, text string, keyboard Keyboard) (messageID string, err error)
	EditMessage(chatID, messageID, text string, keyboard Keyboard) error
	SendDocument(chatID, filePath, caption string) error
}
