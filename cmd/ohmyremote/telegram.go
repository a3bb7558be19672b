package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ohmyremote/internal/transport"
)

// telegramClient is a minimal Telegram Bot API client implementing
// transport.MessageTransport plus the long-poll loop ChatCommandHandler
// is fed from. No bot-API client library exists anywhere in the example
// pack (the chat transport is explicitly out of this module's scope),
// so this is hand-rolled stdlib net/http against Telegram's plain HTTP+
// JSON API rather than a fabricated dependency.
type telegramClient struct {
	token  string
	http   *http.Client
	offset int64
}

func newTelegramClient(token string) *telegramClient {
	return &telegramClient{token: token, http: &http.Client{Timeout: 35 * time.Second}}
}

func (c *telegramClient) apiURL(method string) string {
	return "https://api.telegram.org/bot" + c.token + "/" + method
}

type tgUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgUser struct {
	ID int64 `json:"id"`
}

type tgMessage struct {
	MessageID int64  `json:"message_id"`
	Chat      tgChat `json:"chat"`
	From      tgUser `json:"from"`
	Text      string `json:"text"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	Message *tgMessage `json:"message"`
	From    tgUser     `json:"from"`
	Data    string     `json:"data"`
}

type tgResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

// getUpdates long-polls for new updates, advancing the internal offset
// past every update it returns so the next call never redelivers them.
func (c *telegramClient) getUpdates(ctx context.Context) ([]transport.Update, error) {
	q := url.Values{}
	q.Set("timeout", "30")
	q.Set("offset", strconv.FormatInt(c.offset, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out tgResponse[[]tgUpdate]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getUpdates failed: %s", out.Description)
	}

	updates := make([]transport.Update, 0, len(out.Result))
	for _, u := range out.Result {
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
		updates = append(updates, convertUpdate(u))
	}
	return updates, nil
}

func convertUpdate(u tgUpdate) transport.Update {
	out := transport.Update{UpdateID: strconv.FormatInt(u.UpdateID, 10)}
	if u.Message != nil {
		out.Message = &transport.Message{
			MessageID: strconv.FormatInt(u.Message.MessageID, 10),
			Chat: transport.Chat{
				ID:   strconv.FormatInt(u.Message.Chat.ID, 10),
				Type: u.Message.Chat.Type,
			},
			From: transport.User{ID: strconv.FormatInt(u.Message.From.ID, 10)},
			Text: u.Message.Text,
		}
	}
	if u.CallbackQuery != nil {
		cb := &transport.CallbackQuery{
			ID:   u.CallbackQuery.ID,
			From: transport.User{ID: strconv.FormatInt(u.CallbackQuery.From.ID, 10)},
			Data: u.CallbackQuery.Data,
		}
		if u.CallbackQuery.Message != nil {
			cb.Message = &transport.Message{
				MessageID: strconv.FormatInt(u.CallbackQuery.Message.MessageID, 10),
				Chat: transport.Chat{
					ID:   strconv.FormatInt(u.CallbackQuery.Message.Chat.ID, 10),
					Type: u.CallbackQuery.Message.Chat.Type,
				},
			}
		}
		out.CallbackQuery = cb
	}
	return out
}

func inlineKeyboardMarkup(kb transport.Keyboard) map[string]any {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]map[string]string, 0, len(kb))
	for _, row := range kb {
		buttons := make([]map[string]string, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, map[string]string{"text": b.Text, "callback_data": b.CallbackData})
		}
		rows = append(rows, buttons)
	}
	return map[string]any{"inline_keyboard": rows}
}

func (c *telegramClient) postJSON(method string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.apiURL(method), "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out tgResponse[map[string]any]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram %s failed: %s", method, out.Description)
	}
	return out.Result, nil
}

// SendMessage implements transport.MessageTransport.
func (c *telegramClient) SendMessage(chatID, text string, kb transport.Keyboard) (string, error) {
	body := map[string]any{"chat_id": chatID, "text": text}
	if markup := inlineKeyboardMarkup(kb); markup != nil {
		body["reply_markup"] = markup
	}
	result, err := c.postJSON("sendMessage", body)
	if err != nil {
		return "", err
	}
	id, ok := result["message_id"].(float64)
	if !ok {
		return "", errors.New("telegram sendMessage: missing message_id in response")
	}
	return strconv.FormatInt(int64(id), 10), nil
}

// EditMessage implements transport.MessageTransport.
func (c *telegramClient) EditMessage(chatID, messageID, text string, kb transport.Keyboard) error {
	body := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	if markup := inlineKeyboardMarkup(kb); markup != nil {
		body["reply_markup"] = markup
	}
	_, err := c.postJSON("editMessageText", body)
	return err
}

// SendDocument implements transport.MessageTransport.
func (c *telegramClient) SendDocument(chatID, filePath, caption string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("document", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := c.http.Post(c.apiURL("sendDocument"), writer.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out tgResponse[map[string]any]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("telegram sendDocument failed: %s", out.Description)
	}
	return nil
}

// AnswerCallback acknowledges an inline-keyboard press, optionally
// showing a toast.
func (c *telegramClient) AnswerCallback(callbackQueryID, toast string) error {
	body := map[string]any{"callback_query_id": callbackQueryID}
	if toast != "" {
		body["text"] = toast
	}
	_, err := c.postJSON("answerCallbackQuery", body)
	return err
}
