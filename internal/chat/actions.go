package chat

import "ohmyremote/internal/transport"

func reply(chatID, text string) transport.Action {
	return transport.Action{Kind: transport.ActionReply, ChatID: chatID, Text: text}
}

func replyWithDocument(chatID, path, caption string) transport.Action {
	return transport.Action{Kind: transport.ActionReplyWithDocument, ChatID: chatID, FilePath: path, Caption: caption}
}

func replyKeyboard(chatID, text string, kb transport.Keyboard) transport.Action {
	return transport.Action{Kind: transport.ActionReplyKeyboard, ChatID: chatID, Text: text, Keyboard: kb}
}

func editKeyboard(chatID, messageID, text string, kb transport.Keyboard) transport.Action {
	return transport.Action{Kind: transport.ActionEditKeyboard, ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb}
}

func answerCallback(callbackQueryID, toast string) transport.Action {
	return transport.Action{Kind: transport.ActionAnswerCallback, CallbackQueryID: callbackQueryID, Toast: toast}
}

// banner prefixes the action's Text with the unsafe-mode banner when the
// chat's unsafe deadline has not yet passed. Applies to reply/
// reply_keyboard/edit_keyboard actions only.
func (h *Handler) banner(st *chatState, a transport.Action) transport.Action {
	if st.UnsafeUntil <= h.deps.Now() {
		return a
	}
	if a.Kind != transport.ActionReply && a.Kind != transport.ActionReplyKeyboard && a.Kind != transport.ActionEditKeyboard {
		return a
	}
	a.Text = "UNSAFE MODE (expires " + formatISO(st.UnsafeUntil) + ")\n\n" + a.Text
	return a
}
