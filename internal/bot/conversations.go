package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleConversation processes free-text replies of multi-step commands
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Command {
	case "book":
		b.handleBookConversation(ctx, message, state)
	case "rent", "return":
		b.reply(message.Chat.ID, "Please pick one of the buttons above, or send another command.")
	}

	if state.Step == stepDone {
		b.clearState(message.From.ID)
	}
}

// handleBookConversation waits for a book id; invalid input keeps asking
func (b *Bot) handleBookConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	if state.Step != 1 {
		return
	}
	if b.showBook(ctx, message.Chat.ID, strings.TrimSpace(message.Text)) {
		state.Step = stepDone
	}
}
