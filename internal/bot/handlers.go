package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID

	if state, ok := b.state(userID); ok {
		switch {
		case state.Step == stepDone:
			b.clearState(userID)
		case message.IsCommand():
			// Any command cancels an ongoing conversation
			b.clearState(userID)
		default:
			b.handleConversation(ctx, message, state)
			return
		}
	}

	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start", "help":
		b.handleStart(message)
	case "available":
		b.handleAvailable(ctx, message)
	case "rented":
		b.handleRented(ctx, message)
	case "book":
		b.handleBook(ctx, message)
	case "rent":
		b.handleRentStart(ctx, message)
	case "return":
		b.handleReturnStart(ctx, message)
	case "top":
		b.handleTop(ctx, message)
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	if b.out != nil {
		if _, err := b.out.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	}

	userID := query.From.ID
	state, ok := b.state(userID)
	if !ok || query.Message == nil {
		return
	}

	data := query.Data
	switch {
	case strings.HasPrefix(data, rentBookPrefix):
		b.handleRentBookCallback(ctx, query, state)
	case strings.HasPrefix(data, rentUserPrefix):
		b.handleRentUserCallback(ctx, query, state)
	case strings.HasPrefix(data, returnBookPrefix):
		b.handleReturnBookCallback(ctx, query, state)
	}

	if state.Step == stepDone {
		b.clearState(userID)
	}
}
