package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/service"
)

// maxListed caps book lists so replies stay under Telegram's message size
const maxListed = 40

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	if b.out == nil {
		return
	}
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err), zap.Int64("chat_id", msg.ChatID))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	b.sendMessage(msg)
}

// replyError shows client errors as-is and hides internal ones
func (b *Bot) replyError(chatID int64, err error) {
	if service.KindOf(err) == service.KindInternal {
		b.logger.Error("Bot request failed", zap.Error(err), zap.Int64("chat_id", chatID))
		b.reply(chatID, "Something went wrong. Please try again later.")
		return
	}
	b.reply(chatID, "❌ "+service.MessageOf(err))
}

func (b *Bot) state(userID int64) (*ConversationState, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	s, ok := b.states[userID]
	return s, ok
}

func (b *Bot) setState(userID int64, s *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = s
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}

func formatBookList(title string, books []models.Book) string {
	var text strings.Builder
	text.WriteString(title + "\n\n")
	for i, book := range books {
		if i == maxListed {
			fmt.Fprintf(&text, "...and %d more\n", len(books)-maxListed)
			break
		}
		fmt.Fprintf(&text, "#%d %s\n", book.ID, book.Title)
	}
	return text.String()
}

func formatBook(book *models.Book) string {
	status := "✅ available"
	if !book.IsAvailable() {
		status = "📕 rented"
	}

	var text strings.Builder
	fmt.Fprintf(&text, "📚 %s\n\n", book.Title)
	if book.CategoryName != "" {
		fmt.Fprintf(&text, "Category: %s\n", book.CategoryName)
	}
	fmt.Fprintf(&text, "Price: £%.2f\n", book.Price)
	fmt.Fprintf(&text, "Rating: %d/5\n", book.Rating)
	fmt.Fprintf(&text, "UPC: %s\n", book.UPC)
	fmt.Fprintf(&text, "Status: %s\n", status)
	fmt.Fprintf(&text, "Rentals: %d\n", len(book.Rentals))
	return text.String()
}

// bookKeyboard lays out one button per book, two per row
func bookKeyboard(books []models.Book, prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for i, book := range books {
		if i == maxListed {
			break
		}
		currentRow = append(currentRow, tgbotapi.NewInlineKeyboardButtonData(
			book.Title,
			fmt.Sprintf("%s%d", prefix, book.ID),
		))
		if len(currentRow) == 2 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}
	if len(currentRow) > 0 {
		rows = append(rows, currentRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
