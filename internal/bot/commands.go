package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	topLimit = 10
	topDays  = 30
)

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(message *tgbotapi.Message) {
	text := `Welcome to the Bookshelf bot! 📚

Available commands:
/available - Books you can rent
/rented - Books currently rented
/book <id> - Show a book
/rent - Rent a book to a user
/return - Return a rented book
/top - Most rented books of the last 30 days`

	b.reply(message.Chat.ID, text)
}

func (b *Bot) handleAvailable(ctx context.Context, message *tgbotapi.Message) {
	books, err := b.svc.AvailableBooks(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(books) == 0 {
		b.reply(message.Chat.ID, "No books are available right now.")
		return
	}
	b.reply(message.Chat.ID, formatBookList(fmt.Sprintf("✅ Available books (%d):", len(books)), books))
}

func (b *Bot) handleRented(ctx context.Context, message *tgbotapi.Message) {
	books, err := b.svc.RentedBooks(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(books) == 0 {
		b.reply(message.Chat.ID, "No books are rented right now.")
		return
	}
	b.reply(message.Chat.ID, formatBookList(fmt.Sprintf("📕 Rented books (%d):", len(books)), books))
}

// handleBook shows a book given as argument, or asks for its id
func (b *Bot) handleBook(ctx context.Context, message *tgbotapi.Message) {
	arg := strings.TrimSpace(message.CommandArguments())
	if arg == "" {
		b.setState(message.From.ID, &ConversationState{
			Command: "book",
			Step:    1,
			Data:    make(map[string]interface{}),
		})
		b.reply(message.Chat.ID, "Please enter the book id:")
		return
	}
	b.showBook(ctx, message.Chat.ID, arg)
}

func (b *Bot) showBook(ctx context.Context, chatID int64, arg string) bool {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id < 0 {
		b.reply(chatID, "❌ Invalid book id. Example: /book 12")
		return false
	}

	book, err := b.svc.GetBook(ctx, id)
	if err != nil {
		b.replyError(chatID, err)
		return true
	}
	b.reply(chatID, formatBook(book))
	return true
}

// handleRentStart asks for an available book
func (b *Bot) handleRentStart(ctx context.Context, message *tgbotapi.Message) {
	books, err := b.svc.AvailableBooks(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(books) == 0 {
		b.reply(message.Chat.ID, "No books are available right now.")
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: "rent",
		Step:    1,
		Data:    make(map[string]interface{}),
	})
	b.replyWithKeyboard(message.Chat.ID, "📚 Select a book to rent:", bookKeyboard(books, rentBookPrefix))
}

// handleReturnStart asks for a rented book
func (b *Bot) handleReturnStart(ctx context.Context, message *tgbotapi.Message) {
	books, err := b.svc.RentedBooks(ctx)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(books) == 0 {
		b.reply(message.Chat.ID, "No books are rented right now.")
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: "return",
		Step:    1,
		Data:    make(map[string]interface{}),
	})
	b.replyWithKeyboard(message.Chat.ID, "📕 Select a book to return:", bookKeyboard(books, returnBookPrefix))
}

// handleTop shows the most rented books from the rental journal
func (b *Bot) handleTop(ctx context.Context, message *tgbotapi.Message) {
	stats, err := b.svc.TopRentedBooks(ctx, topLimit, topDays)
	if err != nil {
		b.replyError(message.Chat.ID, err)
		return
	}
	if len(stats) == 0 {
		b.reply(message.Chat.ID, fmt.Sprintf("No rentals in the last %d days.", topDays))
		return
	}

	var text strings.Builder
	fmt.Fprintf(&text, "📊 Most rented books, last %d days:\n\n", topDays)
	for i, stat := range stats {
		fmt.Fprintf(&text, "%d. %s - %d rentals\n", i+1, stat.BookTitle, stat.RentalCount)
	}
	b.reply(message.Chat.ID, text.String())
}
