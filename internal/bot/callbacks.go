package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes; the id follows the prefix
const (
	rentBookPrefix   = "rent_book:"
	rentUserPrefix   = "rent_user:"
	returnBookPrefix = "return_book:"
)

func callbackID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil
}

// handleRentBookCallback stores the chosen book and asks for the user
func (b *Bot) handleRentBookCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	chatID := query.Message.Chat.ID
	if state.Command != "rent" || state.Step != 1 {
		return
	}

	bookID, ok := callbackID(query.Data, rentBookPrefix)
	if !ok {
		b.reply(chatID, "Error: Invalid book selection")
		state.Step = stepDone
		return
	}

	users, err := b.svc.ListUsers(ctx)
	if err != nil {
		b.replyError(chatID, err)
		state.Step = stepDone
		return
	}
	if len(users) == 0 {
		b.reply(chatID, "No users found. Import users first.")
		state.Step = stepDone
		return
	}

	state.Data["book_id"] = bookID
	state.Step = 2

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, u := range users {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👤 "+u.Name, fmt.Sprintf("%s%d", rentUserPrefix, u.ID)),
		))
	}
	b.replyWithKeyboard(chatID, "👤 Who is renting it?", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// handleRentUserCallback rents the stored book to the chosen user
func (b *Bot) handleRentUserCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	chatID := query.Message.Chat.ID
	if state.Command != "rent" || state.Step != 2 {
		return
	}
	state.Step = stepDone

	bookID, _ := state.Data["book_id"].(int64)
	userID, ok := callbackID(query.Data, rentUserPrefix)
	if !ok {
		b.reply(chatID, "Error: Invalid user selection")
		return
	}

	rental, err := b.svc.RentBook(ctx, bookID, &userID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	b.reply(chatID, fmt.Sprintf("✅ Rented!\n\n📚 Book: %s\n👤 User: #%d\n📅 Since: %s",
		rental.BookTitle, rental.UserID, rental.Rented.Format("2006-01-02 15:04")))
}

// handleReturnBookCallback closes the open rental of the chosen book
func (b *Bot) handleReturnBookCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	chatID := query.Message.Chat.ID
	if state.Command != "return" {
		return
	}
	state.Step = stepDone

	bookID, ok := callbackID(query.Data, returnBookPrefix)
	if !ok {
		b.reply(chatID, "Error: Invalid book selection")
		return
	}

	rental, err := b.svc.ReturnBook(ctx, bookID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}

	b.reply(chatID, fmt.Sprintf("✅ Returned!\n\n📚 Book: %s\n📅 Rented: %s\n📅 Returned: %s",
		rental.BookTitle, rental.Rented.Format("2006-01-02 15:04"), rental.Returned.Format("2006-01-02 15:04")))
}
