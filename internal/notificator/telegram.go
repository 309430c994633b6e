package notificator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/rayscout/rayscout/internal/config"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/internal/rayscout"
	"github.com/rayscout/rayscout/pkg/logger"
)

const (
	callbackReport = "report:"
	callbackSnipe  = "snipe"
)

// telegramAPI is the subset of *bot.Bot the gateway calls
type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgModels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// TelegramNotificator is the chat gateway: it answers commands by driving the
// application and delivers broadcast notifications.
type TelegramNotificator struct {
	logger *logger.Logger
	config *config.Config

	bot   *bot.Bot
	api   telegramAPI
	app   models.RayscoutI
	chats *ChatRegistry

	// background tracks replies that outlive their update handler.
	// Handlers run on their own goroutines, so Add is guarded by closed.
	backgroundMu sync.Mutex
	closed       bool
	background   sync.WaitGroup
}

func NewTelegramNotificator(
	logger *logger.Logger,
	config *config.Config,
	app models.RayscoutI,
	chats *ChatRegistry,
) (*TelegramNotificator, error) {
	t := &TelegramNotificator{
		logger: logger,
		config: config,
		app:    app,
		chats:  chats,
	}

	b, err := bot.New(config.TelegramBotToken, bot.WithDefaultHandler(t.defaultHandler))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t.bot = b
	t.api = b
	t.registerHandlers(b)
	return t, nil
}

func (t *TelegramNotificator) registerHandlers(b *bot.Bot) {
	admin := t.adminOnly
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, t.handleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/unsubscribe", bot.MatchTypePrefix, t.handleUnsubscribe)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, t.handleHelp)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, t.handleStatus)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/report", bot.MatchTypePrefix, t.handleReport)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/snipe", bot.MatchTypePrefix, t.handleSnipe)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/stop", bot.MatchTypePrefix, t.handleStop, admin)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/monitor", bot.MatchTypePrefix, t.handleMonitor, admin)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/scan", bot.MatchTypePrefix, t.handleScan, admin)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/config", bot.MatchTypePrefix, t.handleConfig, admin)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackReport, bot.MatchTypePrefix, t.handleReportCallback)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackSnipe, bot.MatchTypeExact, t.handleSnipeCallback)
}

// Start polls for updates until ctx is cancelled, then waits for pending
// background replies.
func (t *TelegramNotificator) Start(ctx context.Context) {
	t.logger.Info("Telegram bot is up and running")
	t.bot.Start(ctx)
	t.waitBackground()
}

// reserveBackground counts one reply that will run off the update handler.
// It fails once the gateway is shutting down; on success the caller must
// call background.Done.
func (t *TelegramNotificator) reserveBackground() bool {
	t.backgroundMu.Lock()
	defer t.backgroundMu.Unlock()
	if t.closed {
		return false
	}
	t.background.Add(1)
	return true
}

// waitBackground refuses new background work and waits for what is running.
func (t *TelegramNotificator) waitBackground() {
	t.backgroundMu.Lock()
	t.closed = true
	t.backgroundMu.Unlock()
	t.background.Wait()
}

// SendNotification delivers a rendered message. Token messages carry the report
// and snipe buttons.
func (t *TelegramNotificator) SendNotification(ctx context.Context, chatID int64, n models.Notification) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   n.Text,
	}
	if n.Mint != "" {
		params.ReplyMarkup = tokenKeyboard(n.Mint)
	}
	if _, err := t.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

func tokenKeyboard(mint string) *tgModels.InlineKeyboardMarkup {
	return &tgModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgModels.InlineKeyboardButton{{
			{Text: "🔍 Report", CallbackData: callbackReport + mint},
			{Text: "🎯 Snipe next", CallbackData: callbackSnipe},
		}},
	}
}

func (t *TelegramNotificator) reply(ctx context.Context, chatID int64, n models.Notification) {
	if err := t.SendNotification(ctx, chatID, n); err != nil {
		t.logger.Error("Failed to reply", "chatID", chatID, "error", err)
	}
}

func (t *TelegramNotificator) replyText(ctx context.Context, chatID int64, text string) {
	t.reply(ctx, chatID, models.Notification{Text: text})
}

// adminOnly rejects the command when an admin chat is configured and the
// update comes from any other chat.
func (t *TelegramNotificator) adminOnly(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
		chatID, ok := updateChatID(update)
		if !ok {
			return
		}
		if t.config.AdminChatID != 0 && chatID != t.config.AdminChatID {
			t.logger.Warn("Rejected admin command", "chatID", chatID)
			t.replyText(ctx, chatID, adminOnlyText)
			return
		}
		next(ctx, b, update)
	}
}

func updateChatID(update *tgModels.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil:
		msg := update.CallbackQuery.Message
		if msg.Message != nil {
			return msg.Message.Chat.ID, true
		}
		if msg.InaccessibleMessage != nil {
			return msg.InaccessibleMessage.Chat.ID, true
		}
		return update.CallbackQuery.From.ID, true
	}
	return 0, false
}

// commandArgs returns the words after the command itself.
func commandArgs(update *tgModels.Update) []string {
	if update.Message == nil {
		return nil
	}
	fields := strings.Fields(update.Message.Text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

func (t *TelegramNotificator) defaultHandler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil {
		return
	}
	t.logger.Debug("Unhandled telegram message", "chatID", update.Message.Chat.ID, "text", update.Message.Text)
}

func (t *TelegramNotificator) handleStart(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	if t.chats.Add(chatID) {
		t.logger.Info("Chat subscribed to token alerts", "chatID", chatID)
	}
	t.replyText(ctx, chatID, welcomeText)
}

func (t *TelegramNotificator) handleUnsubscribe(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	if !t.chats.Remove(chatID) {
		t.replyText(ctx, chatID, notSubscribedText)
		return
	}
	t.logger.Info("Chat unsubscribed from token alerts", "chatID", chatID)
	t.replyText(ctx, chatID, unsubscribedText)
}

func (t *TelegramNotificator) handleHelp(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	if chatID, ok := updateChatID(update); ok {
		t.replyText(ctx, chatID, helpText)
	}
}

func (t *TelegramNotificator) handleStatus(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	for _, n := range FormatStatus(t.app.Status(ctx)) {
		t.reply(ctx, chatID, n)
	}
}

func (t *TelegramNotificator) handleReport(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	args := commandArgs(update)
	if len(args) == 0 {
		t.replyText(ctx, chatID, "Usage: /report <mint address>")
		return
	}
	t.report(ctx, chatID, args[0])
}

func (t *TelegramNotificator) report(ctx context.Context, chatID int64, mint string) {
	analysis, err := t.app.Report(ctx, mint)
	switch {
	case errors.Is(err, rayscout.ErrInvalidAddress):
		t.replyText(ctx, chatID, "❌ Invalid token address")
	case err != nil:
		t.logger.Error("Report failed", "mint", mint, "error", err)
		t.replyText(ctx, chatID, "❌ Failed to build the report, please try again later.")
	case analysis == nil:
		t.replyText(ctx, chatID, fmt.Sprintf("❌ Token not found in the last %d days", t.config.RecordMaxAgeDays))
	default:
		t.reply(ctx, chatID, models.Notification{Text: FormatAnalysis(*analysis), Mint: mint})
	}
}

func (t *TelegramNotificator) handleReportCallback(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	t.answerCallback(ctx, update)
	t.report(ctx, chatID, strings.TrimPrefix(update.CallbackQuery.Data, callbackReport))
}

func (t *TelegramNotificator) handleSnipe(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	if chatID, ok := updateChatID(update); ok {
		t.snipe(ctx, chatID)
	}
}

func (t *TelegramNotificator) handleSnipeCallback(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	t.answerCallback(ctx, update)
	t.snipe(ctx, chatID)
}

// snipe waits for the next detected token on behalf of one chat. Each request
// holds its own one-shot listener and waits off the update loop.
func (t *TelegramNotificator) snipe(ctx context.Context, chatID int64) {
	if !t.reserveBackground() {
		t.logger.Debug("Snipe request during shutdown ignored", "chatID", chatID)
		return
	}
	timeout := t.config.SnipeWaitTimeout
	wait := t.app.SnipeWait(timeout)
	t.replyText(ctx, chatID, fmt.Sprintf("🎯 Waiting up to %s for the next token...", timeout))

	go func() {
		defer t.background.Done()
		token, ok := <-wait
		if !ok {
			t.replyText(ctx, chatID, fmt.Sprintf("⌛ No new token detected within %s", timeout))
			return
		}
		t.reply(ctx, chatID, models.Notification{Text: FormatToken(token), Mint: token.BaseAsset.Address})
	}()
}

func (t *TelegramNotificator) handleStop(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	t.replyText(ctx, chatID, stoppingText)
	t.app.StopMonitoring()
}

func (t *TelegramNotificator) handleMonitor(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	if t.app.IsMonitoring() {
		t.replyText(ctx, chatID, monitoringActive)
		return
	}
	if err := t.app.StartMonitoring(ctx); err != nil {
		t.replyText(ctx, chatID, fmt.Sprintf("❌ Failed to start monitoring: %v", err))
		return
	}
	t.replyText(ctx, chatID, "▶️ Monitoring started")
}

func (t *TelegramNotificator) handleScan(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}
	if !t.reserveBackground() {
		t.logger.Debug("Scan request during shutdown ignored", "chatID", chatID)
		return
	}
	limit := t.config.StatusLimit
	t.replyText(ctx, chatID, fmt.Sprintf("📊 Re-checking the latest %d tokens...", limit))

	go func() {
		defer t.background.Done()
		t.replyText(ctx, chatID, FormatBatch(t.app.ScanRecent(ctx, limit)))
	}()
}

func (t *TelegramNotificator) handleConfig(ctx context.Context, _ *bot.Bot, update *tgModels.Update) {
	if chatID, ok := updateChatID(update); ok {
		t.replyText(ctx, chatID, FormatConfig(t.config.Summary()))
	}
}

func (t *TelegramNotificator) answerCallback(ctx context.Context, update *tgModels.Update) {
	_, err := t.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
	})
	if err != nil {
		t.logger.Warn("Failed to answer callback query", "error", err)
	}
}
