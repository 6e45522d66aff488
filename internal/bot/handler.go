// Package bot wires the Telegram transport to the extraction pipeline:
// inbound group messages are routed to the text matcher and the image
// extractor, their candidates ingested, and the outcome reported back
// to the chat.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"couponbot/internal/config"
	"couponbot/internal/domain"
	"couponbot/internal/match"
	"couponbot/internal/metrics"
	"couponbot/internal/storage"
)

// Ingestor is the deduplicating sink for extracted candidates.
type Ingestor interface {
	Ingest(ctx context.Context, ref domain.MessageRef, candidates []domain.CandidateCoupon) ([]domain.CouponRecord, error)
}

// ImageExtractor produces candidates from an image attachment.
type ImageExtractor interface {
	FromImage(ctx context.Context, fileURL, caption, mimeType string) []domain.CandidateCoupon
}

// Notifier pushes accepted records to the companion web app.
type Notifier interface {
	NotifyNewCoupons(ctx context.Context, records []domain.CouponRecord)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot       *tgbot.Bot
	cfg       config.Config
	repo      storage.Repository
	ingestor  Ingestor
	extractor ImageExtractor
	notifier  Notifier
	log       logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(cfg config.Config, repo storage.Repository, ingestor Ingestor, extractor ImageExtractor, notifier Notifier, logger logrus.FieldLogger) (*Handler, error) {
	h := &Handler{
		cfg:       cfg,
		repo:      repo,
		ingestor:  ingestor,
		extractor: extractor,
		notifier:  notifier,
		log:       logger.WithField("component", "bot_handler"),
	}

	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.onMessage))
	if err != nil {
		h.log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()

	h.log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers. Everything else falls
// through to onMessage.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/help", tgbot.MatchTypeExact, h.helpHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/status", tgbot.MatchTypeExact, h.statusHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/latest", tgbot.MatchTypeExact, h.latestHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/stats", tgbot.MatchTypeExact, h.statsHandler)
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

// onMessage handles every non-command message: text, photo, document.
func (h *Handler) onMessage(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	log := h.log.WithFields(logrus.Fields{
		"chat_id":    msg.Chat.ID,
		"message_id": msg.ID,
	})

	// Nothing inside the pipeline is allowed to crash the bot. Extractor
	// failures are swallowed at their stage boundary already; this is
	// the net under everything else.
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Recovered from panic in message handler")
			h.reply(ctx, msg.Chat.ID, replyFailure)
		}
	}()

	// The bot only scans shared group chats, not private conversations.
	if msg.Chat.Type == "private" {
		return
	}

	ref := domain.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}

	first, err := h.repo.MarkProcessed(ctx, ref)
	if err != nil {
		// Barcode-level dedup still protects us, so keep going.
		log.WithError(err).Warn("Failed to record processed message")
	} else if !first {
		log.Debug("Message already processed, skipping")
		return
	}

	metrics.MessagesProcessed.WithLabelValues(messageKind(msg)).Inc()

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	fileURL, mimeType, hasImage := h.resolveImage(ctx, b, msg)
	candidates := h.collectCandidates(ctx, text, msg.Caption, fileURL, mimeType, hasImage)
	if len(candidates) == 0 {
		return
	}

	accepted, err := h.ingestor.Ingest(ctx, ref, candidates)
	if err != nil {
		log.WithError(err).Error("Ingestion failed")
		h.reply(ctx, msg.Chat.ID, replyFailure)
		return
	}

	if len(accepted) == 0 {
		h.reply(ctx, msg.Chat.ID, replyNoNew)
		return
	}

	h.reply(ctx, msg.Chat.ID, formatAccepted(accepted))

	// Best-effort push to the web app, off the handler path. The
	// update context may end with this handler, so detach from it.
	go h.notifier.NotifyNewCoupons(context.WithoutCancel(ctx), accepted)
}

// collectCandidates runs both extractor stages and concatenates their
// output, text-derived candidates first so they win batch-internal
// barcode collisions.
func (h *Handler) collectCandidates(ctx context.Context, text, caption, fileURL, mimeType string, hasImage bool) []domain.CandidateCoupon {
	candidates := match.Match(text)
	metrics.CandidatesExtracted.WithLabelValues("text").Add(float64(len(candidates)))

	if hasImage {
		imageCandidates := h.extractor.FromImage(ctx, fileURL, caption, mimeType)
		metrics.CandidatesExtracted.WithLabelValues("image").Add(float64(len(imageCandidates)))
		candidates = append(candidates, imageCandidates...)
	}

	return candidates
}

// resolveImage turns a photo or image document into a downloadable URL
// via the Telegram file API. Telegram photos carry no MIME type; they
// are always JPEG.
func (h *Handler) resolveImage(ctx context.Context, b *tgbot.Bot, msg *models.Message) (fileURL, mimeType string, ok bool) {
	var fileID string

	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest to largest; OCR wants the largest.
		fileID = msg.Photo[len(msg.Photo)-1].FileID
		mimeType = "image/jpeg"
	case msg.Document != nil:
		if !strings.HasPrefix(msg.Document.MimeType, "image/") {
			h.log.WithField("mime_type", msg.Document.MimeType).Debug("Ignoring non-image document")
			return "", "", false
		}
		fileID = msg.Document.FileID
		mimeType = msg.Document.MimeType
	default:
		return "", "", false
	}

	file, err := b.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		h.log.WithError(err).Warn("Failed to resolve file on Telegram file API")
		return "", "", false
	}

	return b.FileDownloadLink(file), mimeType, true
}

func messageKind(msg *models.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Document != nil:
		return "document"
	default:
		return "text"
	}
}

// reply sends a Markdown message to the chat; send failures are logged only.
func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	_, err := h.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to send reply")
	}
}

// --- Command handlers ---

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.log.WithField("command", "/start").Info("Received command")
	h.reply(ctx, update.Message.Chat.ID, `🎫 *Coupon Bot*

Ich durchsuche automatisch Coupons in dieser Gruppe und speichere sie.

*Befehle:*
/help - Zeigt diese Hilfe
/status - Status des Bots
/latest - Zeigt die neuesten Coupons
/stats - Statistik

*Automatische Erkennung:*
• Payback, DM, Rossmann, REWE, Penny, Lidl, Aldi, Kaufland, Müller
• Barcodes (8-13 Ziffern)
• Fotos von Coupons (Texterkennung)

Die Coupons werden in deine App synchronisiert!`)
}

func (h *Handler) helpHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.log.WithField("command", "/help").Info("Received command")
	h.reply(ctx, update.Message.Chat.ID, `📖 *Hilfe*

Der Bot erkennt automatisch Coupons in Nachrichten und auf Fotos.

*Wie es funktioniert:*
1. Jemand postet einen Coupon in der Gruppe
2. Ich analysiere Text und Bild
3. Speichere den Coupon
4. Du kannst ihn in der App importieren

*Unterstützte Formate:*
- Payback: "PB: 1234567890"
- DM: "DM 1234567890"
- Rossmann: "RM 1234567890"
- Allgemein: 8-13 stellige Zahlen`)
}

func (h *Handler) statusHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.log.WithField("command", "/status").Info("Received command")

	records, err := h.repo.ListAll(ctx)
	if err != nil {
		h.log.WithError(err).Error("Failed to load records for /status")
		h.reply(ctx, update.Message.Chat.ID, replyFailure)
		return
	}

	h.reply(ctx, update.Message.Chat.ID, fmt.Sprintf(`📊 *Bot Status*

✅ Bot ist aktiv
📁 %d Coupons gespeichert
🔄 Auto-Sync: Aktiviert`, len(records)))
}

func (h *Handler) latestHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.log.WithField("command", "/latest").Info("Received command")

	records, err := h.repo.ListRecent(ctx, 5)
	if err != nil {
		h.log.WithError(err).Error("Failed to load records for /latest")
		h.reply(ctx, update.Message.Chat.ID, replyFailure)
		return
	}
	if len(records) == 0 {
		h.reply(ctx, update.Message.Chat.ID, "❌ Noch keine Coupons gespeichert.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🎫 *Neueste Coupons:*\n\n")
	for i, record := range records {
		fmt.Fprintf(&sb, "%d. *%s*\n   Laden: %s\n   Code: `%s`\n\n", i+1, record.Title, record.Store, record.Barcode)
	}
	h.reply(ctx, update.Message.Chat.ID, sb.String())
}

func (h *Handler) statsHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.log.WithField("command", "/stats").Info("Received command")

	counts, err := h.repo.CountByStore(ctx)
	if err != nil {
		h.log.WithError(err).Error("Failed to load stats for /stats")
		h.reply(ctx, update.Message.Chat.ID, replyFailure)
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	var sb strings.Builder
	sb.WriteString("📈 *Statistik:*\n\n")
	fmt.Fprintf(&sb, "Gesamt: %d Coupons\n\nNach Laden:\n", total)
	for store, count := range counts {
		fmt.Fprintf(&sb, "  • %s: %d\n", store, count)
	}
	h.reply(ctx, update.Message.Chat.ID, sb.String())
}

// --- Reply formatting ---

const (
	replyFailure = "❌ Ein Fehler ist aufgetreten. Bitte später erneut versuchen."
	replyNoNew   = "ℹ️ Keine neuen Coupons gefunden."
)

// descriptionPreviewLen truncates descriptions in chat replies.
const descriptionPreviewLen = 50

// formatAccepted builds the chat summary for newly accepted records.
func formatAccepted(records []domain.CouponRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ *%d Coupon(s) erkannt und gespeichert!*\n\n", len(records))
	for i, record := range records {
		fmt.Fprintf(&sb, "%d. %s\n   Code: `%s`\n", i+1, record.Title, record.Barcode)
		if record.Description != "" {
			desc := record.Description
			if runes := []rune(desc); len(runes) > descriptionPreviewLen {
				desc = string(runes[:descriptionPreviewLen]) + "..."
			}
			fmt.Fprintf(&sb, "   Info: %s\n", desc)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("📱 In deiner App verfügbar!")
	return sb.String()
}
