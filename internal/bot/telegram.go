// Package bot is the Telegram adapter: it long-polls updates, classifies
// messages into media kinds, feeds the decision engine, and formats its
// decisions back into chat replies. All duplicate-detection logic lives in
// the engine; this package is transport only.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"repost-warden/internal"
	"repost-warden/internal/engine"
	"repost-warden/internal/model"
	"repost-warden/internal/stats"
	"repost-warden/internal/store"
)

const pollTimeoutSeconds = 30

// allowedUpdates includes message_reaction_count, which the bot API library
// does not model yet; that's why the update loop parses raw JSON.
const allowedUpdates = `["message","message_reaction_count"]`

type Bot struct {
	tg    *tgbotapi.BotAPI
	eng   *engine.Engine
	stats *stats.Aggregator
	st    *store.Store
	cfg   internal.Config
	log   zerolog.Logger

	// Bounds concurrent media downloads + hashing so a burst of uploads
	// cannot stall update intake.
	sem chan struct{}
}

func New(cfg internal.Config, eng *engine.Engine, agg *stats.Aggregator, st *store.Store, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	api.Debug = false
	return &Bot{
		tg:    api,
		eng:   eng,
		stats: agg,
		st:    st,
		cfg:   cfg,
		log:   log.With().Str("component", "bot").Logger(),
		sem:   make(chan struct{}, cfg.MediaWorkers),
	}, nil
}

// Run polls updates until the context is canceled. Every failure is scoped
// to a single update: log, skip, keep polling.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info().Str("username", b.tg.Self.UserName).Msg("telegram bot started")

	offset := 0
	for {
		// MakeRequest is not context-aware, so the long poll runs on its own
		// goroutine and cancellation returns without waiting out the poll
		// timeout. The abandoned request finishes in the background.
		fetched := make(chan fetchResult, 1)
		go func() {
			updates, next, err := b.fetchUpdates(offset)
			fetched <- fetchResult{updates: updates, next: next, err: err}
		}()

		var res fetchResult
		select {
		case <-ctx.Done():
			return nil
		case res = <-fetched:
		}

		if res.err != nil {
			b.log.Error().Err(res.err).Msg("get updates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}
		offset = res.next

		for _, upd := range res.updates {
			b.dispatch(ctx, upd)
		}
	}
}

type fetchResult struct {
	updates []gjson.Result
	next    int
	err     error
}

// fetchUpdates long-polls getUpdates directly so reaction-count updates come
// through; the library's update channel would silently drop them.
func (b *Bot) fetchUpdates(offset int) ([]gjson.Result, int, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", offset)
	params.AddNonZero("timeout", pollTimeoutSeconds)
	params["allowed_updates"] = allowedUpdates

	resp, err := b.tg.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, offset, err
	}

	updates := gjson.ParseBytes(resp.Result).Array()
	next := offset
	for _, upd := range updates {
		if id := int(upd.Get("update_id").Int()); id >= next {
			next = id + 1
		}
	}
	return updates, next, nil
}

func (b *Bot) dispatch(ctx context.Context, upd gjson.Result) {
	switch {
	case upd.Get("message").Exists():
		var msg tgbotapi.Message
		if err := json.Unmarshal([]byte(upd.Get("message").Raw), &msg); err != nil {
			b.log.Warn().Err(err).Msg("unparseable message update")
			return
		}
		b.handleMessage(ctx, &msg)
	case upd.Get("message_reaction_count").Exists():
		b.handleReactionCount(ctx, upd.Get("message_reaction_count"))
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	kind, fileID := classify(msg)
	ev := model.InboundEvent{
		Kind:      kind,
		Author:    identity(msg.From),
		Origin:    model.Origin{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
		Timestamp: msg.Time(),
	}

	if !kind.IsMedia() {
		// Text and unrecognized events skip the download path entirely.
		if _, err := b.eng.Process(ctx, ev); err != nil {
			b.log.Error().Err(err).
				Int64("chat_id", ev.Origin.ChatID).
				Int("message_id", ev.Origin.MessageID).
				Msg("event processing failed")
		}
		return
	}

	// Media: download and hash on a worker slot so slow fetches don't block
	// the intake of subsequent updates.
	b.sem <- struct{}{}
	go func() {
		defer func() { <-b.sem }()
		b.processMedia(ctx, ev, fileID)
	}()
}

func (b *Bot) processMedia(ctx context.Context, ev model.InboundEvent, fileID string) {
	buf, err := b.downloadMedia(ctx, fileID)
	if err != nil {
		b.log.Error().Err(err).
			Str("file_id", fileID).
			Msg("media download failed, event skipped")
		return
	}
	ev.Buffer = buf

	decision, err := b.eng.Process(ctx, ev)
	if err != nil {
		b.log.Error().Err(err).
			Int64("chat_id", ev.Origin.ChatID).
			Int("message_id", ev.Origin.MessageID).
			Msg("event processing failed")
		return
	}

	if decision.Status == engine.StatusDuplicate {
		reply := tgbotapi.NewMessage(ev.Origin.ChatID, formatDuplicateNotice(decision.Notice))
		reply.ReplyToMessageID = ev.Origin.MessageID
		if _, err := b.tg.Send(reply); err != nil {
			b.log.Error().Err(err).Msg("duplicate notice send failed")
		}
	}
}

func (b *Bot) handleReactionCount(ctx context.Context, rc gjson.Result) {
	origin := model.Origin{
		ChatID:    rc.Get("chat.id").Int(),
		MessageID: int(rc.Get("message_id").Int()),
	}
	var total int64
	for _, r := range rc.Get("reactions").Array() {
		total += r.Get("total_count").Int()
	}
	at := time.Unix(rc.Get("date").Int(), 0)

	if err := b.eng.RecordReactions(ctx, origin, total, at); err != nil {
		b.log.Error().Err(err).
			Int64("chat_id", origin.ChatID).
			Int("message_id", origin.MessageID).
			Msg("reaction count update failed")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		b.replyText(chatID, helpText)
	case "chatid":
		b.replyText(chatID, fmt.Sprintf("chat id: %d", chatID))
	case "stats":
		b.cmdStats(ctx, chatID, msg.From)
	case "report":
		b.cmdReport(ctx, chatID)
	default:
		b.replyText(chatID, "Unknown command, see /help")
	}
}

func (b *Bot) cmdStats(ctx context.Context, chatID int64, from *tgbotapi.User) {
	st, err := b.st.GetUserStats(ctx, from.ID)
	if errors.Is(err, store.ErrUnknownUser) {
		b.replyText(chatID, "No activity recorded for you yet.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", from.ID).Msg("stats lookup failed")
		b.replyText(chatID, "Could not read stats, try again later.")
		return
	}
	b.replyText(chatID, formatUserStats(st))
}

func (b *Bot) cmdReport(ctx context.Context, chatID int64) {
	start, end := stats.LastWeek(time.Now().UTC())
	report, err := b.stats.WeeklyReport(ctx, start, end)
	if err != nil {
		b.log.Error().Err(err).Msg("weekly report failed")
		b.replyText(chatID, "Could not build the report, try again later.")
		return
	}
	b.replyText(chatID, formatReport(report))
}

// SendDigest posts a report to the configured digest chat. Used by the
// scheduler.
func (b *Bot) SendDigest(ctx context.Context, report *model.Report) error {
	if b.cfg.DigestChatID == 0 {
		return errors.New("DIGEST_CHAT_ID is not configured")
	}
	_, err := b.tg.Send(tgbotapi.NewMessage(b.cfg.DigestChatID, formatReport(report)))
	return err
}

func (b *Bot) replyText(chatID int64, text string) {
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) downloadMedia(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.tg.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.tg.Token), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status code %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// classify maps a Telegram message onto the engine's media kinds and picks
// the file to fingerprint. Photos use the largest rendition.
func classify(msg *tgbotapi.Message) (model.MediaKind, string) {
	switch {
	case len(msg.Photo) > 0:
		return model.KindImage, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Sticker != nil:
		return model.KindSticker, msg.Sticker.FileID
	case msg.Video != nil:
		return model.KindVideo, msg.Video.FileID
	case msg.VideoNote != nil:
		return model.KindVideo, msg.VideoNote.FileID
	case msg.Animation != nil:
		return model.KindAnimation, msg.Animation.FileID
	case msg.Document != nil:
		return model.KindDocument, msg.Document.FileID
	case msg.Audio != nil:
		return model.KindAudio, msg.Audio.FileID
	case msg.Voice != nil:
		return model.KindVoice, msg.Voice.FileID
	case msg.Text != "":
		return model.KindText, ""
	default:
		return model.KindUnknown, ""
	}
}

func identity(u *tgbotapi.User) model.Identity {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.UserName
	}
	return model.Identity{ID: u.ID, DisplayName: name}
}
