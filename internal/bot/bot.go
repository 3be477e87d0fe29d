// Package bot is the Telegram front end: free text and receipt
// screenshots become expense records, and a small command set covers
// listing, editing, deleting and monthly reports.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/xuxing3/JiZhang/internal/config"
	"github.com/xuxing3/JiZhang/internal/domain"
	"github.com/xuxing3/JiZhang/internal/extract"
	"github.com/xuxing3/JiZhang/internal/service"
	"github.com/xuxing3/JiZhang/internal/store"
	"github.com/xuxing3/JiZhang/internal/timeres"
)

const defaultListLimit = 20

// Bot wires the Telegram API to the expense service.
type Bot struct {
	api    *tgbotapi.BotAPI
	svc    *service.Service
	cfg    *config.Config
	log    zerolog.Logger
	client *http.Client
}

// New creates the bot against the configured Telegram token.
func New(svc *service.Service, cfg *config.Config, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{
		api:    api,
		svc:    svc,
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Run long-polls for updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info().Str("username", b.api.Self.UserName).Msg("Telegram bot started")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	if msg.From == nil || !b.cfg.UserAllowed(msg.From.ID) {
		// Keep the refusal terse; no hint at the allow list.
		b.reply(msg.Chat.ID, "⛔️ 未授权用户。")
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "list":
		b.cmdList(ctx, msg)
	case "edit":
		b.cmdEdit(ctx, msg)
	case "delete":
		b.cmdDelete(ctx, msg)
	case "report":
		b.cmdReport(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "未知命令。可用：/list /edit /delete /report")
	}
}

// handleText books a free-text expense and echoes a line the user can
// paste into /edit.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	exp, _, err := b.svc.ParseAndCreate(ctx, service.ParseInput{
		Text:   msg.Text,
		ChatID: &chatID,
		Source: domain.SourceTelegram,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			b.reply(chatID, "❌ 未识别到金额，请包含如 23 或 23.5 元/￥ 等数字。")
			return
		}
		b.log.Error().Err(err).Msg("Text ingestion failed")
		b.reply(chatID, fmt.Sprintf("❌ 文本入账失败：%v", err))
		return
	}
	b.reply(chatID, editLine(exp))
}

// handlePhoto downloads the largest rendition of a receipt screenshot,
// runs vision extraction and books the result. The image bytes are
// never stored.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	photo := msg.Photo[len(msg.Photo)-1]
	url, err := b.api.GetFileDirectURL(photo.FileID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to resolve photo URL")
		b.reply(chatID, fmt.Sprintf("❌ 处理失败：%v", err))
		return
	}
	data, err := b.download(ctx, url)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to download photo")
		b.reply(chatID, fmt.Sprintf("❌ 处理失败：%v", err))
		return
	}

	exp, _, err := b.svc.CreateFromImage(ctx, "image/jpeg", data, "", &chatID)
	if err != nil {
		b.log.Error().Err(err).Msg("Photo ingestion failed")
		b.reply(chatID, fmt.Sprintf("❌ 处理失败：%v", err))
		return
	}
	b.reply(chatID, editLine(exp))
}

// cmdList handles /list [YYYY-MM] [N].
func (b *Bot) cmdList(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	month := ""
	limit := int64(defaultListLimit)
	if len(args) >= 1 {
		if ymRe.MatchString(args[0]) {
			month = args[0]
			if len(args) >= 2 {
				if n, err := strconv.ParseInt(args[1], 10, 64); err == nil {
					limit = n
				}
			}
		} else if n, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			limit = n
		}
	}
	if month == "" {
		month = b.currentMonth()
	}

	records, err := b.svc.MonthRecords(ctx, &chatID, month, limit)
	if err != nil {
		b.log.Error().Err(err).Msg("Month listing failed")
		b.reply(chatID, fmt.Sprintf("❌ /list 失败：%v", err))
		return
	}
	if len(records) == 0 {
		b.reply(chatID, fmt.Sprintf("⚠️ %s 无入账记录。", month))
		return
	}

	lines := []string{fmt.Sprintf("📄 最近 %d 条（%s）：", len(records), month)}
	for i, rec := range records {
		lines = append(lines, fmt.Sprintf("%02d. %s", i+1, docLine(&rec)))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

// cmdEdit handles /edit <_id> key=value ... with quoted values allowed.
func (b *Bot) cmdEdit(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		b.reply(chatID, `用法：/edit <_id> amount=12.5 category=餐饮 payee="肯德基" time="2025-08-12 19:30"`)
		return
	}

	id := args[0]
	pairs := parseKVPairs(strings.Join(args[1:], " "))
	if len(pairs) == 0 {
		b.reply(chatID, "❌ 未解析到任何可更新字段。")
		return
	}

	var unknown []string
	in := service.UpdateInput{ChatID: &chatID}
	for key, val := range pairs {
		switch key {
		case "amount":
			// Users paste back edit lines, so tolerate currency
			// decorations the same way the extractors do.
			f, ok := extract.CleanAmount(strings.TrimSpace(val))
			if !ok {
				b.reply(chatID, fmt.Sprintf("❌ amount 无效：%s", val))
				return
			}
			in.Amount = &f
		case "category":
			v := val
			in.Category = &v
		case "payee":
			v := val
			in.Payee = &v
		case "note":
			v := val
			in.Note = &v
		case "time":
			v := val
			in.Time = &v
		default:
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		b.reply(chatID, fmt.Sprintf("❌ 存在不支持字段：%s", strings.Join(unknown, ", ")))
		return
	}

	exp, err := b.svc.Update(ctx, id, in)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			b.reply(chatID, "❌ 未找到该记录（或不属于当前会话）。")
		case errors.Is(err, service.ErrValidation):
			b.reply(chatID, fmt.Sprintf("❌ %v", err))
		default:
			b.log.Error().Err(err).Msg("Edit failed")
			b.reply(chatID, fmt.Sprintf("❌ /edit 失败：%v", err))
		}
		return
	}
	b.reply(chatID, "✅ 已更新：\n"+docLine(exp))
}

// cmdDelete handles /delete <_id[,<_id2> ...]>.
func (b *Bot) cmdDelete(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	raw := strings.ReplaceAll(msg.CommandArguments(), ",", " ")
	ids := strings.Fields(raw)
	if len(ids) == 0 {
		b.reply(chatID, "用法：/delete <_id[,<_id2> ...]>（多个可用逗号或空格分隔）")
		return
	}

	var deleted, notFound int
	var invalid []string
	for _, id := range ids {
		switch err := b.svc.Delete(ctx, id, &chatID); {
		case err == nil:
			deleted++
		case errors.Is(err, store.ErrNotFound):
			notFound++
		case errors.Is(err, service.ErrValidation):
			invalid = append(invalid, id)
		default:
			b.log.Error().Err(err).Str("id", id).Msg("Delete failed")
			notFound++
		}
	}

	parts := []string{fmt.Sprintf("🗑️ 删除完成：%d 条", deleted)}
	if notFound > 0 {
		parts = append(parts, fmt.Sprintf("未找到：%d 条", notFound))
	}
	if len(invalid) > 0 {
		parts = append(parts, fmt.Sprintf("无效 _id：%s", strings.Join(invalid, ", ")))
	}
	b.reply(chatID, strings.Join(parts, "；"))
}

// cmdReport handles /report [YYYY-MM]: builds the monthly workbook and
// sends it as a document.
func (b *Bot) cmdReport(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	month := strings.TrimSpace(msg.CommandArguments())
	if month == "" {
		month = b.currentMonth()
	}
	if !ymRe.MatchString(month) {
		b.reply(chatID, "用法：/report [YYYY-MM]")
		return
	}

	data, err := b.svc.MonthlyReport(ctx, &chatID, month)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			b.reply(chatID, fmt.Sprintf("⚠️ %s 无入账记录。", month))
			return
		}
		b.log.Error().Err(err).Msg("Report generation failed")
		b.reply(chatID, fmt.Sprintf("❌ 生成报表失败：%v", err))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("summary_%s.xlsx", month),
		Bytes: data,
	})
	if _, err := b.api.Send(doc); err != nil {
		b.log.Error().Err(err).Msg("Failed to send report")
		b.reply(chatID, fmt.Sprintf("❌ 生成报表失败：%v", err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (b *Bot) currentMonth() string {
	loc, err := time.LoadLocation(b.cfg.DefaultTZ)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01")
}

var (
	ymRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	kvRe = regexp.MustCompile(`(\w+)=(".*?"|'.*?'|[^\s]+)`)
)

// parseKVPairs reads key=value pairs; values may be single or double
// quoted to carry spaces. Keys are lowercased, later pairs win.
func parseKVPairs(text string) map[string]string {
	pairs := make(map[string]string)
	for _, m := range kvRe.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(m[1])
		val := m[2]
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		pairs[key] = val
	}
	return pairs
}

// editLine renders one record as a line the user can copy straight into
// /edit.
func editLine(e *domain.Expense) string {
	return fmt.Sprintf("%s amount=%s category=%s payee=%s time=%s",
		e.ID.Hex(),
		strconv.FormatFloat(e.Amount, 'g', -1, 64),
		e.Category,
		quoteKV(e.Payee),
		quoteKV(displayTime(e)),
	)
}

// docLine renders one record for /list and /edit confirmations.
func docLine(e *domain.Expense) string {
	return fmt.Sprintf("%s | %s | %.2f | %s | %s",
		e.ID.Hex(), displayTime(e), e.Amount, e.Category, e.Payee)
}

func displayTime(e *domain.Expense) string {
	if e.TimeLocal != "" {
		return e.TimeLocal
	}
	if t := timeres.Resolve(e); t != nil {
		return t.Format(timeres.LocalLayout)
	}
	return ""
}

// quoteKV wraps a value so it survives a round trip through
// parseKVPairs. Double quotes are preferred; a value containing them
// falls back to single quotes or escaping.
func quoteKV(val string) string {
	hasDouble := strings.Contains(val, `"`)
	hasSingle := strings.Contains(val, "'")
	switch {
	case hasDouble && !hasSingle:
		return "'" + val + "'"
	case hasDouble && hasSingle:
		return `"` + strings.ReplaceAll(val, `"`, `\"`) + `"`
	default:
		return `"` + val + `"`
	}
}
