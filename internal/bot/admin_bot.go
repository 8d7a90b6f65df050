package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"impostor_relay/internal/domain"
	"impostor_relay/internal/game"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/ton"
	"impostor_relay/internal/ws"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type poolView interface {
	Stats() ws.PoolStats
	Rooms() []ws.RoomInfo
}

type statsReader interface {
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	PlayerStats(ctx context.Context, address string) (*domain.PlayerStats, error)
}

type gamesReader interface {
	Recent(ctx context.Context, limit int) ([]domain.GameRecord, error)
}

// AdminBot отвечает администраторам на команды и шлет им итоги партий.
// Итоги приходят через RecordResult, бот подключается к хабу как приемник.
type AdminBot struct {
	api      *tgbotapi.BotAPI
	out      sender
	pool     poolView
	stats    statsReader
	games    gamesReader
	adminIDs []int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewAdminBot авторизуется в Telegram
func NewAdminBot(token string, adminIDs []int64, pool poolView, stats statsReader, games gamesReader) (*AdminBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newAdminBot(api, adminIDs, pool, stats, games)
	b.api = api
	b.log.Info("admin bot authorized", "username", api.Self.UserName)
	return b, nil
}

func newAdminBot(out sender, adminIDs []int64, pool poolView, stats statsReader, games gamesReader) *AdminBot {
	return &AdminBot{
		out:      out,
		pool:     pool,
		stats:    stats,
		games:    games,
		adminIDs: adminIDs,
		stopCh:   make(chan struct{}),
		log:      logger.With("component", "admin_bot"),
	}
}

// Start запускает прослушивание команд
func (b *AdminBot) Start() {
	if b.api == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.isAdmin(update.Message.From.ID) {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleCommand(msg)
			}(update.Message)
		}
	}
}

// Stop плавно останавливает бота
func (b *AdminBot) Stop() {
	b.log.Info("stopping admin bot...")
	close(b.stopCh)
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("admin bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("admin bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *AdminBot) isAdmin(userID int64) bool {
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *AdminBot) handleCommand(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	response := b.reply(ctx, msg.Command(), msg.CommandArguments())
	if err := b.send(msg.Chat.ID, response); err != nil {
		b.log.Error("failed to send response", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *AdminBot) reply(ctx context.Context, command, args string) string {
	switch command {
	case "start", "help":
		return helpMessage
	case "stats":
		return b.handleStats()
	case "rooms":
		return b.handleRooms()
	case "top", "games", "player":
		if b.stats == nil || b.games == nil {
			return "Статистика отключена: база не настроена"
		}
		switch command {
		case "top":
			return b.handleTop(ctx, args)
		case "games":
			return b.handleRecentGames(ctx)
		default:
			return b.handlePlayer(ctx, args)
		}
	default:
		return "Неизвестная команда. /help - список команд"
	}
}

const helpMessage = `<b>Команды администратора</b>

/stats - Состояние пула комнат
/rooms - Активные комнаты
/top [лимит] - Лидеры по победам
/games - Последние партии
/player &lt;адрес&gt; - Статистика игрока`

func (b *AdminBot) handleStats() string {
	st := b.pool.Stats()
	return fmt.Sprintf(`<b>Пул комнат</b>

Слотов: %d
- активных: %d
- на остывании: %d
- пустых: %d

Идут партии: %d
Игроков в комнатах: %d
Соединений: %d`,
		st.Slots, st.Active, st.Cooldown, st.Empty, st.Playing, st.Players, st.Connections)
}

func (b *AdminBot) handleRooms() string {
	rooms := b.pool.Rooms()
	if len(rooms) == 0 {
		return "Активных комнат нет"
	}

	var sb strings.Builder
	sb.WriteString("<b>Активные комнаты</b>\n")
	for _, r := range rooms {
		fmt.Fprintf(&sb, "\n#%d <code>%s</code> %s, раунд %d, игроков %d/%d, зрителей %d",
			r.SlotID, r.ID[:8], r.Phase, r.Round, r.Players, r.MaxPlayers, r.Observers)
	}
	return sb.String()
}

func (b *AdminBot) handleTop(ctx context.Context, args string) string {
	limit := 10
	if args != "" {
		n, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil || n <= 0 {
			return "Использование: /top [лимит]"
		}
		limit = n
	}

	entries, err := b.stats.Leaderboard(ctx)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	if len(entries) == 0 {
		return "Сыгранных партий пока нет"
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	var sb strings.Builder
	sb.WriteString("<b>Лидеры</b>\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%d. <code>%s</code> побед %d из %d", e.Rank, ton.ShortAddress(e.Address), e.Wins, e.Games)
	}
	return sb.String()
}

func (b *AdminBot) handleRecentGames(ctx context.Context) string {
	games, err := b.games.Recent(ctx, 10)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	if len(games) == 0 {
		return "Сыгранных партий пока нет"
	}

	var sb strings.Builder
	sb.WriteString("<b>Последние партии</b>\n")
	for _, g := range games {
		fmt.Fprintf(&sb, "\n%s %s (%s), раундов %d, игроков %d, банк %d",
			g.EndedAt.Format("02.01 15:04"), winnerLabel(g.Winner), g.Reason, g.Rounds, g.Players, g.Pot)
	}
	return sb.String()
}

func (b *AdminBot) handlePlayer(ctx context.Context, args string) string {
	addr := strings.TrimSpace(args)
	if addr == "" {
		return "Использование: /player &lt;адрес&gt;"
	}

	st, err := b.stats.PlayerStats(ctx, addr)
	if err != nil {
		return fmt.Sprintf("Ошибка: %v", err)
	}
	return fmt.Sprintf(`<b>Игрок</b> <code>%s</code>

Партий: %d, побед: %d
За предателя: %d, побед: %d
Убийств: %d
Заданий: %d
Выиграно: %d`,
		ton.ShortAddress(st.Address), st.Games, st.Wins, st.ImpostorGames, st.ImpostorWins, st.Kills, st.Tasks, st.Earned)
}

// RecordResult отправляет итог партии всем админам
func (b *AdminBot) RecordResult(ctx context.Context, res game.GameResult) error {
	message := gameSummary(res)

	var failed int
	for _, adminID := range b.adminIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := b.send(adminID, message); err != nil {
			b.log.Error("failed to notify admin", "admin_id", adminID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("notify admins: %d of %d failed", failed, len(b.adminIDs))
	}
	return nil
}

func gameSummary(res game.GameResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Партия окончена</b>\n\nКомната: <code>%s</code>\nИтог: %s (%s)\nРаундов: %d, длительность %s\n",
		html.EscapeString(res.RoomID), winnerLabel(string(res.Winner)), res.Reason, res.Rounds,
		res.EndedAt.Sub(res.StartedAt).Round(time.Second))

	for _, p := range res.Players {
		mark := "☠️"
		if p.Alive {
			mark = "🙂"
		}
		if p.Won {
			mark += "🏆"
		}
		fmt.Fprintf(&sb, "\n%s <code>%s</code> %s, убийств %d, заданий %d", mark, ton.ShortAddress(p.Address), p.Role, p.Kills, p.TasksCompleted)
	}
	return sb.String()
}

func winnerLabel(winner string) string {
	switch game.Faction(winner) {
	case game.FactionCrewmates:
		return "победа экипажа"
	case game.FactionImpostors:
		return "победа предателей"
	default:
		return "без победителя"
	}
}

func (b *AdminBot) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.out.Send(msg)
	return err
}
