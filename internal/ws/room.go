package ws

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"impostor_relay/internal/game"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/metrics"
)

const maxChatLength = 300

// roomHost - обратные вызовы в Hub. Вызываются только после снятия
// блокировки комнаты (через r.later).
type roomHost interface {
	roomChanged(r *Room)
	gameEnded(r *Room, res game.GameResult)
	releaseRoom(r *Room, reason string)
	refund(r *Room, addrs []string)
}

// roomTimer - одноразовый таймер с поколением. Любой stop/arm делает
// уже сработавший, но еще не взявший блокировку колбэк устаревшим.
type roomTimer struct {
	name string
	t    *time.Timer
	gen  uint64
}

func (rt *roomTimer) stop() {
	if rt.t != nil {
		rt.t.Stop()
		rt.t = nil
	}
	rt.gen++
}

func (rt *roomTimer) active() bool {
	return rt.t != nil
}

// Room - актор одной партии: вся мутация под r.mu
type Room struct {
	ID     string
	SlotID int

	host  roomHost
	cfg   LifecycleConfig
	rules game.Rules

	mu           sync.Mutex
	session      *game.Session
	members      *Fanout
	seats        map[string]*Client // адрес -> текущее соединение, nil если отключен
	closed       bool
	camerasInUse bool
	pending      []func()

	phaseTimer    roomTimer
	sabotageTimer roomTimer
	lobbyTimer    roomTimer
	releaseTimer  roomTimer
	lobbyStage    lobbyStage
}

func newRoom(id string, slotID int, host roomHost, rules game.Rules, cfg LifecycleConfig, opts ...game.Option) *Room {
	return &Room{
		ID:            id,
		SlotID:        slotID,
		host:          host,
		cfg:           cfg,
		rules:         rules,
		session:       game.NewSession(id, rules, opts...),
		members:       NewFanout(),
		seats:         make(map[string]*Client),
		phaseTimer:    roomTimer{name: "phase"},
		sabotageTimer: roomTimer{name: "sabotage"},
		lobbyTimer:    roomTimer{name: "lobby"},
		releaseTimer:  roomTimer{name: "release"},
	}
}

// unlock снимает блокировку и выполняет отложенные вызовы
func (r *Room) unlock() {
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// later откладывает вызов до снятия блокировки
func (r *Room) later(fn func()) {
	r.pending = append(r.pending, fn)
}

// guard изолирует панику внутри комнаты: партия завершается с aborted,
// остальные комнаты не затронуты
func (r *Room) guard() {
	if rec := recover(); rec != nil {
		logger.Error("Room.guard: recovered panic", "room", r.ID, "panic", rec, "stack", string(debug.Stack()))
		r.endGameLocked(game.WinResult{Winner: game.FactionNone, Reason: game.ReasonAborted})
	}
}

// arm отменяет предыдущий таймер rt и ставит новый
func (r *Room) arm(rt *roomTimer, d time.Duration, fn func()) {
	rt.stop()
	gen := rt.gen
	rt.t = time.AfterFunc(d, func() { r.fire(rt, gen, fn) })
}

func (r *Room) fire(rt *roomTimer, gen uint64, fn func()) {
	r.mu.Lock()
	defer r.unlock()
	defer r.guard()

	if r.closed || gen != rt.gen {
		logger.Debug("Room.fire: stale timer, skipping", "room", r.ID, "timer", rt.name)
		return
	}
	rt.t = nil
	fn()
	r.syncCamerasLocked()
}

func (r *Room) stopTimersLocked() {
	r.phaseTimer.stop()
	r.sabotageTimer.stop()
	r.lobbyTimer.stop()
}

// Info - снимок для списка комнат
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

// Detail - полный публичный снимок
func (r *Room) Detail() RoomDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detailLocked()
}

func (r *Room) infoLocked() RoomInfo {
	s := r.session
	info := RoomInfo{
		ID:         r.ID,
		SlotID:     r.SlotID,
		Status:     s.Phase().Status(),
		Phase:      s.Phase(),
		Round:      s.Round(),
		Players:    s.PlayerCount(),
		Observers:  r.members.Len() - r.connectedSeatsLocked(),
		MinPlayers: r.rules.MinPlayers,
		MaxPlayers: r.rules.MaxPlayers,
		Impostors:  r.rules.ImpostorsFor(max(s.PlayerCount(), r.rules.MinPlayers)),
		Wager:      r.cfg.Wager,
		CreatedAt:  s.CreatedAt(),
	}
	if d := s.Deadline(); !d.IsZero() {
		info.Deadline = &d
	}
	return info
}

func (r *Room) detailLocked() RoomDetail {
	return RoomDetail{
		RoomInfo: r.infoLocked(),
		Roster:   r.session.Players(),
		Sabotage: sabotageInfo(r.session.Sabotage()),
		Progress: r.session.TaskProgress(),
	}
}

func (r *Room) connectedSeatsLocked() int {
	n := 0
	for _, c := range r.seats {
		if c != nil {
			n++
		}
	}
	return n
}

// HasSeat - занимает ли адрес место в комнате, где партия еще не окончена
func (r *Room) HasSeat(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.session.Phase() == game.PhaseEnded {
		return false
	}
	_, ok := r.session.Player(addr)
	return ok
}

// InLobby - комната открыта и партия еще не началась
func (r *Room) InLobby() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.session.Phase() == game.PhaseLobby
}

// Join сажает клиента игроком или наблюдателем. Повторный вход адреса,
// уже сидящего в комнате, перепривязывает его место к новому соединению.
func (r *Room) Join(c *Client, observer bool) error {
	r.mu.Lock()
	defer r.unlock()
	defer r.guard()

	if r.closed {
		return ErrRoomNotFound
	}
	addr := c.Address()

	if observer {
		r.members.Add(c)
		c.bind(r, true)
		c.SendEvent(RoomStateEvent{Room: r.detailLocked()})
		r.later(func() { r.host.roomChanged(r) })
		return nil
	}

	if _, ok := r.session.Player(addr); ok {
		r.rebindLocked(c, addr)
		return nil
	}

	p, err := r.session.AddPlayer(addr)
	if err != nil {
		return err
	}
	r.seats[addr] = c
	r.members.Add(c)
	c.bind(r, false)

	logger.Info("Room.Join: player joined", "room", r.ID, "address", addr, "players", r.session.PlayerCount())
	r.members.BroadcastExcept(PlayerJoinedEvent{Player: *p}, c.ID)
	c.SendEvent(RoomStateEvent{Room: r.detailLocked()})

	r.afterJoinLocked()
	r.later(func() { r.host.roomChanged(r) })
	return nil
}

// Rebind возвращает переподключившегося игрока на его место
func (r *Room) Rebind(c *Client) bool {
	r.mu.Lock()
	defer r.unlock()
	defer r.guard()

	addr := c.Address()
	if r.closed {
		return false
	}
	if _, ok := r.session.Player(addr); !ok {
		return false
	}
	r.rebindLocked(c, addr)
	return true
}

func (r *Room) rebindLocked(c *Client, addr string) {
	if old := r.seats[addr]; old != nil && old != c {
		r.members.Remove(old.ID)
		old.unbind(r)
	}
	r.seats[addr] = c
	r.members.Add(c)
	c.bind(r, false)

	logger.Info("Room.rebind: player reconnected", "room", r.ID, "address", addr)
	c.SendEvent(RoomStateEvent{Room: r.detailLocked()})
	if r.session.Phase() != game.PhaseLobby {
		r.sendPrivateLocked(c, addr)
	}
}

// Leave убирает соединение. В лобби место освобождается, во время игры
// игрок остается в составе: его все еще можно убить или выгнать.
func (r *Room) Leave(c *Client) {
	r.mu.Lock()
	defer r.unlock()
	defer r.guard()

	if !r.members.Remove(c.ID) {
		return
	}
	c.unbind(r)
	addr := c.Address()

	if seat, ok := r.seats[addr]; ok && seat == c {
		if r.session.RemovePlayer(addr) {
			delete(r.seats, addr)
			logger.Info("Room.Leave: lobby seat freed", "room", r.ID, "address", addr)
			r.members.Broadcast(PlayerLeftEvent{Address: addr})
			r.later(func() { r.host.refund(r, []string{addr}) })
			r.afterLeaveLocked()
		} else {
			r.seats[addr] = nil
			logger.Info("Room.Leave: player disconnected mid-game", "room", r.ID, "address", addr)
		}
	}
	r.later(func() { r.host.roomChanged(r) })
}

// Handle применяет игровое действие. Отказ уходит только автору.
func (r *Room) Handle(c *Client, in Intent) {
	r.mu.Lock()
	defer r.unlock()
	defer r.guard()

	if r.closed {
		c.sendError(ErrRoomNotFound)
		return
	}

	addr := c.Address()
	var err error
	if seat, ok := r.seats[addr]; !ok || seat != c {
		err = game.ErrNotPlayer
	} else {
		err = r.apply(c, addr, in)
	}

	result := "ok"
	if err != nil {
		result = game.Code(err)
		if result == "internal" {
			result = errorEvent(err).Code
		}
		logger.Debug("Room.Handle: action rejected", "room", r.ID, "address", addr, "type", in.Kind(), "error", err)
		c.sendError(err)
	}
	metrics.RecordAction(in.Kind(), result)
	r.syncCamerasLocked()
}

func (r *Room) apply(c *Client, addr string, in Intent) error {
	switch in := in.(type) {
	case *MoveIntent:
		return r.move(addr, in.To)
	case *ReportBody:
		m, err := r.session.Report(addr)
		if err != nil {
			return err
		}
		r.meetingLocked(m)
	case *CallMeeting:
		m, err := r.session.CallMeeting(addr)
		if err != nil {
			return err
		}
		r.meetingLocked(m)
	case *VoteIntent:
		return r.vote(addr, in.Target)
	case *CompleteTask:
		pct, err := r.session.CompleteTask(addr, in.Location)
		if err != nil {
			return err
		}
		r.members.Broadcast(TaskCompletedEvent{Address: addr, Location: in.Location, ProgressPct: pct})
		r.checkWinLocked()
	case *CamerasStart:
		if err := r.session.StartCameras(addr); err != nil {
			return err
		}
		c.SendEvent(CameraFeedEvent{Visible: r.session.CameraFeed()})
	case *CamerasStop:
		return r.session.StopCameras(addr)
	case *VentEnter:
		if err := r.session.EnterVent(addr); err != nil {
			return err
		}
		r.vented(addr, "enter")
	case *VentMove:
		if _, err := r.session.VentMove(addr, in.To); err != nil {
			return err
		}
		r.vented(addr, "move")
	case *VentExit:
		if err := r.session.ExitVent(addr); err != nil {
			return err
		}
		r.vented(addr, "exit")
		p, _ := r.session.Player(addr)
		r.members.Broadcast(PlayerMovedEvent{Address: addr, From: p.Location, To: p.Location})
	case *KillIntent:
		body, err := r.session.Kill(addr, in.Target)
		if err != nil {
			return err
		}
		logger.Info("Room.kill: player killed", "room", r.ID, "victim", body.Victim, "round", body.Round)
		r.members.Broadcast(KillOccurredEvent{Victim: body.Victim, Location: body.Location})
		r.checkWinLocked()
	case *SabotageStart:
		return r.startSabotage(addr, in.Type)
	case *SabotageFix:
		return r.fixSabotage(addr)
	case *ChatIntent:
		return r.chat(addr, in.Text)
	default:
		return ErrUnknownType
	}
	return nil
}

func (r *Room) move(addr string, to game.Location) error {
	from, err := r.session.Move(addr, to)
	if err != nil {
		return err
	}
	evt := PlayerMovedEvent{Address: addr, From: from, To: to}
	if p, _ := r.session.Player(addr); p.IsAlive {
		r.members.Broadcast(evt)
	} else {
		r.members.SendWhere(evt, r.isGhostOrObserver)
	}
	return nil
}

func (r *Room) vote(addr string, target *string) error {
	choice := game.Skip
	if target != nil {
		choice = *target
	}
	all, err := r.session.CastVote(addr, choice)
	if err != nil {
		return err
	}
	r.members.Broadcast(VoteCastEvent{Voter: addr})
	if all {
		logger.Debug("Room.vote: all living players voted, resolving early", "room", r.ID)
		r.resolveVotesLocked()
	}
	return nil
}

func (r *Room) vented(addr, action string) {
	p, _ := r.session.Player(addr)
	r.members.SendWhere(PlayerVentedEvent{Address: addr, Action: action, Location: p.Location}, r.isImpostorOrObserver)
}

func (r *Room) startSabotage(addr string, typ game.SabotageType) error {
	st, err := r.session.StartSabotage(addr, typ)
	if err != nil {
		return err
	}
	logger.Info("Room.sabotage: started", "room", r.ID, "type", typ)
	r.members.Broadcast(SabotageStartedEvent{Sabotage: *sabotageInfo(st)})
	if st.Deadline != nil {
		r.arm(&r.sabotageTimer, st.Deadline.Sub(st.StartTime), r.failSabotageLocked)
	}
	return nil
}

func (r *Room) fixSabotage(addr string) error {
	var typ game.SabotageType
	if st := r.session.Sabotage(); st != nil {
		typ = st.Spec.Type
	}
	fixed, _, err := r.session.FixSabotage(addr)
	if err != nil {
		return err
	}
	if !fixed {
		r.members.Broadcast(SabotageProgressEvent{Sabotage: *sabotageInfo(r.session.Sabotage())})
		return nil
	}
	r.sabotageTimer.stop()
	logger.Info("Room.sabotage: fixed", "room", r.ID, "type", typ)
	r.members.Broadcast(SabotageFixedEvent{Type: typ})
	return nil
}

func (r *Room) failSabotageLocked() {
	st, ok := r.session.FailSabotage()
	if !ok {
		return
	}
	logger.Info("Room.sabotage: critical sabotage not fixed in time", "room", r.ID, "type", st.Spec.Type)
	r.members.Broadcast(SabotageFailedEvent{Type: st.Spec.Type})
	r.endGameLocked(game.WinResult{Winner: game.FactionImpostors, Reason: game.ReasonKills})
}

// expireSabotageLocked завершает игру, если срок критического саботажа
// истек, а таймер уже не сработает
func (r *Room) expireSabotageLocked() bool {
	if !r.session.SabotageExpired() {
		return false
	}
	r.sabotageTimer.stop()
	r.failSabotageLocked()
	return r.session.Phase() == game.PhaseEnded
}

func (r *Room) chat(addr, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > maxChatLength {
		return ErrBadChat
	}
	scope, err := r.session.ChatScope(addr)
	if err != nil {
		return err
	}
	if scope == game.ChatGhosts {
		r.members.SendWhere(ChatEvent{From: addr, Text: text, Ghost: true}, r.isGhostOrObserver)
		return nil
	}
	r.members.Broadcast(ChatEvent{From: addr, Text: text})
	return nil
}

func (r *Room) isGhostOrObserver(c *Client) bool {
	if c.IsObserver() {
		return true
	}
	p, ok := r.session.Player(c.Address())
	return ok && !p.IsAlive
}

func (r *Room) isImpostorOrObserver(c *Client) bool {
	return c.IsObserver() || r.session.IsImpostor(c.Address())
}

// syncCamerasLocked рассылает статус камер при его смене и обновляет
// картинку тем, кто смотрит
func (r *Room) syncCamerasLocked() {
	inUse := r.session.CamerasInUse()
	if inUse != r.camerasInUse {
		r.camerasInUse = inUse
		r.members.Broadcast(CameraStatusEvent{InUse: inUse})
	}
	if !inUse {
		return
	}
	feed := CameraFeedEvent{Visible: r.session.CameraFeed()}
	for _, addr := range r.session.Watchers() {
		if c := r.seats[addr]; c != nil {
			c.SendEvent(feed)
		}
	}
}

func (r *Room) phaseChangedLocked() {
	evt := PhaseChangedEvent{Phase: r.session.Phase(), Round: r.session.Round()}
	if d := r.session.Deadline(); !d.IsZero() {
		evt.Deadline = &d
	}
	r.members.Broadcast(evt)
	metrics.RecordPhase(string(evt.Phase))
	r.later(func() { r.host.roomChanged(r) })
}

// sendPrivateLocked отправляет роль и задания одному игроку
func (r *Room) sendPrivateLocked(c *Client, addr string) {
	role := r.session.RoleOf(addr)
	evt := RoleAssignedEvent{Role: role}
	if role == game.RoleImpostor {
		evt.Impostors = r.session.Impostors()
	}
	c.SendEvent(evt)
	if role == game.RoleCrewmate {
		c.SendEvent(TasksAssignedEvent{Tasks: r.session.TasksOf(addr)})
	}
}

// startLocked раздает роли и открывает первый раунд
func (r *Room) startLocked() {
	if r.session.Phase() != game.PhaseLobby {
		return
	}
	r.lobbyTimer.stop()
	r.lobbyStage = stageNone

	if err := r.session.Start(); err != nil {
		logger.Warn("Room.start: cannot start", "room", r.ID, "error", err)
		return
	}
	logger.Info("Room.start: game starting", "room", r.ID, "players", r.session.PlayerCount())
	r.phaseChangedLocked()
	for _, p := range r.session.Players() {
		if c := r.seats[p.Address]; c != nil {
			r.sendPrivateLocked(c, p.Address)
		}
	}
	r.beginRoundLocked()
}

func (r *Room) beginRoundLocked() {
	if r.expireSabotageLocked() {
		return
	}
	if err := r.session.BeginRound(); err != nil {
		logger.Debug("Room.beginRound: skipped", "room", r.ID, "phase", r.session.Phase())
		return
	}
	r.phaseChangedLocked()
	r.arm(&r.phaseTimer, r.rules.ActionCommitDuration, r.revealRoundLocked)
}

func (r *Room) revealRoundLocked() {
	sum, err := r.session.RevealRound()
	if err != nil {
		return
	}
	r.phaseChangedLocked()
	r.members.Broadcast(RoundSummaryEvent{Summary: sum})
	if r.expireSabotageLocked() {
		return
	}
	r.arm(&r.phaseTimer, r.rules.ActionRevealDuration, r.beginRoundLocked)
}

// meetingLocked - общий путь репорта и экстренного собрания
func (r *Room) meetingLocked(m game.Meeting) {
	r.sabotageTimer.stop()
	if m.Cleared != nil {
		r.members.Broadcast(SabotageFixedEvent{Type: m.Cleared.Spec.Type, Cleared: true})
	}
	if m.Body != nil {
		r.members.Broadcast(BodyReportedEvent{Reporter: m.Caller, Victim: m.Body.Victim, Location: m.Body.Location})
	} else {
		r.members.Broadcast(MeetingCalledEvent{Caller: m.Caller})
	}
	r.phaseChangedLocked()
	r.arm(&r.phaseTimer, r.rules.DiscussionDuration, r.beginVotingLocked)
}

func (r *Room) beginVotingLocked() {
	if err := r.session.BeginVoting(); err != nil {
		return
	}
	r.phaseChangedLocked()
	r.arm(&r.phaseTimer, r.rules.VotingDuration, r.resolveVotesLocked)
}

func (r *Room) resolveVotesLocked() {
	out, err := r.session.ResolveVotes()
	if err != nil {
		return
	}
	evt := PlayerEjectedEvent{Address: out.Ejected, Tie: out.Tie, Counts: out.Counts, Skips: out.Skips}
	if out.Ejected != "" {
		evt.WasImpostor = r.session.IsImpostor(out.Ejected)
		logger.Info("Room.vote: player ejected", "room", r.ID, "address", out.Ejected, "impostor", evt.WasImpostor)
	}
	r.members.Broadcast(evt)
	r.phaseChangedLocked()

	if res, won := r.session.CheckWin(); won {
		r.arm(&r.phaseTimer, r.rules.VoteResultDuration, func() { r.endGameLocked(res) })
		return
	}
	r.arm(&r.phaseTimer, r.rules.VoteResultDuration, r.beginRoundLocked)
}

// checkWinLocked завершает игру сразу, минуя таймеры фазы
func (r *Room) checkWinLocked() bool {
	res, won := r.session.CheckWin()
	if won {
		r.endGameLocked(res)
	}
	return won
}

// endGameLocked фиксирует итог, останавливает таймеры и через паузу
// на показ результата отдает слот в cooldown
func (r *Room) endGameLocked(res game.WinResult) {
	if r.closed || !r.session.End(res) {
		return
	}
	r.stopTimersLocked()
	r.phaseChangedLocked()

	outcome := r.session.Outcome()
	r.members.Broadcast(GameEndedEvent{
		Winner:    res.Winner,
		Reason:    res.Reason,
		Impostors: r.session.Impostors(),
		Players:   outcome.Players,
	})
	metrics.GamesEnded.WithLabelValues(string(res.Winner), string(res.Reason)).Inc()
	logger.Info("Room.endGame: game ended", "room", r.ID, "winner", res.Winner, "reason", res.Reason, "rounds", outcome.Rounds)

	r.later(func() { r.host.gameEnded(r, outcome) })
	r.arm(&r.releaseTimer, r.cfg.ResultDisplay, func() { r.closeLocked("game_over") })
}

// closeLocked выселяет всех и отдает комнату хабу
func (r *Room) closeLocked(reason string) {
	if r.closed {
		return
	}
	r.stopTimersLocked()
	r.releaseTimer.stop()

	var refunds []string
	if r.session.Phase() == game.PhaseLobby {
		for _, p := range r.session.Players() {
			refunds = append(refunds, p.Address)
		}
	}

	r.members.Broadcast(RoomClosedEvent{RoomID: r.ID, Reason: reason})
	for _, c := range r.members.Clients() {
		c.unbind(r)
	}
	r.members = NewFanout()
	r.closed = true

	logger.Info("Room.close: room closed", "room", r.ID, "slot", r.SlotID, "reason", reason)
	r.later(func() {
		if len(refunds) > 0 {
			r.host.refund(r, refunds)
		}
		r.host.releaseRoom(r, reason)
	})
}

// Shutdown останавливает таймеры без рассылок (остановка процесса)
func (r *Room) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimersLocked()
	r.releaseTimer.stop()
	r.closed = true
}
