package ws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"impostor_relay/internal/game"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/metrics"

	"github.com/google/uuid"
)

// ошибки уровня хаба (емкость, авторизация)
var (
	ErrNotAuthenticated = &game.RuleError{Code: "not_authenticated", Message: "authenticate first"}
	ErrAuthFailed       = &game.RuleError{Code: "auth_failed", Message: "invalid address or token"}
	ErrRoomNotFound     = &game.RuleError{Code: "room_not_found", Message: "room not found"}
	ErrNotInRoom        = &game.RuleError{Code: "not_in_room", Message: "you are not in a room"}
	ErrAlreadySeated    = &game.RuleError{Code: "already_seated", Message: "address is playing in another room"}
	ErrWagerRejected    = &game.RuleError{Code: "wager_rejected", Message: "could not reserve the wager"}
	ErrRateLimited      = &game.RuleError{Code: "rate_limited", Message: "too many messages"}
	ErrBadChat          = &game.RuleError{Code: "bad_chat", Message: "chat message is empty or too long"}
)

// Authenticator проверяет адрес и токен, возвращает нормализованный адрес
type Authenticator interface {
	Authenticate(address, token string) (string, error)
}

// Ledger - внешний баланс для ставок
type Ledger interface {
	Debit(ctx context.Context, address string, amount int64, ref string) error
	Credit(ctx context.Context, address string, amount int64, ref string) error
}

// ResultSink получает итог каждой завершенной партии
type ResultSink interface {
	RecordResult(ctx context.Context, res game.GameResult) error
}

// LifecycleConfig - параметры пула слотов и соединений
type LifecycleConfig struct {
	SlotCount         int
	MinPopulationWait time.Duration
	FillWait          time.Duration
	SlotCooldown      time.Duration
	ResultDisplay     time.Duration
	Wager             int64

	SendBuffer   int
	MessageRate  float64
	MessageBurst int
	SinkTimeout  time.Duration
}

func DefaultLifecycle() LifecycleConfig {
	return LifecycleConfig{
		SlotCount:         3,
		MinPopulationWait: 120 * time.Second,
		FillWait:          30 * time.Second,
		SlotCooldown:      10 * time.Minute,
		ResultDisplay:     5 * time.Second,
		SendBuffer:        256,
		MessageRate:       20,
		MessageBurst:      40,
		SinkTimeout:       5 * time.Second,
	}
}

type SlotState string

const (
	SlotEmpty    SlotState = "empty"
	SlotActive   SlotState = "active"
	SlotCooldown SlotState = "cooldown"
)

type slot struct {
	id            int
	state         SlotState
	roomID        string
	cooldownUntil time.Time
	timer         *time.Timer
	gen           uint64
}

// SlotInfo - снимок слота для HTTP зеркала
type SlotInfo struct {
	ID            int        `json:"id"`
	State         SlotState  `json:"state"`
	RoomID        string     `json:"room_id,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

type HubOption func(*Hub)

func WithLedger(l Ledger) HubOption {
	return func(h *Hub) { h.ledger = l }
}

func WithSinks(sinks ...ResultSink) HubOption {
	return func(h *Hub) { h.sinks = append(h.sinks, sinks...) }
}

// AddSink подключает приемник после создания хаба
func (h *Hub) AddSink(sink ResultSink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
}

// WithSessionOptions пробрасывает опции в каждую новую партию (часы, rng)
func WithSessionOptions(opts ...game.Option) HubOption {
	return func(h *Hub) { h.sessionOpts = append(h.sessionOpts, opts...) }
}

// Hub владеет таблицей слотов и реестром соединений. Блокировка хаба
// никогда не удерживается при вызове методов комнаты.
type Hub struct {
	cfg         LifecycleConfig
	rules       game.Rules
	auth        Authenticator
	ledger      Ledger
	sinks       []ResultSink
	sessionOpts []game.Option

	mu      sync.RWMutex
	slots   []*slot
	rooms   map[string]*Room
	clients map[string]*Client
	// номер последней ставки адреса в комнате, для ссылок в журнале
	stakes  map[string]int
	stopped bool

	bg sync.WaitGroup
}

func NewHub(cfg LifecycleConfig, rules game.Rules, auth Authenticator, opts ...HubOption) *Hub {
	h := &Hub{
		cfg:     cfg,
		rules:   rules,
		auth:    auth,
		rooms:   make(map[string]*Room),
		clients: make(map[string]*Client),
		stakes:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	for i := 0; i < cfg.SlotCount; i++ {
		h.slots = append(h.slots, &slot{id: i, state: SlotEmpty})
	}
	return h
}

// Start заполняет все пустые слоты
func (h *Hub) Start() {
	for i := 0; i < h.cfg.SlotCount; i++ {
		h.CreateRoomForSlot(i)
	}
	logger.Info("Hub.Start: slot pool ready", "slots", h.cfg.SlotCount)
}

// Stop гасит таймеры слотов и комнат; партии не дорабатываются
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	for _, s := range h.slots {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.gen++
	}
	rooms := h.roomsLocked()
	h.mu.Unlock()

	for _, r := range rooms {
		r.Shutdown()
	}
	h.bg.Wait()
}

// CreateRoomForSlot создает комнату только в пустом слоте, иначе nil
func (h *Hub) CreateRoomForSlot(id int) *Room {
	h.mu.Lock()
	if h.stopped || id < 0 || id >= len(h.slots) {
		h.mu.Unlock()
		return nil
	}
	s := h.slots[id]
	if s.state != SlotEmpty {
		h.mu.Unlock()
		logger.Debug("Hub.CreateRoomForSlot: slot is not empty", "slot", id, "state", s.state)
		return nil
	}
	room := newRoom(uuid.NewString(), id, h, h.rules, h.cfg, h.sessionOpts...)
	s.state = SlotActive
	s.roomID = room.ID
	s.cooldownUntil = time.Time{}
	h.rooms[room.ID] = room
	h.slotMetricsLocked()
	h.mu.Unlock()

	room.open()
	metrics.RoomsCreated.Inc()
	logger.Info("Hub.CreateRoomForSlot: room created", "slot", id, "room", room.ID)
	h.broadcastLobby(RoomCreatedEvent{Room: room.Info()})
	return room
}

// releaseRoom переводит слот комнаты в cooldown. Повторный или
// запоздалый вызов ничего не делает.
func (h *Hub) releaseRoom(r *Room, reason string) {
	h.mu.Lock()
	if r.SlotID < 0 || r.SlotID >= len(h.slots) {
		h.mu.Unlock()
		return
	}
	s := h.slots[r.SlotID]
	if s.state != SlotActive || s.roomID != r.ID {
		h.mu.Unlock()
		logger.Debug("Hub.releaseRoom: slot already moved on", "slot", r.SlotID, "room", r.ID)
		return
	}
	delete(h.rooms, r.ID)
	for key := range h.stakes {
		if strings.HasPrefix(key, r.ID+"/") {
			delete(h.stakes, key)
		}
	}
	s.state = SlotCooldown
	s.roomID = ""
	s.cooldownUntil = time.Now().Add(h.cfg.SlotCooldown)
	s.gen++
	gen, id := s.gen, s.id
	if !h.stopped {
		s.timer = time.AfterFunc(h.cfg.SlotCooldown, func() { h.onCooldownExpired(id, gen) })
	}
	h.slotMetricsLocked()
	h.mu.Unlock()

	metrics.RoomsClosed.WithLabelValues(reason).Inc()
	logger.Info("Hub.releaseRoom: slot cooling down", "slot", id, "room", r.ID, "reason", reason, "cooldown", h.cfg.SlotCooldown)
	h.broadcastLobby(RoomClosedEvent{RoomID: r.ID, Reason: reason})
}

func (h *Hub) onCooldownExpired(id int, gen uint64) {
	h.mu.Lock()
	s := h.slots[id]
	if h.stopped || s.state != SlotCooldown || s.gen != gen {
		h.mu.Unlock()
		logger.Debug("Hub.onCooldownExpired: stale timer", "slot", id)
		return
	}
	s.state = SlotEmpty
	s.timer = nil
	s.cooldownUntil = time.Time{}
	h.slotMetricsLocked()
	h.mu.Unlock()

	h.CreateRoomForSlot(id)
}

func (h *Hub) slotMetricsLocked() {
	counts := map[SlotState]int{SlotEmpty: 0, SlotActive: 0, SlotCooldown: 0}
	for _, s := range h.slots {
		counts[s.state]++
	}
	for state, n := range counts {
		metrics.SlotsByState.WithLabelValues(string(state)).Set(float64(n))
	}
}

func (h *Hub) roomChanged(r *Room) {
	h.mu.RLock()
	_, ok := h.rooms[r.ID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.broadcastLobby(RoomUpdatedEvent{Room: r.Info()})
}

// gameEnded раздает итог приемникам вне блокировок, каждому свой таймаут
func (h *Hub) gameEnded(r *Room, res game.GameResult) {
	h.mu.RLock()
	sinks := append([]ResultSink(nil), h.sinks...)
	h.mu.RUnlock()

	for _, sink := range sinks {
		h.bg.Add(1)
		go func(sink ResultSink) {
			defer h.bg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
			defer cancel()
			if err := sink.RecordResult(ctx, res); err != nil {
				name := fmt.Sprintf("%T", sink)
				metrics.SinkErrors.WithLabelValues(name).Inc()
				logger.Error("Hub.gameEnded: result sink failed", "room", r.ID, "sink", name, "error", err)
			}
		}(sink)
	}
}

// refund возвращает ставки игрокам, покинувшим лобби или не дождавшимся старта
func (h *Hub) refund(r *Room, addrs []string) {
	if h.ledger == nil || h.cfg.Wager <= 0 || len(addrs) == 0 {
		return
	}
	refs := make([]string, len(addrs))
	h.mu.RLock()
	for i, addr := range addrs {
		refs[i] = stakeRef("refund", r.ID, h.stakes[r.ID+"/"+addr])
	}
	h.mu.RUnlock()

	h.bg.Add(1)
	go func() {
		defer h.bg.Done()
		for i, addr := range addrs {
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
			err := h.ledger.Credit(ctx, addr, h.cfg.Wager, refs[i])
			cancel()
			if err != nil {
				logger.Error("Hub.refund: credit failed", "room", r.ID, "address", addr, "error", err)
			}
		}
	}()
}

// повторный вход после выхода из лобби - новая ставка со своей ссылкой
func stakeRef(kind, roomID string, n int) string {
	return fmt.Sprintf("%s:%s:%d", kind, roomID, n)
}

// Register добавляет соединение в реестр и приветствует его
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	metrics.Connections.Inc()
	c.SendEvent(WelcomeEvent{ConnectionID: c.ID})
	c.SendEvent(h.RoomList())
}

// Unregister убирает соединение из реестра и из комнаты.
// Игрок при этом остается в составе партии.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()
	if !ok {
		return
	}

	if room := c.Room(); room != nil {
		room.Leave(c)
	}
	c.closeSend()
	metrics.Connections.Dec()
}

// Dispatch разбирает входящее сообщение: вход, список и комнаты обрабатывает
// хаб, игровые действия уходят в комнату клиента
func (h *Hub) Dispatch(c *Client, raw []byte) {
	in, err := DecodeIntent(raw)
	if err != nil {
		metrics.RecordAction("invalid", errorEvent(err).Code)
		c.sendError(err)
		return
	}

	switch in := in.(type) {
	case *Authenticate:
		err = h.authenticate(c, in)
	case *ListRooms:
		c.SendEvent(h.RoomList())
	case *JoinRoom:
		err = h.join(c, in)
	case *LeaveRoom:
		err = h.leave(c)
	default:
		if c.Address() == "" {
			err = ErrNotAuthenticated
			break
		}
		room := c.Room()
		if room == nil {
			err = ErrNotInRoom
			break
		}
		room.Handle(c, in)
		return
	}

	result := "ok"
	if err != nil {
		result = errorEvent(err).Code
		c.sendError(err)
	}
	metrics.RecordAction(in.Kind(), result)
}

func (h *Hub) authenticate(c *Client, in *Authenticate) error {
	addr, err := h.auth.Authenticate(in.Address, in.Token)
	if err != nil {
		logger.Debug("Hub.authenticate: rejected", "conn", c.ID, "error", err)
		return ErrAuthFailed
	}
	if cur := c.Address(); cur != "" && cur != addr {
		if room := c.Room(); room != nil {
			room.Leave(c)
		}
	}
	c.setAddress(addr)

	// переподключение: адрес, уже сидящий в комнате, получает свое место
	var roomID string
	cur := c.Room()
	for _, r := range h.roomsSnapshot() {
		if !r.HasSeat(addr) || !r.Rebind(c) {
			continue
		}
		roomID = r.ID
		if cur != nil && cur != r {
			cur.Leave(c)
		}
		break
	}
	logger.Info("Hub.authenticate: client authenticated", "conn", c.ID, "address", addr, "rejoined", roomID)
	c.SendEvent(AuthenticatedEvent{Address: addr, RoomID: roomID})
	return nil
}

func (h *Hub) join(c *Client, in *JoinRoom) error {
	addr := c.Address()
	if addr == "" {
		return ErrNotAuthenticated
	}
	var observer bool
	switch in.As {
	case "", "player":
	case "observer":
		observer = true
	default:
		return ErrBadMessage
	}

	h.mu.RLock()
	room := h.rooms[in.RoomID]
	h.mu.RUnlock()
	if room == nil {
		return ErrRoomNotFound
	}

	// из текущей комнаты клиент уходит только после успешного входа в новую
	cur := c.Room()
	if cur == room {
		cur = nil
	}
	if !observer {
		for _, other := range h.roomsSnapshot() {
			if other == room || !other.HasSeat(addr) {
				continue
			}
			// место в лобби текущей комнаты освободится при уходе
			if other == cur && cur.InLobby() {
				continue
			}
			return ErrAlreadySeated
		}
	}

	if observer {
		if err := room.Join(c, true); err != nil {
			return err
		}
		if cur != nil {
			cur.Leave(c)
		}
		return nil
	}

	charged := false
	if h.ledger != nil && h.cfg.Wager > 0 && !room.HasSeat(addr) {
		h.mu.Lock()
		h.stakes[room.ID+"/"+addr]++
		n := h.stakes[room.ID+"/"+addr]
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		err := h.ledger.Debit(ctx, addr, h.cfg.Wager, stakeRef("wager", room.ID, n))
		cancel()
		if err != nil {
			logger.Warn("Hub.join: wager debit failed", "address", addr, "room", room.ID, "error", err)
			return ErrWagerRejected
		}
		charged = true
	}

	if err := room.Join(c, false); err != nil {
		if charged {
			h.refund(room, []string{addr})
		}
		return err
	}
	if cur != nil {
		cur.Leave(c)
	}
	return nil
}

func (h *Hub) leave(c *Client) error {
	room := c.Room()
	if room == nil {
		return ErrNotInRoom
	}
	room.Leave(c)
	c.SendEvent(h.RoomList())
	return nil
}

// broadcastLobby - всем соединениям вне комнат
func (h *Hub) broadcastLobby(evt Event) {
	data, err := Encode(evt)
	if err != nil {
		logger.Error("Hub.broadcastLobby: marshal error", "type", evt.EventType(), "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Room() == nil {
			c.enqueue(data)
		}
	}
}

func (h *Hub) roomsLocked() []*Room {
	out := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out
}

func (h *Hub) roomsSnapshot() []*Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roomsLocked()
}

// Room ищет активную комнату по id
func (h *Hub) Room(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Rooms - снимки всех активных комнат в порядке слотов
func (h *Hub) Rooms() []RoomInfo {
	rooms := h.roomsSnapshot()
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	return out
}

// Slots - снимок таблицы слотов
func (h *Hub) Slots() []SlotInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SlotInfo, 0, len(h.slots))
	for _, s := range h.slots {
		info := SlotInfo{ID: s.id, State: s.state, RoomID: s.roomID}
		if !s.cooldownUntil.IsZero() {
			until := s.cooldownUntil
			info.CooldownUntil = &until
		}
		out = append(out, info)
	}
	return out
}

// Stats - агрегаты пула
func (h *Hub) Stats() PoolStats {
	rooms := h.Rooms()

	h.mu.RLock()
	st := PoolStats{Slots: len(h.slots), Connections: len(h.clients)}
	for _, s := range h.slots {
		switch s.state {
		case SlotActive:
			st.Active++
		case SlotCooldown:
			st.Cooldown++
		default:
			st.Empty++
		}
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		st.Players += r.Players
		if r.Status == game.StatusPlaying {
			st.Playing++
		}
	}
	return st
}

func (h *Hub) RoomList() RoomListEvent {
	return RoomListEvent{Rooms: h.Rooms(), Stats: h.Stats()}
}

func (h *Hub) Rules() game.Rules {
	return h.rules
}

func (h *Hub) Lifecycle() LifecycleConfig {
	return h.cfg
}
