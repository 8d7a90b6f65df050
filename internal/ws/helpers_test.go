package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"impostor_relay/internal/game"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const waitTimeout = 2 * time.Second

type fakeAuth struct{}

func (fakeAuth) Authenticate(address, token string) (string, error) {
	if token != "ok" || address == "" {
		return "", errors.New("bad token")
	}
	return address, nil
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Debit(ctx context.Context, address string, amount int64, ref string) error {
	return m.Called(ctx, address, amount, ref).Error(0)
}

func (m *mockLedger) Credit(ctx context.Context, address string, amount int64, ref string) error {
	return m.Called(ctx, address, amount, ref).Error(0)
}

// chanSink складывает итоги партий в канал
type chanSink struct {
	results chan game.GameResult
}

func newChanSink() *chanSink {
	return &chanSink{results: make(chan game.GameResult, 8)}
}

func (s *chanSink) RecordResult(_ context.Context, res game.GameResult) error {
	s.results <- res
	return nil
}

// testRules - короткая партия, фазы длинные, чтобы таймеры не мешали
func testRules() game.Rules {
	r := game.DefaultRules()
	r.MinPlayers = 4
	r.MaxPlayers = 8
	r.ImpostorCount = 1
	r.TasksPerPlayer = 1
	r.ActionCommitDuration = time.Hour
	r.ActionRevealDuration = time.Hour
	r.DiscussionDuration = time.Hour
	r.VotingDuration = time.Hour
	r.VoteResultDuration = time.Hour
	return r
}

func testLifecycle() LifecycleConfig {
	cfg := DefaultLifecycle()
	cfg.SlotCount = 1
	cfg.MinPopulationWait = time.Hour
	cfg.FillWait = time.Hour
	cfg.SlotCooldown = time.Hour
	cfg.ResultDisplay = time.Hour
	cfg.SinkTimeout = time.Second
	return cfg
}

func newTestHub(t *testing.T, cfg LifecycleConfig, rules game.Rules, opts ...HubOption) *Hub {
	t.Helper()
	h := NewHub(cfg, rules, fakeAuth{}, opts...)
	h.Start()
	t.Cleanup(h.Stop)
	return h
}

// newTestClient - клиент без сети: события читаются прямо из Send
func newTestClient(h *Hub) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		Send:    make(chan []byte, 1024),
		hub:     h,
		limiter: rate.NewLimiter(rate.Inf, 0),
		Done:    make(chan struct{}),
	}
	h.Register(c)
	return c
}

func send(t *testing.T, h *Hub, c *Client, typ string, data any) {
	t.Helper()
	env := map[string]any{"type": typ}
	if data != nil {
		env["data"] = data
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	h.Dispatch(c, raw)
}

// drain забирает все накопленные события
func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var env Envelope
			if json.Unmarshal(raw, &env) == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

// waitFor ждет событие нужного типа, пропуская остальные
func waitFor(t *testing.T, c *Client, typ string) Envelope {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case raw, ok := <-c.Send:
			require.True(t, ok, "send channel closed while waiting for %s", typ)
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			if env.Type == typ {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s event within %s", typ, waitTimeout)
			return Envelope{}
		}
	}
}

func types(envs []Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// seatPlayers подключает n игроков к первой комнате хаба
func seatPlayers(t *testing.T, h *Hub, n int) (*Room, []*Client) {
	t.Helper()
	rooms := h.Rooms()
	require.NotEmpty(t, rooms)
	room, ok := h.Room(rooms[0].ID)
	require.True(t, ok)

	clients := make([]*Client, 0, n)
	for i := 0; i < n; i++ {
		c := newTestClient(h)
		send(t, h, c, "authenticate", map[string]string{"address": fmt.Sprintf("addr-%d", i), "token": "ok"})
		send(t, h, c, "join_room", map[string]string{"room_id": room.ID})
		clients = append(clients, c)
	}
	return room, clients
}

func roomPhase(r *Room) game.Phase {
	return r.Info().Phase
}

// roles делит клиентов комнаты на предателей и экипаж
func roles(r *Room, clients []*Client) (impostors, crew []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range clients {
		if r.session.IsImpostor(c.Address()) {
			impostors = append(impostors, c)
		} else {
			crew = append(crew, c)
		}
	}
	return impostors, crew
}

func tasksOf(r *Room, c *Client) []game.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.TasksOf(c.Address())
}

func locationOf(r *Room, c *Client) game.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, _ := r.session.Player(c.Address())
	return p.Location
}

// walkTo ведет игрока кратчайшим путем по проходам
func walkTo(t *testing.T, h *Hub, r *Room, c *Client, to game.Location) {
	t.Helper()
	topo := game.DefaultTopology()
	from := locationOf(r, c)
	prev := map[game.Location]game.Location{from: from}
	queue := []game.Location{from}
	for len(queue) > 0 && func() bool { _, ok := prev[to]; return !ok }() {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range topo.Adjacent(cur) {
			if _, seen := prev[next]; !seen {
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	var path []game.Location
	for l := to; l != from; l = prev[l] {
		path = append([]game.Location{l}, path...)
	}
	for _, step := range path {
		send(t, h, c, "move", map[string]string{"to": step.String()})
	}
	require.Equal(t, to, locationOf(r, c))
}

// lockedCounter - потокобезопасный счетчик для колбэков таймеров
type lockedCounter struct {
	mu sync.Mutex
	n  int
}

func (c *lockedCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *lockedCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// manualClock - часы партии, которые тест двигает сам
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Now()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
