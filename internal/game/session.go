package game

import (
	"math/rand"
	"sort"
	"time"

	"github.com/zyedidia/generic/mapset"
)

// PlayerState - игрок комнаты. Меняется только через проверенные действия.
type PlayerState struct {
	Address        string   `json:"address"`
	ColorID        int      `json:"color_id"`
	Location       Location `json:"location"`
	IsAlive        bool     `json:"is_alive"`
	TasksCompleted int      `json:"tasks_completed"`
	TotalTasks     int      `json:"total_tasks"`
	HasVoted       bool     `json:"has_voted"`
	InVent         bool     `json:"-"`
	Watching       bool     `json:"-"`

	meetingsUsed int
	kills        int
}

// DeadBody - тело после убийства; Reported меняется ровно один раз
type DeadBody struct {
	Victim   string   `json:"victim"`
	Location Location `json:"location"`
	Round    int      `json:"round"`
	Reported bool     `json:"reported"`
}

// Meeting - результат репорта или экстренного собрания
type Meeting struct {
	Caller    string         `json:"caller"`
	Body      *DeadBody      `json:"body,omitempty"`
	Emergency bool           `json:"emergency"`
	Cleared   *SabotageState `json:"-"`
}

// RoundSummary рассылается в ActionReveal
type RoundSummary struct {
	Round        int `json:"round"`
	Alive        int `json:"alive"`
	Dead         int `json:"dead"`
	TaskProgress int `json:"task_progress"`
}

// CameraEntry - кто виден на камерах
type CameraEntry struct {
	Address  string   `json:"address"`
	Location Location `json:"location"`
}

// ChatScope - кому доставлять сообщение чата
type ChatScope int

const (
	ChatEveryone ChatScope = iota
	ChatGhosts
)

type Option func(*Session)

// WithClock подменяет часы (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

func WithTopology(t *Topology) Option {
	return func(s *Session) { s.topo = t }
}

// Session - состояние одной партии. Не потокобезопасна: все вызовы
// выполняются под блокировкой владеющей комнаты.
type Session struct {
	ID    string
	rules Rules
	topo  *Topology
	now   func() time.Time
	rng   *rand.Rand

	phase     Phase
	round     int
	deadline  time.Time
	createdAt time.Time
	startedAt time.Time

	players    []*PlayerState
	byAddr     map[string]*PlayerState
	everJoined int

	impostors    mapset.Set[string]
	tasks        map[string]mapset.Set[Location]
	requiredTask int
	doneTasks    int

	bodies       []*DeadBody
	killCooldown map[string]int
	votes        *VoteTally
	sabotage     *SabotageTracker
	result       *WinResult
}

func NewSession(id string, rules Rules, opts ...Option) *Session {
	s := &Session{
		ID:           id,
		rules:        rules,
		topo:         DefaultTopology(),
		now:          time.Now,
		phase:        PhaseLobby,
		byAddr:       make(map[string]*PlayerState),
		impostors:    mapset.New[string](),
		tasks:        make(map[string]mapset.Set[Location]),
		killCooldown: make(map[string]int),
		votes:        NewVoteTally(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.now().UnixNano()))
	}
	s.createdAt = s.now()
	s.sabotage = NewSabotageTracker(rules.SabotageCooldown, rules.CriticalSabotageDuration)
	return s
}

func (s *Session) Rules() Rules             { return s.rules }
func (s *Session) Topology() *Topology      { return s.topo }
func (s *Session) Phase() Phase             { return s.phase }
func (s *Session) Round() int               { return s.round }
func (s *Session) Deadline() time.Time      { return s.deadline }
func (s *Session) CreatedAt() time.Time     { return s.createdAt }
func (s *Session) Result() *WinResult       { return s.result }
func (s *Session) Sabotage() *SabotageState { return s.sabotage.Active() }
func (s *Session) PlayerCount() int         { return len(s.players) }
func (s *Session) EverJoined() int          { return s.everJoined }

func (s *Session) Player(addr string) (*PlayerState, bool) {
	p, ok := s.byAddr[addr]
	return p, ok
}

// Players возвращает копии в порядке входа
func (s *Session) Players() []PlayerState {
	out := make([]PlayerState, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

func (s *Session) IsImpostor(addr string) bool {
	return s.impostors.Has(addr)
}

// Impostors - отсортированный список предателей
func (s *Session) Impostors() []string {
	out := make([]string, 0, s.impostors.Size())
	s.impostors.Each(func(a string) { out = append(out, a) })
	sort.Strings(out)
	return out
}

func (s *Session) RoleOf(addr string) Role {
	if s.impostors.Has(addr) {
		return RoleImpostor
	}
	return RoleCrewmate
}

// TasksOf - незавершенные задания игрока
func (s *Session) TasksOf(addr string) []Location {
	set, ok := s.tasks[addr]
	if !ok {
		return nil
	}
	return sorted(set)
}

// Living - адреса живых игроков в порядке входа
func (s *Session) Living() []string {
	var out []string
	for _, p := range s.players {
		if p.IsAlive {
			out = append(out, p.Address)
		}
	}
	return out
}

func (s *Session) transition(to Phase, d time.Duration) error {
	if !s.phase.CanTransitionTo(to) {
		return ErrWrongPhase
	}
	s.phase = to
	if d > 0 {
		s.deadline = s.now().Add(d)
	} else {
		s.deadline = time.Time{}
	}
	return nil
}

// AddPlayer сажает игрока в лобби и выдает свободный цвет
func (s *Session) AddPlayer(addr string) (*PlayerState, error) {
	if s.phase != PhaseLobby {
		return nil, ErrGameAlreadyActive
	}
	if _, ok := s.byAddr[addr]; ok {
		return nil, ErrAlreadyJoined
	}
	if len(s.players) >= s.rules.MaxPlayers {
		return nil, ErrRoomFull
	}
	p := &PlayerState{
		Address:  addr,
		ColorID:  s.freeColor(),
		Location: Cafeteria,
		IsAlive:  true,
	}
	s.players = append(s.players, p)
	s.byAddr[addr] = p
	s.everJoined++
	return p, nil
}

func (s *Session) freeColor() int {
	used := mapset.New[int]()
	for _, p := range s.players {
		used.Put(p.ColorID)
	}
	for c := 0; ; c++ {
		if !used.Has(c) {
			return c
		}
	}
}

// RemovePlayer освобождает место только в лобби. Во время игры игрок
// остается в составе: отключение не равно сдаче.
func (s *Session) RemovePlayer(addr string) bool {
	if s.phase != PhaseLobby {
		return false
	}
	if _, ok := s.byAddr[addr]; !ok {
		return false
	}
	delete(s.byAddr, addr)
	for i, p := range s.players {
		if p.Address == addr {
			s.players = append(s.players[:i], s.players[i+1:]...)
			break
		}
	}
	return true
}

// Start раздает роли и задания. После него комната вызывает BeginRound.
func (s *Session) Start() error {
	if s.phase != PhaseLobby {
		return ErrGameAlreadyActive
	}
	if len(s.players) < s.rules.MinPlayers {
		return ErrNotEnoughPlayers
	}
	if err := s.transition(PhaseStarting, 0); err != nil {
		return err
	}
	s.startedAt = s.now()

	n := s.rules.ImpostorsFor(len(s.players))
	for i, idx := range s.rng.Perm(len(s.players)) {
		if i >= n {
			break
		}
		s.impostors.Put(s.players[idx].Address)
	}

	all := AllLocations()
	for _, p := range s.players {
		if s.impostors.Has(p.Address) {
			continue
		}
		set := mapset.New[Location]()
		for _, idx := range s.rng.Perm(len(all)) {
			if set.Size() >= s.rules.TasksPerPlayer {
				break
			}
			set.Put(all[idx])
		}
		s.tasks[p.Address] = set
		p.TotalTasks = set.Size()
		s.requiredTask += set.Size()
	}
	return nil
}

// BeginRound переводит в ActionCommit и открывает новый раунд
func (s *Session) BeginRound() error {
	if err := s.transition(PhaseActionCommit, s.rules.ActionCommitDuration); err != nil {
		return err
	}
	s.round++
	s.clearVotes()
	return nil
}

// RevealRound закрывает раунд, в котором не было собрания
func (s *Session) RevealRound() (RoundSummary, error) {
	if err := s.transition(PhaseActionReveal, s.rules.ActionRevealDuration); err != nil {
		return RoundSummary{}, err
	}
	sum := RoundSummary{Round: s.round, TaskProgress: s.TaskProgress()}
	for _, p := range s.players {
		if p.IsAlive {
			sum.Alive++
		} else {
			sum.Dead++
		}
	}
	return sum, nil
}

func (s *Session) clearVotes() {
	s.votes.Clear()
	for _, p := range s.players {
		p.HasVoted = false
	}
}

// actor проверяет, что игрок есть в составе и фаза совпадает
func (s *Session) actor(addr string, phase Phase) (*PlayerState, error) {
	p, ok := s.byAddr[addr]
	if !ok {
		return nil, ErrNotPlayer
	}
	if s.phase != phase {
		return nil, ErrWrongPhase
	}
	return p, nil
}

// livingActor - то же, плюс жив и не в вентиляции
func (s *Session) livingActor(addr string) (*PlayerState, error) {
	p, err := s.actor(addr, PhaseActionCommit)
	if err != nil {
		return nil, err
	}
	if !p.IsAlive {
		return nil, ErrNotAlive
	}
	if p.InVent {
		return nil, ErrInVent
	}
	return p, nil
}

// Move - обычное перемещение. Возвращает исходное помещение.
func (s *Session) Move(addr string, to Location) (Location, error) {
	p, err := s.actor(addr, PhaseActionCommit)
	if err != nil {
		return 0, err
	}
	if p.IsAlive && p.InVent {
		return 0, ErrInVent
	}
	from := p.Location
	if err := s.topo.ValidateMovement(p, s.impostors.Has(addr), from, to, false); err != nil {
		return 0, err
	}
	p.Location = to
	if to != Security {
		p.Watching = false
	}
	return from, nil
}

func (s *Session) EnterVent(addr string) error {
	p, err := s.livingActor(addr)
	if err != nil {
		return err
	}
	if !s.impostors.Has(addr) {
		return ErrNotImpostor
	}
	if !s.topo.HasVent(p.Location) {
		return ErrNoVentHere
	}
	p.InVent = true
	p.Watching = false
	return nil
}

// VentMove перемещает предателя внутри вентиляции
func (s *Session) VentMove(addr string, to Location) (Location, error) {
	p, err := s.actor(addr, PhaseActionCommit)
	if err != nil {
		return 0, err
	}
	if !p.IsAlive {
		return 0, ErrNotAlive
	}
	if !p.InVent {
		return 0, ErrNotInVent
	}
	from := p.Location
	if err := s.topo.ValidateMovement(p, s.impostors.Has(addr), from, to, true); err != nil {
		return 0, err
	}
	p.Location = to
	return from, nil
}

func (s *Session) ExitVent(addr string) error {
	p, err := s.actor(addr, PhaseActionCommit)
	if err != nil {
		return err
	}
	if !p.InVent {
		return ErrNotInVent
	}
	p.InVent = false
	return nil
}

// Kill - убийство членом экипажа в том же помещении с учетом кулдауна в раундах
func (s *Session) Kill(killer, target string) (*DeadBody, error) {
	k, err := s.livingActor(killer)
	if err != nil {
		return nil, err
	}
	if !s.impostors.Has(killer) {
		return nil, ErrNotImpostor
	}
	t, ok := s.byAddr[target]
	if !ok || target == killer || !t.IsAlive || s.impostors.Has(target) {
		return nil, ErrInvalidTarget
	}
	if t.Location != k.Location {
		return nil, ErrTargetTooFar
	}
	if last, ok := s.killCooldown[killer]; ok && s.round-last < s.rules.KillCooldownRounds {
		return nil, ErrKillCooldown
	}

	t.IsAlive = false
	t.Watching = false
	k.kills++
	s.killCooldown[killer] = s.round
	body := &DeadBody{Victim: target, Location: t.Location, Round: s.round}
	s.bodies = append(s.bodies, body)
	return body, nil
}

// Bodies - копии тел в порядке появления
func (s *Session) Bodies() []DeadBody {
	out := make([]DeadBody, 0, len(s.bodies))
	for _, b := range s.bodies {
		out = append(out, *b)
	}
	return out
}

// Report - репорт тела в текущем помещении, начинает обсуждение
func (s *Session) Report(addr string) (Meeting, error) {
	p, err := s.livingActor(addr)
	if err != nil {
		return Meeting{}, err
	}
	var body *DeadBody
	for _, b := range s.bodies {
		if !b.Reported && b.Location == p.Location {
			body = b
			break
		}
	}
	if body == nil {
		return Meeting{}, ErrNoBody
	}
	m := Meeting{Caller: addr}
	if err := s.beginMeeting(&m); err != nil {
		return Meeting{}, err
	}
	copied := *body
	m.Body = &copied
	return m, nil
}

// CallMeeting - экстренное собрание; запрещено во время критического саботажа
func (s *Session) CallMeeting(addr string) (Meeting, error) {
	p, err := s.livingActor(addr)
	if err != nil {
		return Meeting{}, err
	}
	if p.meetingsUsed >= s.rules.EmergencyMeetings {
		return Meeting{}, ErrMeetingLimit
	}
	if st := s.sabotage.Active(); st != nil && st.Spec.Critical {
		return Meeting{}, ErrCriticalSabotage
	}
	m := Meeting{Caller: addr, Emergency: true}
	if err := s.beginMeeting(&m); err != nil {
		return Meeting{}, err
	}
	p.meetingsUsed++
	return m, nil
}

// beginMeeting: все тела считаются найденными, саботаж снимается, камеры гаснут
func (s *Session) beginMeeting(m *Meeting) error {
	if err := s.transition(PhaseDiscussion, s.rules.DiscussionDuration); err != nil {
		return err
	}
	for _, b := range s.bodies {
		b.Reported = true
	}
	for _, p := range s.players {
		p.InVent = false
		p.Watching = false
	}
	m.Cleared = s.sabotage.Clear(s.now())
	return nil
}

// BeginVoting открывает голосование и очищает голоса
func (s *Session) BeginVoting() error {
	if err := s.transition(PhaseVoting, s.rules.VotingDuration); err != nil {
		return err
	}
	s.clearVotes()
	return nil
}

// CastVote принимает голос живого игрока за живую цель или Skip.
// Возвращает true, когда проголосовали все живые.
func (s *Session) CastVote(voter, target string) (bool, error) {
	p, err := s.actor(voter, PhaseVoting)
	if err != nil {
		return false, err
	}
	if !p.IsAlive {
		return false, ErrNotAlive
	}
	if target != Skip {
		t, ok := s.byAddr[target]
		if !ok || !t.IsAlive {
			return false, ErrInvalidTarget
		}
	}
	s.votes.Cast(voter, target)
	p.HasVoted = true
	return s.AllVotesCast(), nil
}

func (s *Session) AllVotesCast() bool {
	return s.votes.AllCast(s.Living())
}

// ResolveVotes подсчитывает голоса и выгоняет победителя голосования
func (s *Session) ResolveVotes() (VoteOutcome, error) {
	if err := s.transition(PhaseVoteResult, s.rules.VoteResultDuration); err != nil {
		return VoteOutcome{}, err
	}
	out := s.votes.Tally()
	if out.Ejected != "" {
		if p, ok := s.byAddr[out.Ejected]; ok {
			p.IsAlive = false
		}
	}
	return out, nil
}

// CompleteTask - задание в текущем помещении. Призраки экипажа тоже могут.
func (s *Session) CompleteTask(addr string, at Location) (int, error) {
	p, err := s.actor(addr, PhaseActionCommit)
	if err != nil {
		return 0, err
	}
	if s.impostors.Has(addr) {
		return 0, ErrImpostorTask
	}
	if p.InVent {
		return 0, ErrInVent
	}
	set, ok := s.tasks[addr]
	if !ok || at != p.Location || !set.Has(at) {
		return 0, ErrNoTaskHere
	}
	set.Remove(at)
	p.TasksCompleted++
	s.doneTasks++
	return s.TaskProgress(), nil
}

// TaskProgress - общий прогресс заданий в процентах
func (s *Session) TaskProgress() int {
	if s.requiredTask == 0 {
		return 0
	}
	return s.doneTasks * 100 / s.requiredTask
}

func (s *Session) StartCameras(addr string) error {
	p, err := s.livingActor(addr)
	if err != nil {
		return err
	}
	if p.Location != Security {
		return ErrNotAtSecurity
	}
	if st := s.sabotage.Active(); st != nil && st.Spec.Type == SabotageComms {
		return ErrCamerasDown
	}
	p.Watching = true
	return nil
}

func (s *Session) StopCameras(addr string) error {
	p, ok := s.byAddr[addr]
	if !ok {
		return ErrNotPlayer
	}
	p.Watching = false
	return nil
}

// Watchers - кто сейчас смотрит камеры
func (s *Session) Watchers() []string {
	var out []string
	for _, p := range s.players {
		if p.Watching {
			out = append(out, p.Address)
		}
	}
	return out
}

func (s *Session) CamerasInUse() bool {
	return len(s.Watchers()) > 0
}

// CameraFeed - живые игроки вне вентиляции в помещениях под камерами
func (s *Session) CameraFeed() []CameraEntry {
	var out []CameraEntry
	for _, p := range s.players {
		if p.IsAlive && !p.InVent && s.topo.IsObserved(p.Location) {
			out = append(out, CameraEntry{Address: p.Address, Location: p.Location})
		}
	}
	return out
}

// StartSabotage - саботаж может запустить и мертвый предатель
func (s *Session) StartSabotage(addr string, typ SabotageType) (*SabotageState, error) {
	if _, err := s.actor(addr, PhaseActionCommit); err != nil {
		return nil, err
	}
	st, err := s.sabotage.Start(typ, s.impostors.Has(addr), s.now())
	if err != nil {
		return nil, err
	}
	if typ == SabotageComms {
		for _, p := range s.players {
			p.Watching = false
		}
	}
	return st, nil
}

// FixSabotage - попытка починки в текущем помещении
func (s *Session) FixSabotage(addr string) (fixed bool, fixers int, err error) {
	p, err := s.livingActor(addr)
	if err != nil {
		return false, 0, err
	}
	active := s.sabotage.Active()
	fixed, err = s.sabotage.Fix(addr, p.Location, s.now())
	if err != nil {
		return false, 0, err
	}
	if active != nil {
		fixers = active.Fixers()
	}
	return fixed, fixers, nil
}

// FailSabotage снимает просроченный критический саботаж. Вызывается
// таймером крайнего срока и на границе раунда; false, если саботаж уже
// починен или снят собранием.
func (s *Session) FailSabotage() (*SabotageState, bool) {
	st := s.sabotage.Active()
	if st == nil || !st.Spec.Critical || s.phase == PhaseEnded || s.phase.IsMeeting() {
		return nil, false
	}
	s.sabotage.Clear(s.now())
	return st, true
}

// SabotageExpired - крайний срок критического саботажа уже прошел
func (s *Session) SabotageExpired() bool {
	return s.sabotage.Expired(s.now())
}

// CheckWin считает живых и задания и вызывает EvaluateWin
func (s *Session) CheckWin() (WinResult, bool) {
	in := WinInput{CompletedTasks: s.doneTasks, RequiredTasks: s.requiredTask}
	for _, p := range s.players {
		if !p.IsAlive {
			continue
		}
		if s.impostors.Has(p.Address) {
			in.AliveImpostors++
		} else {
			in.AliveCrewmates++
		}
	}
	return EvaluateWin(in)
}

// End фиксирует итог; повторный вызов ничего не меняет
func (s *Session) End(res WinResult) bool {
	if s.phase == PhaseEnded {
		return false
	}
	s.phase = PhaseEnded
	s.deadline = time.Time{}
	s.sabotage.Clear(s.now())
	for _, p := range s.players {
		p.Watching = false
		p.InVent = false
	}
	s.result = &res
	return true
}

// ChatScope решает, кому доставить сообщение игрока
func (s *Session) ChatScope(addr string) (ChatScope, error) {
	p, ok := s.byAddr[addr]
	if !ok {
		return 0, ErrNotPlayer
	}
	if !p.IsAlive {
		return ChatGhosts, nil
	}
	if !s.phase.AllowsChat() {
		return 0, ErrWrongPhase
	}
	return ChatEveryone, nil
}

// Outcome собирает итог для приемников результатов
func (s *Session) Outcome() GameResult {
	res := GameResult{
		RoomID:    s.ID,
		Rounds:    s.round,
		StartedAt: s.startedAt,
		EndedAt:   s.now(),
	}
	if s.result != nil {
		res.Winner = s.result.Winner
		res.Reason = s.result.Reason
	}
	for _, p := range s.players {
		role := s.RoleOf(p.Address)
		res.Players = append(res.Players, PlayerOutcome{
			Address:        p.Address,
			Role:           role,
			Faction:        role.Faction(),
			Alive:          p.IsAlive,
			Kills:          p.kills,
			TasksCompleted: p.TasksCompleted,
			Won:            res.Winner != FactionNone && role.Faction() == res.Winner,
		})
	}
	return res
}
