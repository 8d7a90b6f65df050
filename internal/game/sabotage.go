package game

import (
	"time"

	"github.com/zyedidia/generic/mapset"
)

type SabotageType string

const (
	SabotageLights  SabotageType = "lights"
	SabotageComms   SabotageType = "comms"
	SabotageOxygen  SabotageType = "oxygen"
	SabotageReactor SabotageType = "reactor"
)

// SabotageSpec описывает, где и сколькими игроками чинится саботаж
type SabotageSpec struct {
	Type           SabotageType
	Critical       bool
	FixLocations   []Location
	FixersRequired int
}

var sabotageSpecs = map[SabotageType]SabotageSpec{
	SabotageLights:  {Type: SabotageLights, FixLocations: []Location{Electrical}, FixersRequired: 1},
	SabotageComms:   {Type: SabotageComms, FixLocations: []Location{Admin}, FixersRequired: 1},
	SabotageOxygen:  {Type: SabotageOxygen, Critical: true, FixLocations: []Location{Admin, Cafeteria}, FixersRequired: 2},
	SabotageReactor: {Type: SabotageReactor, Critical: true, FixLocations: []Location{Reactor}, FixersRequired: 2},
}

// LookupSabotage возвращает описание типа саботажа
func LookupSabotage(t SabotageType) (SabotageSpec, bool) {
	spec, ok := sabotageSpecs[t]
	return spec, ok
}

func (s SabotageSpec) fixableAt(l Location) bool {
	for _, fl := range s.FixLocations {
		if fl == l {
			return true
		}
	}
	return false
}

// SabotageState - активный саботаж комнаты
type SabotageState struct {
	Spec      SabotageSpec
	StartTime time.Time
	// Deadline задан только для критических типов
	Deadline *time.Time
	fixers   map[Location]mapset.Set[string]
}

// Fixers - число различных игроков, приложивших руку к починке
func (s *SabotageState) Fixers() int {
	seen := mapset.New[string]()
	for _, set := range s.fixers {
		set.Each(func(addr string) { seen.Put(addr) })
	}
	return seen.Size()
}

func (s *SabotageState) addFixer(addr string, l Location) {
	set, ok := s.fixers[l]
	if !ok {
		set = mapset.New[string]()
		s.fixers[l] = set
	}
	set.Put(addr)
}

// SabotageTracker держит не более одного саботажа на комнату
type SabotageTracker struct {
	active       *SabotageState
	lastResolved time.Time
	cooldown     time.Duration
	critical     time.Duration
}

func NewSabotageTracker(cooldown, criticalDuration time.Duration) *SabotageTracker {
	return &SabotageTracker{cooldown: cooldown, critical: criticalDuration}
}

// Active возвращает текущий саботаж или nil
func (t *SabotageTracker) Active() *SabotageState {
	return t.active
}

// CanSabotage: предатель, нет активного саботажа, кулдаун с последнего завершения истек
func (t *SabotageTracker) CanSabotage(impostor bool, now time.Time) error {
	if !impostor {
		return ErrNotImpostor
	}
	if t.active != nil {
		return ErrSabotageActive
	}
	if !t.lastResolved.IsZero() && now.Sub(t.lastResolved) < t.cooldown {
		return ErrSabotageCooldown
	}
	return nil
}

// Start запускает саботаж; для критических типов выставляет крайний срок
func (t *SabotageTracker) Start(typ SabotageType, impostor bool, now time.Time) (*SabotageState, error) {
	spec, ok := sabotageSpecs[typ]
	if !ok {
		return nil, ErrUnknownSabotage
	}
	if err := t.CanSabotage(impostor, now); err != nil {
		return nil, err
	}
	st := &SabotageState{
		Spec:      spec,
		StartTime: now,
		fixers:    make(map[Location]mapset.Set[string]),
	}
	if spec.Critical {
		deadline := now.Add(t.critical)
		st.Deadline = &deadline
	}
	t.active = st
	return st, nil
}

// Fix регистрирует попытку починки. Повторная попытка того же игрока
// (в том же или другом месте) второй раз не считается.
func (t *SabotageTracker) Fix(addr string, l Location, now time.Time) (fixed bool, err error) {
	if t.active == nil {
		return false, ErrNoSabotage
	}
	if !t.active.Spec.fixableAt(l) {
		return false, ErrNotFixLocation
	}
	t.active.addFixer(addr, l)
	if t.active.Fixers() < t.active.Spec.FixersRequired {
		return false, nil
	}
	t.resolve(now)
	return true, nil
}

// Expired - прошел ли крайний срок критического саботажа
func (t *SabotageTracker) Expired(now time.Time) bool {
	return t.active != nil && t.active.Deadline != nil && !now.Before(*t.active.Deadline)
}

// Clear принудительно снимает саботаж (собрание, конец игры, таймаут)
func (t *SabotageTracker) Clear(now time.Time) *SabotageState {
	st := t.active
	if st != nil {
		t.resolve(now)
	}
	return st
}

func (t *SabotageTracker) resolve(now time.Time) {
	t.active = nil
	t.lastResolved = now
}
