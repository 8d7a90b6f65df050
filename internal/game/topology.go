package game

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"
)

// Location - помещение на карте корабля
type Location int

const (
	Cafeteria Location = iota
	Admin
	Storage
	Electrical
	MedBay
	UpperEngine
	LowerEngine
	Security
	Reactor

	locationCount
)

var locationNames = [...]string{
	Cafeteria:   "cafeteria",
	Admin:       "admin",
	Storage:     "storage",
	Electrical:  "electrical",
	MedBay:      "medbay",
	UpperEngine: "upper_engine",
	LowerEngine: "lower_engine",
	Security:    "security",
	Reactor:     "reactor",
}

func (l Location) Valid() bool {
	return l >= 0 && l < locationCount
}

func (l Location) String() string {
	if !l.Valid() {
		return fmt.Sprintf("location(%d)", int(l))
	}
	return locationNames[l]
}

func (l Location) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, ErrUnknownLocation
	}
	return []byte(locationNames[l]), nil
}

func (l *Location) UnmarshalText(b []byte) error {
	loc, err := ParseLocation(string(b))
	if err != nil {
		return err
	}
	*l = loc
	return nil
}

// ParseLocation принимает имя помещения в формате протокола
func ParseLocation(s string) (Location, error) {
	for i, name := range locationNames {
		if name == s {
			return Location(i), nil
		}
	}
	return 0, ErrUnknownLocation
}

// AllLocations возвращает все помещения в порядке объявления
func AllLocations() []Location {
	out := make([]Location, 0, locationCount)
	for l := Location(0); l < locationCount; l++ {
		out = append(out, l)
	}
	return out
}

// Topology - статический граф карты: проходы, вентиляция и камеры.
// Только данные и поиск, без состояния.
type Topology struct {
	walk    map[Location]mapset.Set[Location]
	vents   map[Location]mapset.Set[Location]
	cameras mapset.Set[Location]
}

// Edge - двусторонняя связь между помещениями
type Edge [2]Location

// NewTopology строит граф; каждое ребро добавляется в обе стороны
func NewTopology(walk, vents []Edge, cameras []Location) *Topology {
	t := &Topology{
		walk:    make(map[Location]mapset.Set[Location]),
		vents:   make(map[Location]mapset.Set[Location]),
		cameras: mapset.New[Location](),
	}
	for _, e := range walk {
		link(t.walk, e[0], e[1])
	}
	for _, e := range vents {
		link(t.vents, e[0], e[1])
	}
	for _, c := range cameras {
		t.cameras.Put(c)
	}
	return t
}

func link(graph map[Location]mapset.Set[Location], a, b Location) {
	for _, pair := range [][2]Location{{a, b}, {b, a}} {
		set, ok := graph[pair[0]]
		if !ok {
			set = mapset.New[Location]()
			graph[pair[0]] = set
		}
		set.Put(pair[1])
	}
}

var defaultTopology = NewTopology(
	[]Edge{
		{Cafeteria, Admin},
		{Cafeteria, MedBay},
		{Cafeteria, UpperEngine},
		{Cafeteria, Storage},
		{Admin, Storage},
		{Storage, Electrical},
		{Storage, LowerEngine},
		{Electrical, LowerEngine},
		{MedBay, UpperEngine},
		{UpperEngine, Reactor},
		{UpperEngine, Security},
		{LowerEngine, Reactor},
		{LowerEngine, Security},
		{Security, Reactor},
	},
	[]Edge{
		{Cafeteria, Admin},
		{MedBay, Electrical},
		{Electrical, Security},
		{Reactor, UpperEngine},
		{Reactor, LowerEngine},
	},
	[]Location{Cafeteria, Admin, Storage, MedBay, UpperEngine, LowerEngine},
)

// DefaultTopology возвращает стандартную карту; граф неизменяемый и общий для всех комнат
func DefaultTopology() *Topology {
	return defaultTopology
}

// IsAdjacent - есть ли проход между помещениями
func (t *Topology) IsAdjacent(from, to Location) bool {
	set, ok := t.walk[from]
	return ok && set.Has(to)
}

// Adjacent возвращает соседей по проходам
func (t *Topology) Adjacent(from Location) []Location {
	return sorted(t.walk[from])
}

// VentExits возвращает помещения, достижимые из вентиляции from
func (t *Topology) VentExits(from Location) []Location {
	return sorted(t.vents[from])
}

// HasVent - есть ли в помещении вентиляция
func (t *Topology) HasVent(l Location) bool {
	set, ok := t.vents[l]
	return ok && set.Size() > 0
}

// IsObserved - видно ли помещение через камеры
func (t *Topology) IsObserved(l Location) bool {
	return t.cameras.Has(l)
}

// ObservedLocations - помещения под камерами
func (t *Topology) ObservedLocations() []Location {
	return sorted(t.cameras)
}

func sorted(set mapset.Set[Location]) []Location {
	out := make([]Location, 0, set.Size())
	for l := Location(0); l < locationCount; l++ {
		if set.Has(l) {
			out = append(out, l)
		}
	}
	return out
}
