package game

import "time"

type Role string

const (
	RoleCrewmate Role = "crewmate"
	RoleImpostor Role = "impostor"
)

func (r Role) Faction() Faction {
	if r == RoleImpostor {
		return FactionImpostors
	}
	return FactionCrewmates
}

// PlayerOutcome - итог партии для одного игрока
type PlayerOutcome struct {
	Address        string  `json:"address"`
	Role           Role    `json:"role"`
	Alive          bool    `json:"alive"`
	Kills          int     `json:"kills"`
	TasksCompleted int     `json:"tasks_completed"`
	Won            bool    `json:"won"`
	Faction        Faction `json:"faction"`
}

// GameResult - то, что уходит во внешние приемники после конца партии
type GameResult struct {
	RoomID    string          `json:"room_id"`
	Winner    Faction         `json:"winner"`
	Reason    WinReason       `json:"reason"`
	Rounds    int             `json:"rounds"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Players   []PlayerOutcome `json:"players"`
}

// Winners возвращает адреса победившей стороны
func (r GameResult) Winners() []string {
	var out []string
	for _, p := range r.Players {
		if p.Won {
			out = append(out, p.Address)
		}
	}
	return out
}
