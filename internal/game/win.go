package game

type Faction string

const (
	FactionNone      Faction = ""
	FactionCrewmates Faction = "crewmates"
	FactionImpostors Faction = "impostors"
)

type WinReason string

const (
	ReasonKills   WinReason = "kills"
	ReasonVotes   WinReason = "votes"
	ReasonTasks   WinReason = "tasks"
	ReasonAborted WinReason = "aborted"
)

// WinInput - все, что нужно для проверки победы
type WinInput struct {
	AliveImpostors int
	AliveCrewmates int
	CompletedTasks int
	RequiredTasks  int
}

type WinResult struct {
	Winner Faction   `json:"winner"`
	Reason WinReason `json:"reason"`
}

// EvaluateWin - чистая функция. Порядок проверки фиксирован:
// kills, затем votes, затем tasks; при нескольких выполненных условиях берется первое.
func EvaluateWin(in WinInput) (WinResult, bool) {
	if in.AliveCrewmates > 0 && in.AliveImpostors >= in.AliveCrewmates {
		return WinResult{Winner: FactionImpostors, Reason: ReasonKills}, true
	}
	if in.AliveImpostors == 0 {
		return WinResult{Winner: FactionCrewmates, Reason: ReasonVotes}, true
	}
	if in.RequiredTasks > 0 && in.CompletedTasks >= in.RequiredTasks {
		return WinResult{Winner: FactionCrewmates, Reason: ReasonTasks}, true
	}
	return WinResult{}, false
}
