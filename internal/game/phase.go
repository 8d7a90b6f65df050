package game

type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhaseStarting     Phase = "starting"
	PhaseActionCommit Phase = "action_commit"
	PhaseActionReveal Phase = "action_reveal"
	PhaseDiscussion   Phase = "discussion"
	PhaseVoting       Phase = "voting"
	PhaseVoteResult   Phase = "vote_result"
	PhaseEnded        Phase = "ended"
)

// допустимые переходы; в Ended можно попасть из любой фазы (победа, саботаж, abort)
var phaseTransitions = map[Phase][]Phase{
	PhaseLobby:        {PhaseStarting},
	PhaseStarting:     {PhaseActionCommit},
	PhaseActionCommit: {PhaseActionReveal, PhaseDiscussion},
	PhaseActionReveal: {PhaseActionCommit},
	PhaseDiscussion:   {PhaseVoting},
	PhaseVoting:       {PhaseVoteResult},
	PhaseVoteResult:   {PhaseActionCommit},
}

func (p Phase) CanTransitionTo(next Phase) bool {
	if p == PhaseEnded {
		return false
	}
	if next == PhaseEnded {
		return true
	}
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsMeeting - обсуждение или голосование
func (p Phase) IsMeeting() bool {
	return p == PhaseDiscussion || p == PhaseVoting || p == PhaseVoteResult
}

// AllowsChat - фазы, в которых живые могут писать в общий чат
func (p Phase) AllowsChat() bool {
	switch p {
	case PhaseLobby, PhaseDiscussion, PhaseVoting, PhaseEnded:
		return true
	}
	return false
}

type RoomStatus string

const (
	StatusLobby   RoomStatus = "lobby"
	StatusPlaying RoomStatus = "playing"
	StatusEnded   RoomStatus = "ended"
)

// Status сворачивает фазу в статус комнаты для списка комнат
func (p Phase) Status() RoomStatus {
	switch p {
	case PhaseLobby:
		return StatusLobby
	case PhaseEnded:
		return StatusEnded
	}
	return StatusPlaying
}
