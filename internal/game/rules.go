package game

import "time"

// Rules - настройки одной партии
type Rules struct {
	MinPlayers         int
	MaxPlayers         int
	ImpostorCount      int
	TasksPerPlayer     int
	KillCooldownRounds int
	EmergencyMeetings  int

	ActionCommitDuration time.Duration
	ActionRevealDuration time.Duration
	DiscussionDuration   time.Duration
	VotingDuration       time.Duration
	VoteResultDuration   time.Duration

	SabotageCooldown         time.Duration
	CriticalSabotageDuration time.Duration
}

// DefaultRules возвращает значения по умолчанию
func DefaultRules() Rules {
	return Rules{
		MinPlayers:               6,
		MaxPlayers:               10,
		ImpostorCount:            2,
		TasksPerPlayer:           3,
		KillCooldownRounds:       2,
		EmergencyMeetings:        1,
		ActionCommitDuration:     60 * time.Second,
		ActionRevealDuration:     3 * time.Second,
		DiscussionDuration:       30 * time.Second,
		VotingDuration:           30 * time.Second,
		VoteResultDuration:       5 * time.Second,
		SabotageCooldown:         30 * time.Second,
		CriticalSabotageDuration: 30 * time.Second,
	}
}

// ImpostorsFor - число предателей для состава: не больше players/3, но хотя бы один
func (r Rules) ImpostorsFor(players int) int {
	n := r.ImpostorCount
	if limit := players / 3; n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}
