package game

// Skip - голос "пропустить" в таблице голосов
const Skip = ""

// VoteTally - голоса одного раунда: голосующий -> цель или Skip
type VoteTally struct {
	votes map[string]string
}

func NewVoteTally() *VoteTally {
	return &VoteTally{votes: make(map[string]string)}
}

// Cast записывает голос; повторный голос перезаписывает предыдущий
func (t *VoteTally) Cast(voter, target string) {
	t.votes[voter] = target
}

func (t *VoteTally) Has(voter string) bool {
	_, ok := t.votes[voter]
	return ok
}

func (t *VoteTally) Len() int {
	return len(t.votes)
}

func (t *VoteTally) Clear() {
	t.votes = make(map[string]string)
}

// AllCast - проголосовал ли каждый из живых
func (t *VoteTally) AllCast(living []string) bool {
	for _, addr := range living {
		if !t.Has(addr) {
			return false
		}
	}
	return true
}

// Votes возвращает копию таблицы
func (t *VoteTally) Votes() map[string]string {
	out := make(map[string]string, len(t.votes))
	for k, v := range t.votes {
		out[k] = v
	}
	return out
}

// VoteOutcome - итог подсчета
type VoteOutcome struct {
	Counts  map[string]int `json:"counts"`
	Skips   int            `json:"skips"`
	Ejected string         `json:"ejected,omitempty"`
	Tie     bool           `json:"tie"`
}

// Tally считает голоса. Побеждает кандидат (включая пропуск) со строго
// наибольшим числом голосов; любая ничья среди лидеров - никого не выгоняем.
func (t *VoteTally) Tally() VoteOutcome {
	out := VoteOutcome{Counts: make(map[string]int)}
	for _, target := range t.votes {
		if target == Skip {
			out.Skips++
			continue
		}
		out.Counts[target]++
	}

	best, leaders, leader := out.Skips, 1, Skip
	if best == 0 {
		leaders = 0
	}
	for target, n := range out.Counts {
		switch {
		case n > best:
			best, leaders, leader = n, 1, target
		case n == best:
			leaders++
		}
	}

	if leaders > 1 {
		out.Tie = true
		return out
	}
	out.Ejected = leader
	return out
}
