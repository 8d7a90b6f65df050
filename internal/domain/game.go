package domain

import "time"

// Сохраненная партия
type GameRecord struct {
	ID        int64     `db:"id" json:"id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	Winner    string    `db:"winner" json:"winner"`
	Reason    string    `db:"reason" json:"reason"`
	Rounds    int       `db:"rounds" json:"rounds"`
	Players   int       `db:"players" json:"players"`
	Pot       int64     `db:"pot" json:"pot"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
	EndedAt   time.Time `db:"ended_at" json:"ended_at"`

	Participants []GameParticipant `json:"participants,omitempty"`
}

// Участник партии
type GameParticipant struct {
	Address        string `db:"address" json:"address"`
	Role           string `db:"role" json:"role"`
	Alive          bool   `db:"alive" json:"alive"`
	Won            bool   `db:"won" json:"won"`
	Kills          int    `db:"kills" json:"kills"`
	TasksCompleted int    `db:"tasks_completed" json:"tasks_completed"`
	Payout         int64  `db:"payout" json:"payout"`
}

// Агрегированная статистика адреса
type PlayerStats struct {
	Address       string `db:"address" json:"address"`
	Games         int    `db:"games" json:"games"`
	Wins          int    `db:"wins" json:"wins"`
	ImpostorGames int    `db:"impostor_games" json:"impostor_games"`
	ImpostorWins  int    `db:"impostor_wins" json:"impostor_wins"`
	Kills         int    `db:"kills" json:"kills"`
	Tasks         int    `db:"tasks" json:"tasks"`
	Earned        int64  `db:"earned" json:"earned"`
}

// Строка таблицы лидеров
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	Wins    int    `json:"wins"`
	Games   int    `json:"games"`
}
