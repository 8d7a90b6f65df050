package ws

import (
	"impostor_relay/internal/game"
	"impostor_relay/internal/logger"
)

// lobbyStage - какой из таймеров лобби сейчас взведен
type lobbyStage int

const (
	stageNone lobbyStage = iota
	stageMinPopulation
	stageFillWait
)

func (s lobbyStage) String() string {
	switch s {
	case stageMinPopulation:
		return "min_population"
	case stageFillWait:
		return "fill_wait"
	}
	return "none"
}

// open взводит таймер минимального населения новой комнаты
func (r *Room) open() {
	r.mu.Lock()
	defer r.unlock()
	r.armMinPopulationLocked()
}

// LobbyStage - для HTTP зеркала и тестов
func (r *Room) LobbyStage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lobbyTimer.active() {
		return stageNone.String()
	}
	return r.lobbyStage.String()
}

func (r *Room) armMinPopulationLocked() {
	r.lobbyStage = stageMinPopulation
	r.arm(&r.lobbyTimer, r.cfg.MinPopulationWait, r.onMinPopulationLocked)
}

func (r *Room) armFillWaitLocked() {
	r.lobbyStage = stageFillWait
	r.arm(&r.lobbyTimer, r.cfg.FillWait, r.onFillWaitLocked)
}

// afterJoinLocked: полная комната стартует сразу, набранный минимум
// меняет таймер минимального населения на ожидание добора
func (r *Room) afterJoinLocked() {
	n := r.session.PlayerCount()
	switch {
	case n >= r.rules.MaxPlayers:
		logger.Info("Room.lobby: room is full, starting now", "room", r.ID)
		r.startLocked()
	case n >= r.rules.MinPlayers && r.lobbyStage != stageFillWait:
		logger.Info("Room.lobby: minimum reached, waiting for more players", "room", r.ID, "fill_wait", r.cfg.FillWait)
		r.armFillWaitLocked()
	}
}

// afterLeaveLocked возвращает таймер минимального населения,
// если состав упал ниже минимума
func (r *Room) afterLeaveLocked() {
	if r.session.Phase() != game.PhaseLobby {
		return
	}
	if r.session.PlayerCount() < r.rules.MinPlayers && r.lobbyStage == stageFillWait {
		logger.Info("Room.lobby: dropped below minimum", "room", r.ID)
		r.armMinPopulationLocked()
	}
}

func (r *Room) onMinPopulationLocked() {
	if r.session.Phase() != game.PhaseLobby {
		return
	}
	logger.Info("Room.lobby: minimum population not reached, closing", "room", r.ID, "players", r.session.PlayerCount())
	r.closeLocked("not_enough_players")
}

func (r *Room) onFillWaitLocked() {
	if r.session.Phase() != game.PhaseLobby {
		return
	}
	if r.session.PlayerCount() < r.rules.MinPlayers {
		r.armMinPopulationLocked()
		return
	}
	logger.Info("Room.lobby: fill wait elapsed, starting", "room", r.ID, "players", r.session.PlayerCount())
	r.startLocked()
}
