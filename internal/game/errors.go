package game

import "errors"

// RuleError - отказ в действии с машинным кодом для клиента
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

func newRuleError(code, message string) *RuleError {
	return &RuleError{Code: code, Message: message}
}

// ошибки валидации действий (состояние комнаты при них не меняется)
var (
	ErrWrongPhase        = newRuleError("wrong_phase", "action is not allowed in the current phase")
	ErrNotPlayer         = newRuleError("not_player", "you are not a player in this room")
	ErrNotAlive          = newRuleError("not_alive", "dead players cannot do that")
	ErrNotImpostor       = newRuleError("not_impostor", "only impostors can do that")
	ErrUnknownLocation   = newRuleError("unknown_location", "unknown location")
	ErrInvalidMove       = newRuleError("invalid_move", "destination is not adjacent")
	ErrInvalidVent       = newRuleError("invalid_vent", "vents are not connected")
	ErrNoVentHere        = newRuleError("no_vent", "there is no vent here")
	ErrInVent            = newRuleError("in_vent", "leave the vent first")
	ErrNotInVent         = newRuleError("not_in_vent", "you are not in a vent")
	ErrInvalidTarget     = newRuleError("invalid_target", "invalid target")
	ErrTargetTooFar      = newRuleError("target_too_far", "target is not at your location")
	ErrKillCooldown      = newRuleError("kill_cooldown", "kill is on cooldown")
	ErrNoBody            = newRuleError("no_body", "there is no unreported body here")
	ErrMeetingLimit      = newRuleError("meeting_limit", "no emergency meetings left")
	ErrCriticalSabotage  = newRuleError("critical_sabotage", "cannot call a meeting during a critical sabotage")
	ErrSabotageActive    = newRuleError("sabotage_active", "a sabotage is already active")
	ErrSabotageCooldown  = newRuleError("sabotage_cooldown", "sabotage is on cooldown")
	ErrUnknownSabotage   = newRuleError("unknown_sabotage", "unknown sabotage type")
	ErrNoSabotage        = newRuleError("no_sabotage", "there is no active sabotage")
	ErrNotFixLocation    = newRuleError("not_fix_location", "the sabotage cannot be fixed here")
	ErrNoTaskHere        = newRuleError("no_task", "you have no task at this location")
	ErrImpostorTask      = newRuleError("impostor_task", "impostors have no real tasks")
	ErrNotAtSecurity     = newRuleError("not_at_security", "cameras can only be watched from security")
	ErrCamerasDown       = newRuleError("cameras_down", "cameras are down")
	ErrRoomFull          = newRuleError("room_full", "room is full")
	ErrAlreadyJoined     = newRuleError("already_joined", "address already in this room")
	ErrNotEnoughPlayers  = newRuleError("not_enough_players", "not enough players to start")
	ErrGameAlreadyActive = newRuleError("game_active", "game has already started")
)

// Code возвращает код ошибки правил или "internal" для прочих ошибок
func Code(err error) string {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	return "internal"
}
