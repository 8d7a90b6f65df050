package ws

import (
	"encoding/json"
	"errors"
	"time"

	"impostor_relay/internal/game"
)

// Envelope - формат всех сообщений по websocket
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// протокольные ошибки
var (
	ErrBadMessage  = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Intent - входящее сообщение клиента. Набор закрыт: новые виды
// добавляются в DecodeIntent и в обработчики Hub/Room.
type Intent interface {
	Kind() string
	intent()
}

type (
	Authenticate struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	ListRooms struct{}
	JoinRoom  struct {
		RoomID string `json:"room_id"`
		As     string `json:"as"` // player | observer
	}
	LeaveRoom  struct{}
	MoveIntent struct {
		To game.Location `json:"to"`
	}
	ReportBody struct{}
	VoteIntent struct {
		Target *string `json:"target"`
	}
	CompleteTask struct {
		Location game.Location `json:"location"`
	}
	CamerasStart struct{}
	CamerasStop  struct{}
	VentEnter    struct{}
	VentExit     struct{}
	VentMove     struct {
		To game.Location `json:"to"`
	}
	KillIntent struct {
		Target string `json:"target"`
	}
	SabotageStart struct {
		Type game.SabotageType `json:"type"`
	}
	SabotageFix struct{}
	CallMeeting struct{}
	ChatIntent  struct {
		Text string `json:"text"`
	}
)

func (Authenticate) Kind() string  { return "authenticate" }
func (ListRooms) Kind() string     { return "list_rooms" }
func (JoinRoom) Kind() string      { return "join_room" }
func (LeaveRoom) Kind() string     { return "leave_room" }
func (MoveIntent) Kind() string    { return "move" }
func (ReportBody) Kind() string    { return "report_body" }
func (VoteIntent) Kind() string    { return "vote" }
func (CompleteTask) Kind() string  { return "complete_task" }
func (CamerasStart) Kind() string  { return "cameras_start" }
func (CamerasStop) Kind() string   { return "cameras_stop" }
func (VentEnter) Kind() string     { return "vent_enter" }
func (VentExit) Kind() string      { return "vent_exit" }
func (VentMove) Kind() string      { return "vent_move" }
func (KillIntent) Kind() string    { return "kill" }
func (SabotageStart) Kind() string { return "sabotage_start" }
func (SabotageFix) Kind() string   { return "sabotage_fix" }
func (CallMeeting) Kind() string   { return "emergency_meeting" }
func (ChatIntent) Kind() string    { return "chat" }

func (Authenticate) intent()  {}
func (ListRooms) intent()     {}
func (JoinRoom) intent()      {}
func (LeaveRoom) intent()     {}
func (MoveIntent) intent()    {}
func (ReportBody) intent()    {}
func (VoteIntent) intent()    {}
func (CompleteTask) intent()  {}
func (CamerasStart) intent()  {}
func (CamerasStop) intent()   {}
func (VentEnter) intent()     {}
func (VentExit) intent()      {}
func (VentMove) intent()      {}
func (KillIntent) intent()    {}
func (SabotageStart) intent() {}
func (SabotageFix) intent()   {}
func (CallMeeting) intent()   {}
func (ChatIntent) intent()    {}

// requiredField - поле данных, без которого намерение не имеет смысла.
// Нулевая локация - это cafeteria, поэтому отсутствие нельзя заменять нулем.
var requiredField = map[string]string{
	"move":           "to",
	"vent_move":      "to",
	"complete_task":  "location",
	"kill":           "target",
	"sabotage_start": "type",
}

// DecodeIntent разбирает конверт и его данные в конкретный тип
func DecodeIntent(raw []byte) (Intent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return nil, ErrBadMessage
	}

	var in Intent
	switch env.Type {
	case "authenticate":
		in = &Authenticate{}
	case "list_rooms":
		in = &ListRooms{}
	case "join_room":
		in = &JoinRoom{}
	case "leave_room":
		in = &LeaveRoom{}
	case "move":
		in = &MoveIntent{}
	case "report_body":
		in = &ReportBody{}
	case "vote":
		in = &VoteIntent{}
	case "complete_task":
		in = &CompleteTask{}
	case "cameras_start":
		in = &CamerasStart{}
	case "cameras_stop":
		in = &CamerasStop{}
	case "vent_enter":
		in = &VentEnter{}
	case "vent_exit":
		in = &VentExit{}
	case "vent_move":
		in = &VentMove{}
	case "kill":
		in = &KillIntent{}
	case "sabotage_start":
		in = &SabotageStart{}
	case "sabotage_fix":
		in = &SabotageFix{}
	case "emergency_meeting":
		in = &CallMeeting{}
	case "chat":
		in = &ChatIntent{}
	default:
		return nil, ErrUnknownType
	}

	if field, ok := requiredField[env.Type]; ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(env.Data, &fields); err != nil {
			return nil, ErrBadMessage
		}
		if v, ok := fields[field]; !ok || string(v) == "null" {
			return nil, ErrBadMessage
		}
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, in); err != nil {
			var re *game.RuleError
			if errors.As(err, &re) {
				return nil, re
			}
			return nil, ErrBadMessage
		}
	}
	return in, nil
}

// Event - исходящее событие сервера
type Event interface {
	EventType() string
}

// Encode упаковывает событие в конверт
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: evt.EventType(), Data: data})
}

// RoomInfo - краткое описание комнаты для списка и HTTP зеркала
type RoomInfo struct {
	ID         string          `json:"id"`
	SlotID     int             `json:"slot_id"`
	Status     game.RoomStatus `json:"status"`
	Phase      game.Phase      `json:"phase"`
	Round      int             `json:"round"`
	Players    int             `json:"players"`
	Observers  int             `json:"observers"`
	MinPlayers int             `json:"min_players"`
	MaxPlayers int             `json:"max_players"`
	Impostors  int             `json:"impostor_count"`
	Wager      int64           `json:"wager"`
	CreatedAt  time.Time       `json:"created_at"`
	Deadline   *time.Time      `json:"deadline,omitempty"`
}

// RoomDetail - полное публичное состояние (без ролей)
type RoomDetail struct {
	RoomInfo
	Roster   []game.PlayerState `json:"roster"`
	Sabotage *SabotageInfo      `json:"sabotage,omitempty"`
	Progress int                `json:"task_progress"`
}

type SabotageInfo struct {
	Type         game.SabotageType `json:"type"`
	Critical     bool              `json:"critical"`
	FixLocations []game.Location   `json:"fix_locations"`
	Required     int               `json:"fixers_required"`
	Fixers       int               `json:"fixers"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
}

func sabotageInfo(st *game.SabotageState) *SabotageInfo {
	if st == nil {
		return nil
	}
	return &SabotageInfo{
		Type:         st.Spec.Type,
		Critical:     st.Spec.Critical,
		FixLocations: st.Spec.FixLocations,
		Required:     st.Spec.FixersRequired,
		Fixers:       st.Fixers(),
		Deadline:     st.Deadline,
	}
}

// PoolStats - агрегаты по пулу слотов
type PoolStats struct {
	Slots       int `json:"slots"`
	Active      int `json:"active"`
	Cooldown    int `json:"cooldown"`
	Empty       int `json:"empty"`
	Playing     int `json:"playing"`
	Players     int `json:"players"`
	Connections int `json:"connections"`
}

type (
	WelcomeEvent struct {
		ConnectionID string `json:"connection_id"`
	}
	AuthenticatedEvent struct {
		Address string `json:"address"`
		RoomID  string `json:"room_id,omitempty"`
	}
	RoomListEvent struct {
		Rooms []RoomInfo `json:"rooms"`
		Stats PoolStats  `json:"stats"`
	}
	RoomCreatedEvent struct {
		Room RoomInfo `json:"room"`
	}
	RoomUpdatedEvent struct {
		Room RoomInfo `json:"room"`
	}
	RoomStateEvent struct {
		Room RoomDetail `json:"room"`
	}
	RoomClosedEvent struct {
		RoomID string `json:"room_id"`
		Reason string `json:"reason"`
	}
	PlayerJoinedEvent struct {
		Player game.PlayerState `json:"player"`
	}
	PlayerLeftEvent struct {
		Address string `json:"address"`
	}
	PlayerMovedEvent struct {
		Address string        `json:"address"`
		From    game.Location `json:"from"`
		To      game.Location `json:"to"`
	}
	KillOccurredEvent struct {
		Victim   string        `json:"victim"`
		Location game.Location `json:"location"`
	}
	PhaseChangedEvent struct {
		Phase    game.Phase `json:"phase"`
		Round    int        `json:"round"`
		Deadline *time.Time `json:"deadline,omitempty"`
	}
	RoleAssignedEvent struct {
		Role      game.Role `json:"role"`
		Impostors []string  `json:"impostors,omitempty"`
	}
	TasksAssignedEvent struct {
		Tasks []game.Location `json:"tasks"`
	}
	VoteCastEvent struct {
		Voter string `json:"voter"`
	}
	PlayerEjectedEvent struct {
		Address     string         `json:"address,omitempty"`
		WasImpostor bool           `json:"was_impostor"`
		Tie         bool           `json:"tie"`
		Counts      map[string]int `json:"counts"`
		Skips       int            `json:"skips"`
	}
	TaskCompletedEvent struct {
		Address     string        `json:"address"`
		Location    game.Location `json:"location"`
		ProgressPct int           `json:"progress_pct"`
	}
	BodyReportedEvent struct {
		Reporter string        `json:"reporter"`
		Victim   string        `json:"victim"`
		Location game.Location `json:"location"`
	}
	MeetingCalledEvent struct {
		Caller string `json:"caller"`
	}
	SabotageStartedEvent struct {
		Sabotage SabotageInfo `json:"sabotage"`
	}
	SabotageProgressEvent struct {
		Sabotage SabotageInfo `json:"sabotage"`
	}
	SabotageFixedEvent struct {
		Type    game.SabotageType `json:"type"`
		Cleared bool              `json:"cleared"` // снят собранием, а не починен
	}
	SabotageFailedEvent struct {
		Type game.SabotageType `json:"type"`
	}
	PlayerVentedEvent struct {
		Address  string        `json:"address"`
		Action   string        `json:"action"` // enter/exit/move
		Location game.Location `json:"location"`
	}
	CameraFeedEvent struct {
		Visible []game.CameraEntry `json:"visible"`
	}
	CameraStatusEvent struct {
		InUse bool `json:"in_use"`
	}
	RoundSummaryEvent struct {
		Summary game.RoundSummary `json:"summary"`
	}
	ChatEvent struct {
		From  string `json:"from"`
		Text  string `json:"text"`
		Ghost bool   `json:"ghost"`
	}
	GameEndedEvent struct {
		Winner    game.Faction         `json:"winner"`
		Reason    game.WinReason       `json:"reason"`
		Impostors []string             `json:"impostors"`
		Players   []game.PlayerOutcome `json:"players"`
	}
	ErrorEvent struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

func (WelcomeEvent) EventType() string          { return "welcome" }
func (AuthenticatedEvent) EventType() string    { return "authenticated" }
func (RoomListEvent) EventType() string         { return "room_list" }
func (RoomCreatedEvent) EventType() string      { return "room_created" }
func (RoomUpdatedEvent) EventType() string      { return "room_updated" }
func (RoomStateEvent) EventType() string        { return "room_state" }
func (RoomClosedEvent) EventType() string       { return "room_closed" }
func (PlayerJoinedEvent) EventType() string     { return "player_joined" }
func (PlayerLeftEvent) EventType() string       { return "player_left" }
func (PlayerMovedEvent) EventType() string      { return "player_moved" }
func (KillOccurredEvent) EventType() string     { return "kill_occurred" }
func (PhaseChangedEvent) EventType() string     { return "phase_changed" }
func (RoleAssignedEvent) EventType() string     { return "role_assigned" }
func (TasksAssignedEvent) EventType() string    { return "tasks_assigned" }
func (VoteCastEvent) EventType() string         { return "vote_cast" }
func (PlayerEjectedEvent) EventType() string    { return "player_ejected" }
func (TaskCompletedEvent) EventType() string    { return "task_completed" }
func (BodyReportedEvent) EventType() string     { return "body_reported" }
func (MeetingCalledEvent) EventType() string    { return "meeting_called" }
func (SabotageStartedEvent) EventType() string  { return "sabotage_started" }
func (SabotageProgressEvent) EventType() string { return "sabotage_progress" }
func (SabotageFixedEvent) EventType() string    { return "sabotage_fixed" }
func (SabotageFailedEvent) EventType() string   { return "sabotage_failed" }
func (PlayerVentedEvent) EventType() string     { return "player_vented" }
func (CameraFeedEvent) EventType() string       { return "camera_feed" }
func (CameraStatusEvent) EventType() string     { return "camera_status" }
func (RoundSummaryEvent) EventType() string     { return "round_summary" }
func (ChatEvent) EventType() string             { return "chat" }
func (GameEndedEvent) EventType() string        { return "game_ended" }
func (ErrorEvent) EventType() string            { return "error" }

// errorEvent переводит ошибку в событие для клиента
func errorEvent(err error) ErrorEvent {
	switch {
	case errors.Is(err, ErrBadMessage):
		return ErrorEvent{Code: "bad_message", Message: err.Error()}
	case errors.Is(err, ErrUnknownType):
		return ErrorEvent{Code: "unknown_type", Message: err.Error()}
	}
	var re *game.RuleError
	if errors.As(err, &re) {
		return ErrorEvent{Code: re.Code, Message: re.Message}
	}
	return ErrorEvent{Code: "internal", Message: "internal error"}
}
