package ws

import (
	"testing"
	"time"

	"impostor_relay/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startedRoom - комната из четырех игроков, запущенная вручную
func startedRoom(t *testing.T, rules game.Rules, opts ...HubOption) (*Hub, *Room, []*Client) {
	t.Helper()
	h := newTestHub(t, testLifecycle(), rules, opts...)
	room, clients := seatPlayers(t, h, rules.MinPlayers)

	room.mu.Lock()
	room.startLocked()
	room.unlock()
	require.Equal(t, game.PhaseActionCommit, roomPhase(room))
	for _, c := range clients {
		drain(c)
	}
	return h, room, clients
}

func TestRoom_StartSendsPrivateRoles(t *testing.T) {
	h := newTestHub(t, testLifecycle(), testRules())
	room, clients := seatPlayers(t, h, 4)
	room.mu.Lock()
	room.startLocked()
	room.unlock()

	imps, crew := roles(room, clients)
	require.Len(t, imps, 1)

	role := decode[RoleAssignedEvent](t, waitFor(t, imps[0], "role_assigned"))
	assert.Equal(t, game.RoleImpostor, role.Role)
	assert.Equal(t, []string{imps[0].Address()}, role.Impostors)

	role = decode[RoleAssignedEvent](t, waitFor(t, crew[0], "role_assigned"))
	assert.Equal(t, game.RoleCrewmate, role.Role)
	assert.Empty(t, role.Impostors, "crewmates never learn the impostors")
	tasks := decode[TasksAssignedEvent](t, waitFor(t, crew[0], "tasks_assigned"))
	assert.Len(t, tasks.Tasks, 1)
}

func TestRoom_CriticalSabotageTimeout(t *testing.T) {
	rules := testRules()
	rules.CriticalSabotageDuration = 50 * time.Millisecond
	sink := newChanSink()
	h, room, clients := startedRoom(t, rules, WithSinks(sink))
	imps, crew := roles(room, clients)

	send(t, h, imps[0], "sabotage_start", map[string]string{"type": "oxygen"})
	started := decode[SabotageStartedEvent](t, waitFor(t, crew[0], "sabotage_started"))
	assert.True(t, started.Sabotage.Critical)
	require.NotNil(t, started.Sabotage.Deadline)

	// одного починщика мало
	send(t, h, crew[0], "sabotage_fix", nil)
	progress := decode[SabotageProgressEvent](t, waitFor(t, crew[1], "sabotage_progress"))
	assert.Equal(t, 1, progress.Sabotage.Fixers)

	failed := decode[SabotageFailedEvent](t, waitFor(t, crew[1], "sabotage_failed"))
	assert.Equal(t, game.SabotageOxygen, failed.Type)
	ended := decode[GameEndedEvent](t, waitFor(t, crew[1], "game_ended"))
	assert.Equal(t, game.FactionImpostors, ended.Winner)
	assert.Equal(t, game.ReasonKills, ended.Reason)
	assert.Equal(t, game.PhaseEnded, roomPhase(room))

	select {
	case res := <-sink.results:
		assert.Equal(t, game.FactionImpostors, res.Winner)
	case <-time.After(waitTimeout):
		t.Fatal("result sink was not called")
	}
}

func TestRoom_SabotageFixedInTime(t *testing.T) {
	rules := testRules()
	rules.CriticalSabotageDuration = 100 * time.Millisecond
	h, room, clients := startedRoom(t, rules)
	imps, crew := roles(room, clients)

	send(t, h, imps[0], "sabotage_start", map[string]string{"type": "oxygen"})
	// кислород чинится в кафетерии и в админке; все начинают в кафетерии
	send(t, h, crew[0], "sabotage_fix", nil)
	send(t, h, crew[0], "sabotage_fix", nil)
	assert.NotNil(t, room.Detail().Sabotage, "same player never counts twice")
	send(t, h, crew[1], "sabotage_fix", nil)

	fixed := decode[SabotageFixedEvent](t, waitFor(t, crew[2], "sabotage_fixed"))
	assert.Equal(t, game.SabotageOxygen, fixed.Type)
	assert.False(t, fixed.Cleared)
	assert.Nil(t, room.Detail().Sabotage)

	time.Sleep(2 * rules.CriticalSabotageDuration)
	assert.Equal(t, game.PhaseActionCommit, roomPhase(room), "deadline timer was cancelled")
}

func TestRoom_EarlyVoteResolution(t *testing.T) {
	h, room, clients := startedRoom(t, testRules())
	_, crew := roles(room, clients)

	send(t, h, crew[0], "emergency_meeting", nil)
	require.Equal(t, game.PhaseDiscussion, roomPhase(room))
	waitFor(t, crew[1], "meeting_called")

	// переход к голосованию по таймеру обсуждения
	room.mu.Lock()
	room.beginVotingLocked()
	room.unlock()
	require.Equal(t, game.PhaseVoting, roomPhase(room))

	for i, c := range clients[:3] {
		send(t, h, c, "vote", map[string]any{"target": nil})
		assert.Equal(t, game.PhaseVoting, roomPhase(room), "vote %d of 4 must not resolve", i+1)
	}
	send(t, h, clients[3], "vote", map[string]any{"target": nil})
	assert.Equal(t, game.PhaseVoteResult, roomPhase(room), "fourth living vote resolves before the timer")

	ejected := decode[PlayerEjectedEvent](t, waitFor(t, crew[0], "player_ejected"))
	assert.Empty(t, ejected.Address)
	assert.Equal(t, 4, ejected.Skips)
}

func TestRoom_VoteEjectsImpostor(t *testing.T) {
	rules := testRules()
	rules.VoteResultDuration = 20 * time.Millisecond
	h, room, clients := startedRoom(t, rules)
	imps, crew := roles(room, clients)
	target := imps[0].Address()

	send(t, h, crew[0], "emergency_meeting", nil)
	room.mu.Lock()
	room.beginVotingLocked()
	room.unlock()

	for _, c := range clients {
		send(t, h, c, "vote", map[string]any{"target": target})
	}
	ejected := decode[PlayerEjectedEvent](t, waitFor(t, crew[0], "player_ejected"))
	assert.Equal(t, target, ejected.Address)
	assert.True(t, ejected.WasImpostor)

	ended := decode[GameEndedEvent](t, waitFor(t, crew[0], "game_ended"))
	assert.Equal(t, game.FactionCrewmates, ended.Winner)
	assert.Equal(t, game.ReasonVotes, ended.Reason)
}

func TestRoom_TasksWinGoesStraightToEnded(t *testing.T) {
	h, room, clients := startedRoom(t, testRules())
	_, crew := roles(room, clients)

	for _, c := range crew {
		for _, loc := range tasksOf(room, c) {
			walkTo(t, h, room, c, loc)
			send(t, h, c, "complete_task", map[string]string{"location": loc.String()})
		}
	}

	assert.Equal(t, game.PhaseEnded, roomPhase(room))

	var phases []game.Phase
	var ended *GameEndedEvent
	for _, env := range drain(crew[0]) {
		switch env.Type {
		case "phase_changed":
			phases = append(phases, decode[PhaseChangedEvent](t, env).Phase)
		case "game_ended":
			evt := decode[GameEndedEvent](t, env)
			ended = &evt
		}
	}
	assert.Equal(t, []game.Phase{game.PhaseEnded}, phases, "no meeting or vote result before the end")
	require.NotNil(t, ended)
	assert.Equal(t, game.FactionCrewmates, ended.Winner)
	assert.Equal(t, game.ReasonTasks, ended.Reason)
}

func TestRoom_RejectedActionOnlyReachesActor(t *testing.T) {
	h, room, clients := startedRoom(t, testRules())
	_, crew := roles(room, clients)

	send(t, h, crew[0], "move", map[string]string{"to": "reactor"})
	assert.Equal(t, "invalid_move", decode[ErrorEvent](t, waitFor(t, crew[0], "error")).Code)
	assert.Equal(t, game.Cafeteria, locationOf(room, crew[0]))
	assert.Empty(t, drain(crew[1]))

	send(t, h, crew[0], "move", map[string]string{"to": "nowhere"})
	assert.Equal(t, "unknown_location", decode[ErrorEvent](t, waitFor(t, crew[0], "error")).Code)

	send(t, h, crew[0], "kill", map[string]string{"target": crew[1].Address()})
	assert.Equal(t, "not_impostor", decode[ErrorEvent](t, waitFor(t, crew[0], "error")).Code)
}

func TestRoom_KillAndGhostChat(t *testing.T) {
	h, room, clients := startedRoom(t, testRules())
	imps, crew := roles(room, clients)
	victim := crew[0]

	send(t, h, imps[0], "kill", map[string]string{"target": victim.Address()})
	kill := decode[KillOccurredEvent](t, waitFor(t, crew[1], "kill_occurred"))
	assert.Equal(t, victim.Address(), kill.Victim)

	// живые не могут писать во время раунда, призраки пишут только призракам
	send(t, h, crew[1], "chat", map[string]string{"text": "hi"})
	assert.Equal(t, "wrong_phase", decode[ErrorEvent](t, waitFor(t, crew[1], "error")).Code)

	drain(crew[1])
	send(t, h, victim, "chat", map[string]string{"text": "boo"})
	msg := decode[ChatEvent](t, waitFor(t, victim, "chat"))
	assert.True(t, msg.Ghost)
	assert.Empty(t, drain(crew[1]))

	// призрак ходит сквозь стены, живые этого не видят
	send(t, h, victim, "move", map[string]string{"to": "reactor"})
	assert.Equal(t, game.Reactor, locationOf(room, victim))
	assert.Empty(t, drain(crew[1]))

	send(t, h, crew[1], "report_body", nil)
	reported := decode[BodyReportedEvent](t, waitFor(t, crew[2], "body_reported"))
	assert.Equal(t, victim.Address(), reported.Victim)
	assert.Equal(t, game.PhaseDiscussion, roomPhase(room))

	send(t, h, crew[1], "chat", map[string]string{"text": "it was them"})
	msg = decode[ChatEvent](t, waitFor(t, victim, "chat"))
	assert.False(t, msg.Ghost)
}

func TestRoom_VentEventsHiddenFromCrew(t *testing.T) {
	h, room, clients := startedRoom(t, testRules())
	imps, crew := roles(room, clients)
	imp := imps[0]

	send(t, h, imp, "vent_enter", nil)
	vented := decode[PlayerVentedEvent](t, waitFor(t, imp, "player_vented"))
	assert.Equal(t, "enter", vented.Action)
	assert.Empty(t, drain(crew[0]))

	send(t, h, imp, "vent_move", map[string]string{"to": "admin"})
	assert.Equal(t, game.Admin, locationOf(room, imp))
	assert.Empty(t, drain(crew[0]))

	send(t, h, imp, "vent_exit", nil)
	moved := decode[PlayerMovedEvent](t, waitFor(t, crew[0], "player_moved"))
	assert.Equal(t, game.Admin, moved.From)
	assert.Equal(t, game.Admin, moved.To)
}

func TestRoom_CamerasFollowMovement(t *testing.T) {
	h, room, clients := startedRoom(t, testRules())
	_, crew := roles(room, clients)
	watcher := crew[0]

	walkTo(t, h, room, watcher, game.Security)
	drain(crew[1])
	send(t, h, watcher, "cameras_start", nil)
	waitFor(t, watcher, "camera_feed")
	status := decode[CameraStatusEvent](t, waitFor(t, crew[1], "camera_status"))
	assert.True(t, status.InUse)

	drain(watcher)
	send(t, h, crew[1], "move", map[string]string{"to": "admin"})
	feed := decode[CameraFeedEvent](t, waitFor(t, watcher, "camera_feed"))
	assert.Contains(t, feed.Visible, game.CameraEntry{Address: crew[1].Address(), Location: game.Admin})

	send(t, h, watcher, "move", map[string]string{"to": "upper_engine"})
	status = decode[CameraStatusEvent](t, waitFor(t, crew[1], "camera_status"))
	assert.False(t, status.InUse)
}

func TestRoom_StaleTimerIsSkipped(t *testing.T) {
	_, room, _ := startedRoom(t, testRules())
	var fired lockedCounter

	room.mu.Lock()
	room.arm(&room.phaseTimer, 10*time.Millisecond, fired.inc)
	// повторный arm делает первый колбэк устаревшим
	room.arm(&room.phaseTimer, time.Hour, fired.inc)
	stale := room.phaseTimer.gen - 1
	room.unlock()

	room.fire(&room.phaseTimer, stale, fired.inc)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.get())
	assert.Equal(t, game.PhaseActionCommit, roomPhase(room))
}

func TestRoom_PanicAbortsOnlyThatRoom(t *testing.T) {
	sink := newChanSink()
	_, room, clients := startedRoom(t, testRules(), WithSinks(sink))

	room.mu.Lock()
	room.arm(&room.phaseTimer, time.Millisecond, func() { panic("boom") })
	room.unlock()

	ended := decode[GameEndedEvent](t, waitFor(t, clients[0], "game_ended"))
	assert.Equal(t, game.ReasonAborted, ended.Reason)
	assert.Equal(t, game.FactionNone, ended.Winner)

	select {
	case res := <-sink.results:
		assert.Equal(t, game.ReasonAborted, res.Reason)
	case <-time.After(waitTimeout):
		t.Fatal("result sink was not called")
	}
}

func TestRoom_ResultDisplayThenCooldown(t *testing.T) {
	cfg := testLifecycle()
	cfg.ResultDisplay = 20 * time.Millisecond
	h := newTestHub(t, cfg, testRules())
	room, clients := seatPlayers(t, h, 4)

	room.mu.Lock()
	room.startLocked()
	room.endGameLocked(game.WinResult{Winner: game.FactionImpostors, Reason: game.ReasonKills})
	room.unlock()

	assert.Equal(t, SlotActive, h.Slots()[0].State, "result stays visible first")
	closed := decode[RoomClosedEvent](t, waitFor(t, clients[0], "room_closed"))
	assert.Equal(t, "game_over", closed.Reason)
	require.Eventually(t, func() bool {
		return h.Slots()[0].State == SlotCooldown
	}, waitTimeout, 5*time.Millisecond)
	assert.False(t, room.HasSeat(clients[0].Address()))
}

func TestRoom_CriticalSabotageDeadlineDuringReveal(t *testing.T) {
	rules := testRules()
	rules.CriticalSabotageDuration = time.Hour
	h, room, clients := startedRoom(t, rules)
	imps, crew := roles(room, clients)

	send(t, h, imps[0], "sabotage_start", map[string]string{"type": "reactor"})
	waitFor(t, crew[0], "sabotage_started")

	// раунд закончился раньше, чем сработал таймер саботажа
	room.mu.Lock()
	room.revealRoundLocked()
	require.Equal(t, game.PhaseActionReveal, room.session.Phase())
	room.failSabotageLocked()
	room.unlock()

	failed := decode[SabotageFailedEvent](t, waitFor(t, crew[0], "sabotage_failed"))
	assert.Equal(t, game.SabotageReactor, failed.Type)
	ended := decode[GameEndedEvent](t, waitFor(t, crew[0], "game_ended"))
	assert.Equal(t, game.FactionImpostors, ended.Winner)
	assert.Equal(t, game.ReasonKills, ended.Reason)
	assert.Equal(t, game.PhaseEnded, roomPhase(room))
}

func TestRoom_ExpiredSabotageEndsAtRoundBoundary(t *testing.T) {
	rules := testRules()
	rules.CriticalSabotageDuration = time.Hour
	clock := newManualClock()
	h, room, clients := startedRoom(t, rules, WithSessionOptions(game.WithClock(clock.Now)))
	imps, crew := roles(room, clients)

	send(t, h, imps[0], "sabotage_start", map[string]string{"type": "oxygen"})
	waitFor(t, crew[0], "sabotage_started")

	// срок вышел по часам партии, таймер еще не сработал
	clock.Advance(2 * time.Hour)
	room.mu.Lock()
	room.revealRoundLocked()
	room.unlock()

	waitFor(t, crew[1], "sabotage_failed")
	ended := decode[GameEndedEvent](t, waitFor(t, crew[1], "game_ended"))
	assert.Equal(t, game.ReasonKills, ended.Reason)
	assert.Equal(t, game.PhaseEnded, roomPhase(room))
}

func TestRoom_NonCriticalSabotageNeverFails(t *testing.T) {
	rules := testRules()
	rules.CriticalSabotageDuration = time.Hour
	h, room, clients := startedRoom(t, rules)
	imps, crew := roles(room, clients)

	send(t, h, imps[0], "sabotage_start", map[string]string{"type": "lights"})
	waitFor(t, crew[0], "sabotage_started")

	room.mu.Lock()
	_, ok := room.session.FailSabotage()
	room.unlock()
	assert.False(t, ok, "non-critical sabotage never fails the game")
	assert.Equal(t, game.PhaseActionCommit, roomPhase(room))
}
