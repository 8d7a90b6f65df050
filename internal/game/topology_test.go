package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology_Symmetric(t *testing.T) {
	topo := DefaultTopology()
	for _, from := range AllLocations() {
		for _, to := range topo.Adjacent(from) {
			assert.True(t, topo.IsAdjacent(to, from), "%s <-> %s", from, to)
		}
		for _, to := range topo.VentExits(from) {
			assert.True(t, topo.IsValidVent(to, from), "vent %s <-> %s", from, to)
		}
	}
}

func TestTopology_Moves(t *testing.T) {
	topo := DefaultTopology()
	assert.True(t, topo.IsValidMove(Cafeteria, Cafeteria))
	assert.True(t, topo.IsValidMove(Cafeteria, Admin))
	assert.False(t, topo.IsValidMove(Cafeteria, Reactor))

	assert.True(t, topo.IsValidVent(MedBay, Electrical))
	assert.False(t, topo.IsValidVent(MedBay, MedBay))
	assert.False(t, topo.IsValidVent(Storage, Admin))

	assert.True(t, topo.HasVent(Reactor))
	assert.False(t, topo.HasVent(Storage))
	assert.False(t, topo.IsObserved(Security))
	assert.Len(t, topo.ObservedLocations(), 6)
}

func TestValidateMovement(t *testing.T) {
	topo := DefaultTopology()
	alive := &PlayerState{IsAlive: true}
	ghost := &PlayerState{IsAlive: false}

	assert.NoError(t, topo.ValidateMovement(ghost, false, Cafeteria, Reactor, false))
	assert.NoError(t, topo.ValidateMovement(ghost, false, Cafeteria, Reactor, true))

	assert.ErrorIs(t, topo.ValidateMovement(alive, false, Cafeteria, Reactor, false), ErrInvalidMove)
	assert.ErrorIs(t, topo.ValidateMovement(alive, false, Cafeteria, Admin, true), ErrNotImpostor)
	assert.NoError(t, topo.ValidateMovement(alive, true, Cafeteria, Admin, true))
	assert.ErrorIs(t, topo.ValidateMovement(alive, true, Cafeteria, Storage, true), ErrInvalidVent)
	assert.ErrorIs(t, topo.ValidateMovement(alive, true, Cafeteria, Location(99), false), ErrUnknownLocation)
}

func TestLocation_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		To Location `json:"to"`
	}{To: UpperEngine})
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"upper_engine"}`, string(data))

	var in struct {
		To Location `json:"to"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"to":"medbay"}`), &in))
	assert.Equal(t, MedBay, in.To)

	assert.Error(t, json.Unmarshal([]byte(`{"to":"bridge"}`), &in))
}

func TestPhase_Transitions(t *testing.T) {
	assert.True(t, PhaseLobby.CanTransitionTo(PhaseStarting))
	assert.True(t, PhaseActionCommit.CanTransitionTo(PhaseDiscussion))
	assert.True(t, PhaseVoting.CanTransitionTo(PhaseEnded))
	assert.False(t, PhaseVoting.CanTransitionTo(PhaseActionCommit))
	assert.False(t, PhaseEnded.CanTransitionTo(PhaseLobby))
	assert.False(t, PhaseDiscussion.CanTransitionTo(PhaseVoteResult))

	assert.Equal(t, StatusPlaying, PhaseVoting.Status())
	assert.Equal(t, StatusLobby, PhaseLobby.Status())
}
