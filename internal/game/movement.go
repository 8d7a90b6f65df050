package game

// IsValidMove: остаться на месте или перейти в соседнее помещение
func (t *Topology) IsValidMove(from, to Location) bool {
	return from == to || t.IsAdjacent(from, to)
}

// IsValidVent: только по связям вентиляции
func (t *Topology) IsValidVent(from, to Location) bool {
	set, ok := t.vents[from]
	return ok && set.Has(to)
}

// ValidateMovement проверяет перемещение игрока.
// Призраки ходят куда угодно, вентиляция только для предателей.
func (t *Topology) ValidateMovement(p *PlayerState, impostor bool, from, to Location, isVent bool) error {
	if !to.Valid() || !from.Valid() {
		return ErrUnknownLocation
	}
	if !p.IsAlive {
		return nil
	}
	if isVent {
		if !impostor {
			return ErrNotImpostor
		}
		if !t.IsValidVent(from, to) {
			return ErrInvalidVent
		}
		return nil
	}
	if !t.IsValidMove(from, to) {
		return ErrInvalidMove
	}
	return nil
}
