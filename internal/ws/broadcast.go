package ws

import (
	"impostor_relay/internal/logger"
)

// Fanout - участники комнаты (игроки и наблюдатели) по id соединения.
// Не потокобезопасен: используется под блокировкой комнаты.
type Fanout struct {
	members map[string]*Client
}

func NewFanout() *Fanout {
	return &Fanout{members: make(map[string]*Client)}
}

func (f *Fanout) Add(c *Client) {
	f.members[c.ID] = c
}

func (f *Fanout) Remove(id string) bool {
	if _, ok := f.members[id]; !ok {
		return false
	}
	delete(f.members, id)
	return true
}

func (f *Fanout) Has(id string) bool {
	_, ok := f.members[id]
	return ok
}

func (f *Fanout) Len() int {
	return len(f.members)
}

// Clients возвращает копию участников
func (f *Fanout) Clients() []*Client {
	out := make([]*Client, 0, len(f.members))
	for _, c := range f.members {
		out = append(out, c)
	}
	return out
}

// Broadcast доставляет событие всем участникам
func (f *Fanout) Broadcast(evt Event) {
	f.deliver(evt, func(*Client) bool { return true })
}

// BroadcastExcept - всем, кроме автора
func (f *Fanout) BroadcastExcept(evt Event, originID string) {
	f.deliver(evt, func(c *Client) bool { return c.ID != originID })
}

// SendWhere - только участникам, подходящим под фильтр
func (f *Fanout) SendWhere(evt Event, match func(*Client) bool) {
	f.deliver(evt, match)
}

// deliver кодирует событие один раз и ставит его в очередь каждому получателю
func (f *Fanout) deliver(evt Event, match func(*Client) bool) {
	data, err := Encode(evt)
	if err != nil {
		logger.Error("Fanout.deliver: marshal error", "type", evt.EventType(), "error", err)
		return
	}
	for _, c := range f.members {
		if match(c) {
			c.enqueue(data)
		}
	}
}
