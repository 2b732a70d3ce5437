package events

import "sync"

// Journal хранит последние уведомления для GET /api/state.
// Кольцевой буфер: при заполнении новая запись затирает самую старую.
type Journal struct {
	mu    sync.Mutex
	ring  []Notification
	next  int
	count int
}

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 200
	}
	return &Journal{ring: make([]Notification, capacity)}
}

func (j *Journal) Notify(n Notification) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ring[j.next] = n
	j.next = (j.next + 1) % len(j.ring)
	if j.count < len(j.ring) {
		j.count++
	}
}

// Snapshot возвращает записи от старых к новым.
func (j *Journal) Snapshot() []Notification {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Notification, 0, j.count)
	start := (j.next - j.count + len(j.ring)) % len(j.ring)
	for i := 0; i < j.count; i++ {
		out = append(out, j.ring[(start+i)%len(j.ring)])
	}
	return out
}
