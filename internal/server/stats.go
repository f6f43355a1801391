package server

import "time"

// Stats is a point-in-time view of the broadcaster, published by the
// coordinator after every loop iteration.
type Stats struct {
	Addr        string            `json:"addr"`
	HeaderFound bool              `json:"header_found"`
	TailedBytes int64             `json:"tailed_bytes"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

type SubscriberStats struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	QueuedBytes int       `json:"queued_bytes"`
	SentBytes   int64     `json:"sent_bytes"`
}

// Stats returns the most recently published snapshot.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := b.stats
	stats.Subscribers = append([]SubscriberStats(nil), b.stats.Subscribers...)
	return stats
}

func (b *Broadcaster) publishStats() {
	subs := make([]SubscriberStats, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, SubscriberStats{
			ID:          s.id,
			RemoteAddr:  s.remoteAddr,
			ConnectedAt: s.connectedAt,
			QueuedBytes: s.queue.len(),
			SentBytes:   s.sent,
		})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Stats{
		HeaderFound: b.source.HeaderFound(),
		TailedBytes: b.tailed,
		Subscribers: subs,
	}
	if b.addr != nil {
		b.stats.Addr = b.addr.String()
	}
}
