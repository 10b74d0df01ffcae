package dashboard

import (
	"lp-agent/internal/scheduler"
)

// PositionView is the wire shape the dashboard broadcasts for one open
// position — a display-only projection, never round-tripped back into
// the engine.
type PositionView struct {
	PositionID string  `json:"position_id"`
	PoolID     string  `json:"pool_id"`
	PnLPct     float64 `json:"pnl_pct"`
	ILPct      float64 `json:"il_pct"`
}

// SnapshotMessage is the websocket payload for one Display tick.
type SnapshotMessage struct {
	Type           string         `json:"type"`
	Positions      []PositionView `json:"positions"`
	LastScanUnix   int64          `json:"last_scan_unix"`
	EntryQueueSize int            `json:"entry_queue_size"`
}

// Broadcaster implements scheduler.Renderer by forwarding every Display
// tick straight to the websocket hub. The scheduler's own ticker already
// throttles the rate, so this has no ticker of its own.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster wires a Broadcaster to hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Render implements scheduler.Renderer.
func (b *Broadcaster) Render(snap scheduler.Snapshot) {
	positions := make([]PositionView, len(snap.OpenPositions))
	for i, p := range snap.OpenPositions {
		positions[i] = PositionView{
			PositionID: p.PositionID,
			PoolID:     p.PoolID,
			PnLPct:     p.LastPnLPct,
			ILPct:      p.LastILPct,
		}
	}
	b.hub.Broadcast(SnapshotMessage{
		Type:           "snapshot",
		Positions:      positions,
		LastScanUnix:   snap.LastScanAt.Unix(),
		EntryQueueSize: snap.EntryQueueSize,
	})
}
