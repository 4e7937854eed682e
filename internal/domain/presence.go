package domain

import "time"

// Presence marks a user as currently editing a note. There is at most one
// record per (note, user).
type Presence struct {
	NoteID      string    `json:"note_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Color       string    `json:"color"`
	SessionID   string    `json:"session_id"`
	ConnectedAt time.Time `json:"connected_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Stale reports whether the record missed its heartbeat window.
func (p *Presence) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(p.HeartbeatAt) > ttl
}
