package flowtide

import "time"

// Entity carries the persistence timestamps shared by all stored types.
// Embed it in any struct that a store backend persists.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch sets UpdatedAt to now and backfills CreatedAt on first write.
func (e *Entity) Touch(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}
