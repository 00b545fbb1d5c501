package models

import "time"

// User is an operator identity for the admin API (agent/model catalog
// mutations, force-sync, etc). Aria authenticates operators with a single
// shared API key per spec.md §6; User exists so the optional JWT session
// issued after key verification carries a stable subject.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
