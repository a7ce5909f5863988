package models

import "time"

// HoneypotInteraction captures a single attacker exchange with the
// deception layer. Append-only.
type HoneypotInteraction struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	AttackType string    `json:"attack_type"`
	Payload    string    `json:"payload"`
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	Response   string    `json:"response"` // JSON of the fabricated result set
	Metadata   Metadata  `json:"metadata,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// HoneypotFilter narrows interaction listing
type HoneypotFilter struct {
	IPAddress string
}
