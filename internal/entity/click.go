package entity

import "time"

// Click is one recorded visit of a short link. Never mutated once written.
type Click struct {
	ID        int64     `json:"id" db:"id"`
	LinkID    int64     `json:"link_id" db:"link_id"`
	ClickedAt time.Time `json:"clicked_at" db:"clicked_at"`
	ClickMeta
}

// ClickMeta is opaque client metadata, stored as received.
type ClickMeta struct {
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	Referer   string `json:"referer,omitempty" db:"referer"`
}

// ClickMessage travels through the click queue.
type ClickMessage struct {
	LinkID    int64     `json:"link_id"`
	ShortCode string    `json:"short_code"`
	ClickedAt time.Time `json:"clicked_at"`
	ClickMeta
}
