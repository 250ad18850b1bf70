package storage

import "time"

type APIToken struct {
	Token     string    `json:"token"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type GuidanceRecord struct {
	ID            int64     `json:"id"`
	UserLabel     string    `json:"user_label"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Preferred     string    `json:"preferred,omitempty"`
	Outcome       string    `json:"outcome"`
	ElapsedMillis int64     `json:"elapsed_ms"`
	Attachments   int       `json:"attachments"`
	CreatedAt     time.Time `json:"created_at"`
}
