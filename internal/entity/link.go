package entity

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

type Link struct {
	ID        int64     `json:"id" db:"id"`
	ShortCode string    `json:"short_code" db:"short_code"`
	TargetURL string    `json:"target_url" db:"target_url"`
	Title     string    `json:"title,omitempty" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName is the title when set, the short code otherwise.
func (l *Link) DisplayName() string {
	if strings.TrimSpace(l.Title) != "" {
		return l.Title
	}
	return l.ShortCode
}

type LinkWithClicks struct {
	Link
	Clicks int64 `json:"clicks"`
}

type CreateLinkRequest struct {
	ShortCode string `json:"short_code" binding:"required"`
	TargetURL string `json:"target_url" binding:"required"`
	Title     string `json:"title,omitempty"`
}

type UpdateLinkRequest struct {
	TargetURL *string `json:"target_url,omitempty"`
	Title     *string `json:"title,omitempty"`
}

// LinkStats is the per-link summary over the last Days days.
type LinkStats struct {
	ShortCode   string  `json:"short_code"`
	Title       string  `json:"title,omitempty"`
	Days        int     `json:"days"`
	Clicks      int64   `json:"clicks"`
	TotalClicks int64   `json:"total_clicks"`
	AvgPerDay   float64 `json:"avg_per_day"`
}

var shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateShortCode(code string) error {
	if !shortCodePattern.MatchString(code) {
		return ErrInvalidShortCode
	}
	return nil
}

// ValidateTargetURL accepts absolute http(s) URLs only.
func ValidateTargetURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	return nil
}
