package domain

import "time"

// ContentReference describes one stored full-text object.
type ContentReference struct {
	FileName  string    `json:"fileName"`
	Reference string    `json:"reference"`
	SHA256    string    `json:"sha256"`
	SizeBytes int64     `json:"sizeBytes"`
	SourceURL string    `json:"sourceUrl,omitempty"`
	DOI       string    `json:"doi,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
