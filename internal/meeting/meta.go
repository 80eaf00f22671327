package meeting

import "time"

// Origin is where a catalog was loaded from.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginFile    Origin = "file"
	OriginS3      Origin = "s3"
)

// Meta identifies the active catalog in headers, metrics and logs.
type Meta struct {
	Source   Origin    `json:"source"`
	Version  string    `json:"version,omitempty"`
	SHA256   string    `json:"sha256,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}
