package permissions

import "time"

// Permission is one entry of the reference catalog. The catalog is seeded by
// migration; the API only reads it.
type Permission struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"-"`
}
