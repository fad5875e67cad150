package uid

import "github.com/google/uuid"

// New returns a random UUIDv4 string used for request and cycle ids.
func New() string {
	return uuid.NewString()
}
