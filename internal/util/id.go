package util

import "github.com/google/uuid"

// NewID returns a random UUID string used for messages, conversations and cards.
func NewID() string {
	return uuid.NewString()
}
