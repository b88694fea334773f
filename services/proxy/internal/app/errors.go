package app

import "errors"

var (
	// ErrMessagesRequired indicates an empty or missing messages array.
	ErrMessagesRequired = errors.New("messages array is required")
	ErrInvalidRole      = errors.New("invalid message role")
)
