package cards

import "errors"

var (
	ErrCardNotFound    = errors.New("card not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotPermutation  = errors.New("card order is not a permutation of the current cards")
	ErrInvalidPayload  = errors.New("invalid drag payload")
)
