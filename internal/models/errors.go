package models

import "errors"

var (
	ErrNoRecord = errors.New("models: no matching record found")

	ErrInvalidProfile = errors.New("models: invalid plant profile")
)
