package config

import "errors"

// Load failures. Returned errors wrap one of these together with the cause.
var (
	ErrIO     = errors.New("config file unreadable")
	ErrParse  = errors.New("config file is not valid JSON")
	ErrSchema = errors.New("config file has invalid format")
)
