package intel

import "errors"

var (
	// ErrNoEndpoint — не задан URL агрегатора.
	ErrNoEndpoint = errors.New("intel endpoint is required")

	// ErrUpstream — агрегатор ответил ошибкой.
	ErrUpstream = errors.New("intel upstream error")
)
