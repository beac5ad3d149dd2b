package narrate

import "errors"

var (
	// ErrUnknownProvider — провайдер в конфигурации не поддерживается.
	ErrUnknownProvider = errors.New("unknown narrator provider")

	// ErrMissingAPIKey — для провайдера не задан API ключ.
	ErrMissingAPIKey = errors.New("narrator api key is required")

	// ErrEmptyResponse — модель вернула пустой ответ.
	ErrEmptyResponse = errors.New("narrator returned empty response")
)
