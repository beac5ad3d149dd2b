package decision

import "errors"

// ErrNarrator — ошибка текстового бэкенда при подготовке executive summary.
var ErrNarrator = errors.New("executive summary narration failed")
