package mq

import "errors"

var (
	// ErrNoChannel — канал недоступен (соединение переподключается).
	ErrNoChannel = errors.New("no channel available")

	// ErrPermanent помечает ошибку обработки, которую бессмысленно повторять:
	// сообщение уходит в DLQ без повторной доставки.
	ErrPermanent = errors.New("permanent failure")
)
