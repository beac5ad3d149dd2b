// Package knowledge хранит знания организации о деталях и поставщиках в SQLite:
// запрещённые детали, одобренные альтернативы, историю использования
// и уровень доверия к поставщикам.
//
// Каждое чтение идёт в базу: изменения, сделанные операторами между
// прогонами, видны следующему прогону без перезапуска.
package knowledge
