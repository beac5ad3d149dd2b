// Package intel получает рыночную аналитику (дефициты, риски цепочки поставок,
// ценовые тренды) от внешнего агрегатора по HTTP.
package intel
