// Package decision реализует итоговое решение по проекту.
//
// Synthesizer сводит оценки трёх специалистов в вердикт по каждому MPN,
// итоги проекта и список последующих действий.
package decision
