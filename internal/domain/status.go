package domain

import "strings"

// Stage — этап конвейера обработки BOM.
//
// Порядок этапов фиксирован:
//
//	intake → enrich → market_intel → parallel_review → final_decision → complete
type Stage string

const (
	// StageIntake — разбор BOM и intake-документа, создание проекта.
	StageIntake Stage = "intake"

	// StageEnrich — получение предложений поставщиков для каждой позиции.
	StageEnrich Stage = "enrich"

	// StageMarketIntel — сбор рыночной аналитики (best effort).
	StageMarketIntel Stage = "market_intel"

	// StageParallelReview — три специалиста оценивают позиции параллельно.
	StageParallelReview Stage = "parallel_review"

	// StageFinalDecision — синтез итогового решения по каждой позиции.
	StageFinalDecision Stage = "final_decision"

	// StageComplete — терминальный этап.
	StageComplete Stage = "complete"
)

// Stages возвращает этапы в порядке выполнения.
func Stages() []Stage {
	return []Stage{
		StageIntake,
		StageEnrich,
		StageMarketIntel,
		StageParallelReview,
		StageFinalDecision,
		StageComplete,
	}
}

// ProjectStatus — статус проекта.
//
// Совпадает с именем последнего начатого этапа, либо "complete" / "failed".
type ProjectStatus string

const (
	ProjectStatusIntake         ProjectStatus = ProjectStatus(StageIntake)
	ProjectStatusEnrich         ProjectStatus = ProjectStatus(StageEnrich)
	ProjectStatusMarketIntel    ProjectStatus = ProjectStatus(StageMarketIntel)
	ProjectStatusParallelReview ProjectStatus = ProjectStatus(StageParallelReview)
	ProjectStatusFinalDecision  ProjectStatus = ProjectStatus(StageFinalDecision)
	ProjectStatusComplete       ProjectStatus = ProjectStatus(StageComplete)

	// ProjectStatusFailed — поглощающее состояние, достижимо из любого этапа.
	ProjectStatusFailed ProjectStatus = "failed"
)

// IsTerminal возвращает true, если проект больше не изменяется.
func (s ProjectStatus) IsTerminal() bool {
	switch s {
	case ProjectStatusComplete, ProjectStatusFailed:
		return true
	default:
		return false
	}
}

// LineItemStatus — статус позиции BOM.
//
// Жизненный цикл (только вперёд):
//
//	PENDING → ENRICHED → PENDING_FINAL_DECISION → PENDING_PURCHASE
//	                                            ↘ FAILED
//
// FAILED достижим из любого нетерминального статуса
// (например, позиция без MPN падает на enrich).
type LineItemStatus string

const (
	// LineItemPending — позиция создана при разборе BOM.
	LineItemPending LineItemStatus = "PENDING"

	// LineItemEnriched — предложения поставщиков получены.
	LineItemEnriched LineItemStatus = "ENRICHED"

	// LineItemPendingFinalDecision — все три оценки получены для батча.
	LineItemPendingFinalDecision LineItemStatus = "PENDING_FINAL_DECISION"

	// LineItemPendingPurchase — позиция одобрена.
	LineItemPendingPurchase LineItemStatus = "PENDING_PURCHASE"

	// LineItemFailed — позиция отклонена или не может быть обработана.
	LineItemFailed LineItemStatus = "FAILED"
)

// rank — позиция статуса на прямом пути. Терминальные статусы имеют общий ранг.
func (s LineItemStatus) rank() int {
	switch s {
	case LineItemPending:
		return 0
	case LineItemEnriched:
		return 1
	case LineItemPendingFinalDecision:
		return 2
	case LineItemPendingPurchase, LineItemFailed:
		return 3
	default:
		return -1
	}
}

// IsTerminal возвращает true для PENDING_PURCHASE и FAILED.
func (s LineItemStatus) IsTerminal() bool {
	return s.rank() == 3
}

// IsValid проверяет, что статус известен.
func (s LineItemStatus) IsValid() bool {
	return s.rank() >= 0
}

// CanTransition проверяет допустимость перехода s → to.
//
// Переход в тот же статус допустим (no-op).
func (s LineItemStatus) CanTransition(to LineItemStatus) bool {
	if !s.IsValid() || !to.IsValid() {
		return false
	}
	if s == to {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if to == LineItemFailed {
		return true
	}
	if to == LineItemPendingPurchase {
		return s == LineItemPendingFinalDecision
	}
	return to.rank() == s.rank()+1
}

// Verdict — итоговое решение по позиции.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// IsValid проверяет, что вердикт из допустимого множества.
func (v Verdict) IsValid() bool {
	return v == VerdictApproved || v == VerdictRejected
}

// Severity — серьёзность замечания специалиста.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// RiskLevel — уровень риска проекта.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// TrustLevel — уровень доверия к поставщику.
type TrustLevel string

const (
	TrustHigh    TrustLevel = "high"
	TrustMedium  TrustLevel = "medium"
	TrustLow     TrustLevel = "low"
	TrustBlocked TrustLevel = "blocked"
)

// Score возвращает числовой вес уровня доверия для сортировки.
// Неизвестный уровень считается как medium.
func (t TrustLevel) Score() int {
	switch t {
	case TrustHigh:
		return 3
	case TrustMedium:
		return 2
	case TrustLow:
		return 1
	case TrustBlocked:
		return 0
	default:
		return 2
	}
}

// IsValid проверяет, что уровень доверия известен.
func (t TrustLevel) IsValid() bool {
	switch t {
	case TrustHigh, TrustMedium, TrustLow, TrustBlocked:
		return true
	default:
		return false
	}
}

// ParseTrustLevel парсит строку в TrustLevel. Неизвестное значение — medium.
func ParseTrustLevel(s string) TrustLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TrustHigh
	case "low":
		return TrustLow
	case "blocked":
		return TrustBlocked
	default:
		return TrustMedium
	}
}
