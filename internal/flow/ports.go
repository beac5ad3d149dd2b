package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
)

// ProjectStore — постоянное хранилище проектов.
//
// Единственная зависимость движка по персистентности. Реализации хранят
// и отдают копии: изменения рабочей копии не видны до Update.
type ProjectStore interface {
	// Create сохраняет новый проект. Проект с тем же ID уже есть — ошибка.
	Create(ctx context.Context, p *domain.Project) error

	// Get возвращает проект по ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// Update записывает полное состояние проекта. Запись с журналом
	// короче сохранённого отклоняется.
	Update(ctx context.Context, p *domain.Project) error
}

// ProjectLeaser — аренда проекта между процессами.
//
// Необязательна: если ProjectStore её реализует, движок ведёт проект
// только под арендой. Без неё проект защищён лишь внутри процесса.
type ProjectLeaser interface {
	// Claim берёт или продлевает аренду на ttl.
	// false — аренду держит другой владелец.
	Claim(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error)

	// Release снимает аренду, если она принадлежит owner.
	Release(ctx context.Context, id uuid.UUID, owner string) error
}

// OfferStore — предложения поставщиков по проекту и MPN.
//
// enrich — единственный писатель для своего проекта.
type OfferStore interface {
	// GetOffers возвращает предложения; found=false, если MPN не обогащался.
	GetOffers(ctx context.Context, projectID uuid.UUID, mpn string) (offers []domain.Offer, found bool, err error)

	// SetOffers заменяет предложения по MPN.
	SetOffers(ctx context.Context, projectID uuid.UUID, mpn string, offers []domain.Offer) error
}

// OfferReader — представление OfferStore только для чтения, привязанное к проекту.
type OfferReader interface {
	GetOffers(ctx context.Context, mpn string) ([]domain.Offer, bool, error)
}

// BindOffers возвращает OfferReader для проекта.
func BindOffers(store OfferStore, projectID uuid.UUID) OfferReader {
	return boundOffers{store: store, projectID: projectID}
}

type boundOffers struct {
	store     OfferStore
	projectID uuid.UUID
}

func (b boundOffers) GetOffers(ctx context.Context, mpn string) ([]domain.Offer, bool, error) {
	return b.store.GetOffers(ctx, b.projectID, mpn)
}

// KnowledgeStore — знания организации о деталях и поставщиках.
//
// Изменяется операторами между прогонами; каждое чтение видит последнее
// зафиксированное значение.
type KnowledgeStore interface {
	IsPartBanned(ctx context.Context, mpn string) (banned bool, reason string, err error)
	ApprovedAlternates(ctx context.Context, mpn string) ([]string, error)

	// PartKnowledge возвращает nil без ошибки, если сведений нет.
	PartKnowledge(ctx context.Context, mpn string) (*domain.PartKnowledge, error)

	// Supplier возвращает nil без ошибки, если поставщик неизвестен.
	Supplier(ctx context.Context, id string) (*domain.Supplier, error)
}

// OfferSource получает или синтезирует предложения для позиции.
type OfferSource interface {
	Offers(ctx context.Context, item domain.LineItem) ([]domain.Offer, error)
}

// IntelProvider собирает рыночную аналитику. Необязателен.
type IntelProvider interface {
	Gather(ctx context.Context, items []domain.LineItem, pctx domain.ProjectContext) (*domain.MarketIntelReport, error)
}

// EvaluationInput — входные данные специалиста. Все поля только для чтения.
type EvaluationInput struct {
	ProjectID uuid.UUID
	Items     []domain.LineItem
	Context   domain.ProjectContext
	Offers    OfferReader

	// MarketIntel передаётся только специалисту по закупкам.
	MarketIntel *domain.MarketIntelReport
}

// Evaluator — специалист (engineering, sourcing или finance).
//
// Должен быть безопасен при параллельном вызове с двумя другими
// специалистами над теми же хранилищами. Пустой батч → пустая оценка.
type Evaluator interface {
	Role() domain.Role
	Evaluate(ctx context.Context, in EvaluationInput) (*domain.Assessment, error)
}

// DecisionInput — входные данные синтезатора.
type DecisionInput struct {
	ProjectID   uuid.UUID
	Items       []domain.LineItem
	Context     domain.ProjectContext
	Engineering *domain.Assessment
	Sourcing    *domain.Assessment
	Finance     *domain.Assessment
}

// Synthesizer формирует итоговый отчёт.
//
// Обязан вернуть ровно один вердикт на каждый MPN батча.
type Synthesizer interface {
	Decide(ctx context.Context, in DecisionInput) (*domain.FinalDecisionReport, error)
}

// TraceFunc получает каждую запись журнала синхронно, в порядке создания.
// Ошибки и паники потребителя логируются и не прерывают конвейер.
type TraceFunc func(ctx context.Context, projectID uuid.UUID, step domain.TraceStep) error

// Tee объединяет несколько потребителей журнала. nil-функции пропускаются.
func Tee(fns ...TraceFunc) TraceFunc {
	var live []TraceFunc
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(ctx context.Context, projectID uuid.UUID, step domain.TraceStep) error {
		var first error
		for _, fn := range live {
			if err := fn(ctx, projectID, step); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
