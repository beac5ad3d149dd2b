package domain

import "time"

// Role — роль специалиста.
type Role string

const (
	RoleEngineering Role = "engineering"
	RoleSourcing    Role = "sourcing"
	RoleFinance     Role = "finance"
)

// Roles возвращает три роли в каноническом порядке.
func Roles() []Role {
	return []Role{RoleEngineering, RoleSourcing, RoleFinance}
}

// Concern — замечание специалиста.
type Concern struct {
	// MPN — деталь, к которой относится замечание. Пусто для замечаний уровня проекта.
	MPN      string   `json:"mpn,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// String возвращает "MPN: message" или просто message для проектных замечаний.
func (c Concern) String() string {
	if c.MPN == "" {
		return c.Message
	}
	return c.MPN + ": " + c.Message
}

// PartFinding — вывод специалиста по одной детали.
type PartFinding struct {
	MPN     string `json:"mpn"`
	Summary string `json:"summary"`

	// Blocking — специалист считает деталь непригодной.
	Blocking bool `json:"blocking"`

	// Заполняются sourcing и finance.
	SupplierID   string  `json:"supplier_id,omitempty"`
	SupplierName string  `json:"supplier_name,omitempty"`
	SelectedMPN  string  `json:"selected_mpn,omitempty"`
	OrderQty     int     `json:"order_qty,omitempty"`
	UnitPrice    float64 `json:"unit_price,omitempty"`
	LineCost     float64 `json:"line_cost,omitempty"`
}

// Assessment — результат одного специалиста за один прогон.
//
// Неизменяем после создания.
type Assessment struct {
	Role            Role          `json:"role"`
	Timestamp       time.Time     `json:"timestamp"`
	EvaluatedMPNs   []string      `json:"evaluated_mpns"`
	Analysis        string        `json:"analysis"`
	Concerns        []Concern     `json:"concerns"`
	Findings        []PartFinding `json:"findings"`
	Recommendations []string      `json:"recommendations,omitempty"`
}

// NewEmptyAssessment возвращает корректную пустую оценку для пустого батча.
func NewEmptyAssessment(role Role) *Assessment {
	return &Assessment{
		Role:          role,
		Timestamp:     time.Now(),
		EvaluatedMPNs: []string{},
		Analysis:      "No line items to evaluate.",
		Concerns:      []Concern{},
		Findings:      []PartFinding{},
	}
}

// Finding возвращает вывод по MPN.
func (a *Assessment) Finding(mpn string) (PartFinding, bool) {
	if a == nil {
		return PartFinding{}, false
	}
	for _, f := range a.Findings {
		if f.MPN == mpn {
			return f, true
		}
	}
	return PartFinding{}, false
}

// ConcernsFor возвращает замечания по MPN.
func (a *Assessment) ConcernsFor(mpn string) []Concern {
	if a == nil {
		return nil
	}
	var out []Concern
	for _, c := range a.Concerns {
		if c.MPN == mpn {
			out = append(out, c)
		}
	}
	return out
}

// Blocks проверяет, есть ли блокирующее замечание или блокирующий вывод по MPN.
func (a *Assessment) Blocks(mpn string) bool {
	if a == nil {
		return false
	}
	for _, c := range a.Concerns {
		if c.MPN == mpn && c.Severity == SeverityBlocking {
			return true
		}
	}
	f, ok := a.Finding(mpn)
	return ok && f.Blocking
}

// ConcernStrings возвращает замечания в строковом виде.
func (a *Assessment) ConcernStrings() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.Concerns))
	for _, c := range a.Concerns {
		out = append(out, c.String())
	}
	return out
}
