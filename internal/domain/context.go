package domain

import "time"

// Значения по умолчанию для intake-документа.
const (
	DefaultMaxLeadTimeDays = 30
	DefaultQualityClass    = "IPC Class 2"
	DefaultProductType     = "consumer"
	DefaultQuantity        = 1
)

// ProjectContext — параметры проекта из intake-документа.
//
// Неизменяем после этапа intake.
type ProjectContext struct {
	// ProjectID — внешний идентификатор проекта из документа (не UUID проекта).
	ProjectID          string `json:"project_id,omitempty"`
	Name               string `json:"name,omitempty"`
	Owner              string `json:"owner,omitempty"`
	EngineeringContact string `json:"engineering_contact,omitempty"`

	Requirements        Requirements        `json:"requirements"`
	Compliance          Compliance          `json:"compliance"`
	SourcingConstraints SourcingConstraints `json:"sourcing_constraints"`
	EngineeringContext  EngineeringContext  `json:"engineering_context"`
}

// Requirements — продуктовые требования и бюджет.
type Requirements struct {
	ProductType string     `json:"product_type"`
	Quantity    int        `json:"quantity"`
	Deadline    *time.Time `json:"deadline,omitempty"`

	// BudgetTotal — бюджет в USD. 0 означает "бюджет не задан".
	BudgetTotal float64 `json:"budget_total"`
}

// Compliance — требования соответствия.
type Compliance struct {
	Standards           []string `json:"standards"`
	QualityClass        string   `json:"quality_class"`
	CountryRestrictions []string `json:"country_of_origin_restrictions,omitempty"`
}

// RequiresRoHS возвращает true, если среди стандартов есть RoHS.
func (c Compliance) RequiresRoHS() bool {
	for _, s := range c.Standards {
		if equalFold(s, "RoHS") {
			return true
		}
	}
	return false
}

// SourcingConstraints — ограничения закупки.
type SourcingConstraints struct {
	AllowBrokers          bool     `json:"allow_brokers"`
	AllowAlternates       bool     `json:"allow_alternates"`
	SingleSourceOK        bool     `json:"single_source_ok"`
	PreferredDistributors []string `json:"preferred_distributors,omitempty"`
	MaxLeadTimeDays       int      `json:"max_lead_time_days"`
}

// IsPreferred проверяет, входит ли поставщик в список предпочтительных.
func (s SourcingConstraints) IsPreferred(supplierID, supplierName string) bool {
	for _, d := range s.PreferredDistributors {
		if equalFold(d, supplierID) || equalFold(d, supplierName) {
			return true
		}
	}
	return false
}

// EngineeringContext — инженерные пожелания.
type EngineeringContext struct {
	Notes         string   `json:"notes,omitempty"`
	CriticalParts []string `json:"critical_parts,omitempty"`

	// PreferredManufacturers — предпочтительные производители по категориям
	// ("capacitors", "resistors", "mcu", "connectors", ...).
	PreferredManufacturers map[string][]string `json:"preferred_manufacturers,omitempty"`
}

// IsCritical проверяет, помечен ли MPN как критичный.
func (e EngineeringContext) IsCritical(mpn string) bool {
	for _, p := range e.CriticalParts {
		if equalFold(p, mpn) {
			return true
		}
	}
	return false
}

// IsPreferredManufacturer проверяет, входит ли производитель в любой список предпочтительных.
func (e EngineeringContext) IsPreferredManufacturer(manufacturer string) bool {
	for _, list := range e.PreferredManufacturers {
		if containsFold(list, manufacturer) {
			return true
		}
	}
	return false
}

// DefaultProjectContext возвращает контекст со значениями по умолчанию.
func DefaultProjectContext() ProjectContext {
	return ProjectContext{
		Requirements: Requirements{
			ProductType: DefaultProductType,
			Quantity:    DefaultQuantity,
		},
		Compliance: Compliance{
			Standards:    []string{},
			QualityClass: DefaultQualityClass,
		},
		SourcingConstraints: SourcingConstraints{
			AllowAlternates: true,
			MaxLeadTimeDays: DefaultMaxLeadTimeDays,
		},
	}
}

// Clone возвращает глубокую копию контекста.
func (c ProjectContext) Clone() ProjectContext {
	out := c
	if c.Requirements.Deadline != nil {
		d := *c.Requirements.Deadline
		out.Requirements.Deadline = &d
	}
	out.Compliance.Standards = cloneStrings(c.Compliance.Standards)
	out.Compliance.CountryRestrictions = cloneStrings(c.Compliance.CountryRestrictions)
	out.SourcingConstraints.PreferredDistributors = cloneStrings(c.SourcingConstraints.PreferredDistributors)
	out.EngineeringContext.CriticalParts = cloneStrings(c.EngineeringContext.CriticalParts)
	if c.EngineeringContext.PreferredManufacturers != nil {
		m := make(map[string][]string, len(c.EngineeringContext.PreferredManufacturers))
		for k, v := range c.EngineeringContext.PreferredManufacturers {
			m[k] = cloneStrings(v)
		}
		out.EngineeringContext.PreferredManufacturers = m
	}
	return out
}
