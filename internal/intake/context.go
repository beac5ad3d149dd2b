package intake

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/bomflow/internal/domain"
)

// intakeDoc — структура intake YAML. Указатели отличают "не задано" от нулевого значения.
type intakeDoc struct {
	Project struct {
		ID                 string `yaml:"id"`
		Name               string `yaml:"name"`
		Owner              string `yaml:"owner"`
		EngineeringContact string `yaml:"engineering_contact"`
	} `yaml:"project"`

	Requirements struct {
		ProductType *string  `yaml:"product_type"`
		Quantity    *int     `yaml:"quantity"`
		Deadline    string   `yaml:"deadline"`
		BudgetTotal *float64 `yaml:"budget_total"`
	} `yaml:"requirements"`

	Compliance struct {
		Standards           []string `yaml:"standards"`
		QualityClass        *string  `yaml:"quality_class"`
		CountryRestrictions []string `yaml:"country_of_origin_restrictions"`
	} `yaml:"compliance"`

	Sourcing struct {
		AllowBrokers          *bool    `yaml:"allow_brokers"`
		AllowAlternates       *bool    `yaml:"allow_alternates"`
		SingleSourceOK        *bool    `yaml:"single_source_ok"`
		PreferredDistributors []string `yaml:"preferred_distributors"`
		MaxLeadTimeDays       *int     `yaml:"max_lead_time_days"`
	} `yaml:"sourcing_constraints"`

	Engineering struct {
		Notes                  string              `yaml:"notes"`
		CriticalParts          []string            `yaml:"critical_parts"`
		PreferredManufacturers map[string][]string `yaml:"preferred_manufacturers"`
	} `yaml:"engineering_context"`
}

// deadlineLayouts — допустимые форматы срока.
var deadlineLayouts = []string{"2006-01-02", time.RFC3339}

// ParseContext разбирает intake YAML в контекст проекта.
//
// Все секции необязательны. nil reader или пустой документ → значения по умолчанию.
// Некорректный YAML или дата → ErrInvalidIntake.
func ParseContext(r io.Reader) (domain.ProjectContext, error) {
	ctx := domain.DefaultProjectContext()
	if r == nil {
		return ctx, nil
	}

	var doc intakeDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return ctx, nil
		}
		return ctx, fmt.Errorf("%w: %v", ErrInvalidIntake, err)
	}

	ctx.ProjectID = doc.Project.ID
	ctx.Name = doc.Project.Name
	ctx.Owner = doc.Project.Owner
	ctx.EngineeringContact = doc.Project.EngineeringContact

	req := doc.Requirements
	if req.ProductType != nil && strings.TrimSpace(*req.ProductType) != "" {
		ctx.Requirements.ProductType = strings.TrimSpace(*req.ProductType)
	}
	if req.Quantity != nil && *req.Quantity > 0 {
		ctx.Requirements.Quantity = *req.Quantity
	}
	if req.BudgetTotal != nil {
		if *req.BudgetTotal < 0 {
			return ctx, fmt.Errorf("%w: negative budget_total %v", ErrInvalidIntake, *req.BudgetTotal)
		}
		ctx.Requirements.BudgetTotal = *req.BudgetTotal
	}
	if d := strings.TrimSpace(req.Deadline); d != "" {
		t, err := parseDeadline(d)
		if err != nil {
			return ctx, err
		}
		ctx.Requirements.Deadline = &t
	}

	comp := doc.Compliance
	if comp.Standards != nil {
		ctx.Compliance.Standards = comp.Standards
	}
	if comp.QualityClass != nil && strings.TrimSpace(*comp.QualityClass) != "" {
		ctx.Compliance.QualityClass = *comp.QualityClass
	}
	ctx.Compliance.CountryRestrictions = comp.CountryRestrictions

	src := doc.Sourcing
	if src.AllowBrokers != nil {
		ctx.SourcingConstraints.AllowBrokers = *src.AllowBrokers
	}
	if src.AllowAlternates != nil {
		ctx.SourcingConstraints.AllowAlternates = *src.AllowAlternates
	}
	if src.SingleSourceOK != nil {
		ctx.SourcingConstraints.SingleSourceOK = *src.SingleSourceOK
	}
	ctx.SourcingConstraints.PreferredDistributors = src.PreferredDistributors
	if src.MaxLeadTimeDays != nil && *src.MaxLeadTimeDays > 0 {
		ctx.SourcingConstraints.MaxLeadTimeDays = *src.MaxLeadTimeDays
	}

	eng := doc.Engineering
	ctx.EngineeringContext.Notes = eng.Notes
	ctx.EngineeringContext.CriticalParts = eng.CriticalParts
	ctx.EngineeringContext.PreferredManufacturers = eng.PreferredManufacturers

	return ctx, nil
}

func parseDeadline(s string) (time.Time, error) {
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: deadline %q is not YYYY-MM-DD or RFC3339", ErrInvalidIntake, s)
}
