package crisis

import (
	"github.com/bissquit/crisis-command/internal/domain"
)

// classification is the derived assessment for one crisis type.
type classification struct {
	severity   domain.Severity
	scope      domain.ImpactScope
	categories []domain.ImpactCategory
	baseLoss   float64
}

// typeTable maps crisis types to their default classification. Severity here
// applies only when the submitted event carries no severity hint.
var typeTable = map[domain.CrisisType]classification{
	domain.CrisisTypeCyberAttack: {
		severity:   domain.SeverityHigh,
		scope:      domain.ScopeGlobal,
		categories: []domain.ImpactCategory{domain.ImpactOperational, domain.ImpactReputation, domain.ImpactFinancial},
		baseLoss:   500_000,
	},
	domain.CrisisTypeMarketCrash: {
		severity:   domain.SeverityCritical,
		scope:      domain.ScopeGlobal,
		categories: []domain.ImpactCategory{domain.ImpactFinancial},
		baseLoss:   2_000_000,
	},
	domain.CrisisTypeNaturalDisaster: {
		severity:   domain.SeverityHigh,
		scope:      domain.ScopeRegional,
		categories: []domain.ImpactCategory{domain.ImpactSafety, domain.ImpactOperational},
		baseLoss:   750_000,
	},
	domain.CrisisTypeFinancial: {
		severity:   domain.SeverityHigh,
		scope:      domain.ScopeNational,
		categories: []domain.ImpactCategory{domain.ImpactFinancial, domain.ImpactReputation},
		baseLoss:   400_000,
	},
	domain.CrisisTypeOperational: {
		severity:   domain.SeverityMedium,
		scope:      domain.ScopeLocal,
		categories: []domain.ImpactCategory{domain.ImpactOperational},
		baseLoss:   100_000,
	},
	domain.CrisisTypeRegulatory: {
		severity:   domain.SeverityMedium,
		scope:      domain.ScopeNational,
		categories: []domain.ImpactCategory{domain.ImpactFinancial, domain.ImpactReputation},
		baseLoss:   250_000,
	},
	domain.CrisisTypeHealth: {
		severity:   domain.SeverityHigh,
		scope:      domain.ScopeRegional,
		categories: []domain.ImpactCategory{domain.ImpactSafety, domain.ImpactOperational},
		baseLoss:   300_000,
	},
	domain.CrisisTypeReputation: {
		severity:   domain.SeverityMedium,
		scope:      domain.ScopeGlobal,
		categories: []domain.ImpactCategory{domain.ImpactReputation},
		baseLoss:   150_000,
	},
}

// defaultClassification applies to types missing from the table.
var defaultClassification = classification{
	severity:   domain.SeverityMedium,
	scope:      domain.ScopeLocal,
	categories: []domain.ImpactCategory{domain.ImpactOperational},
	baseLoss:   50_000,
}

// severityMultipliers scale the base loss estimate.
var severityMultipliers = map[domain.Severity]float64{
	domain.SeverityLow:      0.5,
	domain.SeverityMedium:   1.0,
	domain.SeverityHigh:     2.0,
	domain.SeverityCritical: 5.0,
}

// Classify derives severity, impact and priority for a crisis type. When
// severityHint is non-nil it overrides the table severity. All computations
// are pure table lookups; nothing here blocks or randomizes.
func Classify(crisisType domain.CrisisType, severityHint *domain.Severity) (domain.Severity, domain.Impact, int) {
	cls, ok := typeTable[crisisType]
	if !ok {
		cls = defaultClassification
	}

	severity := cls.severity
	if severityHint != nil {
		severity = *severityHint
	}

	impact := domain.Impact{
		Scope:         cls.scope,
		Categories:    append([]domain.ImpactCategory(nil), cls.categories...),
		EstimatedLoss: cls.baseLoss * severityMultipliers[severity],
	}

	return severity, impact, priorityFor(severity, impact)
}

// priorityFor computes the integer priority rank, lower = more urgent.
func priorityFor(severity domain.Severity, impact domain.Impact) int {
	switch severity {
	case domain.SeverityCritical:
		return 1
	case domain.SeverityHigh:
		if impact.Scope == domain.ScopeGlobal {
			return 1
		}
		return 2
	case domain.SeverityMedium:
		if hasCategory(impact.Categories, domain.ImpactFinancial) {
			return 2
		}
		return 3
	}
	return 4
}

func hasCategory(categories []domain.ImpactCategory, want domain.ImpactCategory) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}
