// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// Local heuristic constants. These back-fill scores whenever the remote
// enrichment call fails or returns partial fields.
const (
	impactSecurityMultiplier   = 1.2
	impactComplianceMultiplier = 1.15
	impactHighCriticality      = 1.3
	impactCriticalCriticality  = 1.5

	complexityBase            = 0.5
	complexityManyConditions  = 0.2
	complexityRegexPattern    = 0.1
	complexityAIEnhanced      = 0.3
	complexityHighPattern     = 0.3
	complexityMLModel         = 0.4
	manyConditionsThreshold   = 5

	riskLowConfidenceBelow    = 0.7
	riskSecurityBelow         = 0.9
	riskConditionsAbove       = 10
	riskDependenciesAbove     = 5
	riskSlowExecutionMs       = 30_000
)

// businessImpactHeuristic derives a business-impact score from the
// merged confidence, the match type and the caller's criticality.
func businessImpactHeuristic(match datatypes.MatchResult, bctx datatypes.BusinessContext) float64 {
	impact := match.Confidence
	switch match.Type {
	case "security":
		impact *= impactSecurityMultiplier
	case "compliance":
		impact *= impactComplianceMultiplier
	}
	switch bctx.BusinessCriticality {
	case "high":
		impact *= impactHighCriticality
	case "critical":
		impact *= impactCriticalCriticality
	}
	return clamp01(impact)
}

// complexityHeuristic estimates implementation complexity from rule and
// pattern structure.
func complexityHeuristic(match datatypes.MatchResult, entity datatypes.Entity) float64 {
	complexity := complexityBase
	if len(entity.Conditions) > manyConditionsThreshold {
		complexity += complexityManyConditions
	}
	if hasRegexMarker(match.Metadata[datatypes.MetaPatternText]) {
		complexity += complexityRegexPattern
	}
	if entity.AIEnhanced {
		complexity += complexityAIEnhanced
	}
	if match.Metadata[datatypes.MetaPatternComplexity] == "high" {
		complexity += complexityHighPattern
	}
	if match.Metadata[datatypes.MetaRequiresMLModel] == "true" {
		complexity += complexityMLModel
	}
	return clamp01(complexity)
}

// riskFactorsHeuristic assembles the risk tag set. The result is never
// empty; when no rule fires it is {minimal_risk}.
func riskFactorsHeuristic(match datatypes.MatchResult, entity datatypes.Entity) []string {
	var risks []string
	if match.Confidence < riskLowConfidenceBelow {
		risks = append(risks, datatypes.RiskLowConfidence)
	}
	if match.Type == "security" && match.Confidence < riskSecurityBelow {
		risks = append(risks, datatypes.RiskSecurity)
	}
	if entity.AIEnhanced && !entity.Validated {
		risks = append(risks, datatypes.RiskUnvalidatedAIRule)
	}
	if len(entity.Conditions) > riskConditionsAbove {
		risks = append(risks, datatypes.RiskHighComplexity)
	}
	if entity.ParallelExecution && !entity.ThreadSafe {
		risks = append(risks, datatypes.RiskConcurrency)
	}
	if entity.EstimatedExecMs > riskSlowExecutionMs {
		risks = append(risks, datatypes.RiskPerformanceImpact)
	}
	if len(entity.Dependencies) > riskDependenciesAbove {
		risks = append(risks, datatypes.RiskDependencyComplexity)
	}
	if len(risks) == 0 {
		risks = []string{datatypes.RiskMinimal}
	}
	return risks
}

// hasRegexMarker reports whether pattern text looks like a regular
// expression rather than plain prose.
func hasRegexMarker(text string) bool {
	return text != "" && strings.ContainsAny(text, `^$[]*+?|\`)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
