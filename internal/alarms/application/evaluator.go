package application

import (
	"math"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	readings "sitewatch/internal/readings/domain"
	rules "sitewatch/internal/rules/domain"
)

// defaultTolerance is the absolute slack applied to == and != comparisons
// unless the rule overrides it.
const defaultTolerance = 0.01

// EntityReading is one asset's view of the reading store at evaluation time.
// Window and Previous are only populated when the rule type needs them.
type EntityReading struct {
	Asset    masterdata.Asset
	Site     masterdata.Site
	Latest   *readings.Reading
	Window   []readings.Reading
	Previous *readings.Reading
}

// Snapshot is the set of entity readings visible to one rule's scope.
type Snapshot struct {
	At       time.Time
	Entities []EntityReading
}

// Match is one entity that satisfied a rule.
type Match struct {
	Asset     masterdata.Asset
	Site      masterdata.Site
	ReadingID int64
	Value     float64
	Condition rules.Condition
	Samples   int
}

// MatchResult is the outcome of evaluating one rule against a snapshot.
type MatchResult struct {
	Matched bool
	Matches []Match
}

// Evaluate tests a rule against a snapshot. Each entity in scope is checked
// independently; every satisfying entity becomes its own match and therefore
// its own alarm key. Missing parameters make a condition false, never an
// error.
func Evaluate(rule rules.CompositeRule, snapshot Snapshot) MatchResult {
	var result MatchResult
	for _, entity := range snapshot.Entities {
		if !categoryAllowsAsset(rule.Category, entity.Asset.Type) {
			continue
		}
		match, ok := evaluateEntity(rule, entity, snapshot.At)
		if !ok {
			continue
		}
		result.Matched = true
		result.Matches = append(result.Matches, match)
	}
	return result
}

func evaluateEntity(rule rules.CompositeRule, entity EntityReading, at time.Time) (Match, bool) {
	switch rule.RuleType {
	case rules.RuleTypeHistorical:
		return evaluateHistorical(rule, entity, at)
	case rules.RuleTypeRateChange:
		return evaluateRateChange(rule, entity)
	case rules.RuleTypeComposite:
		return evaluateConditions(rule, entity, rule.Conditions)
	default:
		return evaluateConditions(rule, entity, rule.Conditions[:1])
	}
}

func evaluateConditions(rule rules.CompositeRule, entity EntityReading, conditions []rules.Condition) (Match, bool) {
	if entity.Latest == nil {
		return Match{}, false
	}
	var (
		lastValue     float64
		lastCondition rules.Condition
		resolved      bool
		met           int
	)
	for _, condition := range conditions {
		value, ok := resolveCondition(rule, condition, entity, entity.Latest.Data)
		if !ok {
			continue
		}
		lastValue = value
		lastCondition = condition
		resolved = true
		if compare(value, condition.Comparator, condition.Value, tolerance(rule)) {
			met++
		}
	}

	var triggered bool
	if rule.LogicalOperator == rules.LogicalOr {
		triggered = met > 0
	} else {
		triggered = resolved && met == len(conditions)
	}
	if !triggered {
		return Match{}, false
	}
	return Match{
		Asset:     entity.Asset,
		Site:      entity.Site,
		ReadingID: entity.Latest.ID,
		Value:     lastValue,
		Condition: lastCondition,
	}, true
}

func evaluateHistorical(rule rules.CompositeRule, entity EntityReading, at time.Time) (Match, bool) {
	condition := rule.Conditions[0]
	cutoff := at.Add(-time.Duration(rule.TimeWindowMinutes) * time.Minute)

	var values []float64
	var lastReadingID int64
	for _, reading := range entity.Window {
		if reading.Timestamp.Before(cutoff) || reading.Timestamp.After(at) {
			continue
		}
		value, ok := resolveCondition(rule, condition, entity, reading.Data)
		if !ok {
			continue
		}
		values = append(values, value)
		lastReadingID = reading.ID
	}

	minSamples := rule.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if len(values) < minSamples {
		return Match{}, false
	}

	aggregated := aggregate(rule.Aggregation, values)
	if !compare(aggregated, condition.Comparator, condition.Value, tolerance(rule)) {
		return Match{}, false
	}
	return Match{
		Asset:     entity.Asset,
		Site:      entity.Site,
		ReadingID: lastReadingID,
		Value:     aggregated,
		Condition: condition,
		Samples:   len(values),
	}, true
}

func evaluateRateChange(rule rules.CompositeRule, entity EntityReading) (Match, bool) {
	if entity.Latest == nil || entity.Previous == nil {
		return Match{}, false
	}
	condition := rule.Conditions[0]
	current, ok := resolveCondition(rule, condition, entity, entity.Latest.Data)
	if !ok {
		return Match{}, false
	}
	previous, ok := resolveCondition(rule, condition, entity, entity.Previous.Data)
	if !ok {
		return Match{}, false
	}
	change := math.Abs(current - previous)
	if !compare(change, condition.Comparator, condition.Value, tolerance(rule)) {
		return Match{}, false
	}
	return Match{
		Asset:     entity.Asset,
		Site:      entity.Site,
		ReadingID: entity.Latest.ID,
		Value:     change,
		Condition: condition,
	}, true
}

func resolveCondition(rule rules.CompositeRule, condition rules.Condition, entity EntityReading, data map[string]float64) (float64, bool) {
	if condition.Parameter == "tenant_consumption" && len(entity.Asset.TenantChannels) > 0 {
		var sum float64
		var found bool
		for _, channel := range entity.Asset.TenantChannels {
			if value, ok := data[channel.Channel]; ok {
				sum += value
				found = true
			}
		}
		if found {
			return sum, true
		}
	}
	return rules.ResolveParameter(condition.Parameter, data)
}

func aggregate(kind rules.Aggregation, values []float64) float64 {
	switch kind {
	case rules.AggregationSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case rules.AggregationMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case rules.AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case rules.AggregationCount:
		return float64(len(values))
	default:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}
}

func compare(value float64, comparator rules.Comparator, threshold, tolerance float64) bool {
	switch comparator {
	case rules.ComparatorGreater:
		return value > threshold
	case rules.ComparatorGreaterOrEqual:
		return value >= threshold
	case rules.ComparatorLess:
		return value < threshold
	case rules.ComparatorLessOrEqual:
		return value <= threshold
	case rules.ComparatorEqual:
		return math.Abs(value-threshold) <= tolerance
	case rules.ComparatorNotEqual:
		return math.Abs(value-threshold) > tolerance
	default:
		return false
	}
}

func tolerance(rule rules.CompositeRule) float64 {
	if rule.Tolerance != nil {
		return *rule.Tolerance
	}
	return defaultTolerance
}

// categoryAllowsAsset gates rule categories to the asset types they can
// sensibly read. Unknown categories apply to every asset type.
func categoryAllowsAsset(category string, assetType masterdata.AssetType) bool {
	allowed, ok := categoryAssetTypes[category]
	if !ok {
		return true
	}
	for _, t := range allowed {
		if t == assetType {
			return true
		}
	}
	return false
}

var categoryAssetTypes = map[string][]masterdata.AssetType{
	"Fuel":        {masterdata.AssetFuelLevel},
	"Battery":     {masterdata.AssetDCMeter, masterdata.AssetRectifier},
	"Grid":        {masterdata.AssetACMeter},
	"Temperature": {masterdata.AssetRectifier, masterdata.AssetGenerator},
	"Generator":   {masterdata.AssetGenerator, masterdata.AssetRectifier},
	"Solar":       {masterdata.AssetDCMeter},
}
