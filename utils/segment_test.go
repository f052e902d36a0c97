package utils

import (
	"testing"
	"time"
)

var evalNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func daysFromNow(days int) *time.Time {
	t := evalNow.AddDate(0, 0, days)
	return &t
}

func TestEvaluateZeroGroupsMatchesNothing(t *testing.T) {
	attrs := map[string]Attr{"status": TextAttr("active")}

	ok, gi := Evaluate(FilterSpec{}, attrs, evalNow)
	if ok {
		t.Fatalf("empty spec must not match")
	}
	if gi != -1 {
		t.Fatalf("expected group index -1, got %d", gi)
	}

	// A group with no rules is equally inert
	ok, _ = Evaluate(FilterSpec{Groups: []FilterGroup{{}}}, attrs, evalNow)
	if ok {
		t.Fatalf("empty group must not match")
	}
}

func TestEvaluateGroupsAreORed(t *testing.T) {
	spec := FilterSpec{Groups: []FilterGroup{
		{Rules: []FilterRule{{Field: "status", Operator: "equals", Value: "cancelled"}}},
		{Rules: []FilterRule{{Field: "carrier", Operator: "equals", Value: "progressive"}}},
	}}
	attrs := map[string]Attr{
		"status":  TextAttr("active"),
		"carrier": TextAttr("Progressive"),
	}

	ok, gi := Evaluate(spec, attrs, evalNow)
	if !ok {
		t.Fatalf("second group should match")
	}
	if gi != 1 {
		t.Fatalf("expected matching group 1, got %d", gi)
	}
}

func TestEvaluateRulesAreANDed(t *testing.T) {
	spec := FilterSpec{Groups: []FilterGroup{{Rules: []FilterRule{
		{Field: "status", Operator: "equals", Value: "active"},
		{Field: "total_premium", Operator: "greater_than", Value: "5000"},
	}}}}

	attrs := map[string]Attr{
		"status":        TextAttr("active"),
		"total_premium": NumberAttr(3200),
	}
	if ok, _ := Evaluate(spec, attrs, evalNow); ok {
		t.Fatalf("one failing rule must fail the group")
	}

	attrs["total_premium"] = NumberAttr(7500)
	if ok, _ := Evaluate(spec, attrs, evalNow); !ok {
		t.Fatalf("all rules satisfied, group should match")
	}
}

func TestRenewalWindowBoundary(t *testing.T) {
	spec := FilterSpec{Groups: []FilterGroup{{Rules: []FilterRule{
		{Field: "renewal_date", Operator: "in_next_days", Value: "15"},
	}}}}

	tests := []struct {
		name string
		days int
		want bool
	}{
		{"today", 0, true},
		{"14 days out", 14, true},
		{"exactly 15 days out", 15, true},
		{"16 days out", 16, false},
		{"yesterday", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := map[string]Attr{"renewal_date": DateAttr(daysFromNow(tt.days))}
			got, _ := Evaluate(spec, attrs, evalNow)
			if got != tt.want {
				t.Fatalf("renewal %+d days: got %v, want %v", tt.days, got, tt.want)
			}
		})
	}
}

func TestDateOperators(t *testing.T) {
	tests := []struct {
		name string
		rule FilterRule
		attr Attr
		want bool
	}{
		{"equals_days_ago hit", FilterRule{Field: "d", Operator: "equals_days_ago", Value: "30"}, DateAttr(daysFromNow(-30)), true},
		{"equals_days_ago miss", FilterRule{Field: "d", Operator: "equals_days_ago", Value: "30"}, DateAttr(daysFromNow(-29)), false},
		{"in_last_days includes today", FilterRule{Field: "d", Operator: "in_last_days", Value: "7"}, DateAttr(daysFromNow(0)), true},
		{"in_last_days excludes future", FilterRule{Field: "d", Operator: "in_last_days", Value: "7"}, DateAttr(daysFromNow(2)), false},
		{"more_than_days_ago strict", FilterRule{Field: "d", Operator: "more_than_days_ago", Value: "90"}, DateAttr(daysFromNow(-90)), false},
		{"more_than_days_ago hit", FilterRule{Field: "d", Operator: "more_than_days_ago", Value: "90"}, DateAttr(daysFromNow(-91)), true},
		{"less_than_days_ago excludes future", FilterRule{Field: "d", Operator: "less_than_days_ago", Value: "10"}, DateAttr(daysFromNow(3)), false},
		{"more_than_days_future hit", FilterRule{Field: "d", Operator: "more_than_days_future", Value: "60"}, DateAttr(daysFromNow(61)), true},
		{"before", FilterRule{Field: "d", Operator: "before", Value: "2025-06-01"}, DateAttr(daysFromNow(-20)), true},
		{"after", FilterRule{Field: "d", Operator: "after", Value: "2025-06-01"}, DateAttr(daysFromNow(-20)), false},
		{"is_set", FilterRule{Field: "d", Operator: "is_set"}, DateAttr(daysFromNow(0)), true},
		{"is_not_set nil date", FilterRule{Field: "d", Operator: "is_not_set"}, DateAttr(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateRule(tt.rule, map[string]Attr{"d": tt.attr}, evalNow)
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayBoundaryTruncation(t *testing.T) {
	// 23:59 yesterday is still "1 day ago" regardless of clock time
	late := time.Date(2025, 6, 14, 23, 59, 0, 0, time.UTC)
	rule := FilterRule{Field: "d", Operator: "equals_days_ago", Value: "1"}
	if !evaluateRule(rule, map[string]Attr{"d": DateAttr(&late)}, evalNow) {
		t.Fatalf("late-evening timestamp should truncate to yesterday")
	}
}

func TestEnumOperators(t *testing.T) {
	policyTypes := EnumAttr("auto", "home")

	tests := []struct {
		name string
		rule FilterRule
		want bool
	}{
		{"is needs single value", FilterRule{Field: "policy_types", Operator: "is", Value: "auto"}, false},
		{"is_any hit", FilterRule{Field: "policy_types", Operator: "is_any", Value: "flood, home"}, true},
		{"is_any miss", FilterRule{Field: "policy_types", Operator: "is_any", Value: "flood,umbrella"}, false},
		{"is_not_any", FilterRule{Field: "policy_types", Operator: "is_not_any", Value: "flood"}, true},
		{"is_not present value", FilterRule{Field: "policy_types", Operator: "is_not", Value: "HOME"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateRule(tt.rule, map[string]Attr{"policy_types": policyTypes}, evalNow)
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	single := map[string]Attr{"policy_types": EnumAttr("auto")}
	if !evaluateRule(FilterRule{Field: "policy_types", Operator: "is", Value: "Auto"}, single, evalNow) {
		t.Fatalf("is should match a single-valued enum case-insensitively")
	}
}

func TestMissingFieldSemantics(t *testing.T) {
	attrs := map[string]Attr{}

	if evaluateRule(FilterRule{Field: "ghost", Operator: "equals", Value: "x"}, attrs, evalNow) {
		t.Fatalf("missing field must not satisfy a positive operator")
	}
	if !evaluateRule(FilterRule{Field: "ghost", Operator: "is_not_set"}, attrs, evalNow) {
		t.Fatalf("missing field satisfies is_not_set")
	}
	if !evaluateRule(FilterRule{Field: "ghost", Operator: "is_empty"}, attrs, evalNow) {
		t.Fatalf("missing field satisfies is_empty")
	}
}

func TestParseFilterSpecLegacyFlatForm(t *testing.T) {
	spec, err := ParseFilterSpec([]byte(`{"rules":[{"field":"status","operator":"equals","value":"active"}]}`))
	if err != nil {
		t.Fatalf("flat form should parse: %v", err)
	}
	if len(spec.Groups) != 1 || len(spec.Groups[0].Rules) != 1 {
		t.Fatalf("flat rules should become one group, got %+v", spec.Groups)
	}

	grouped, err := ParseFilterSpec([]byte(`{"groups":[{"rules":[{"field":"status","operator":"equals","value":"active"}]},{"rules":[]}]}`))
	if err != nil {
		t.Fatalf("grouped form should parse: %v", err)
	}
	if len(grouped.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(grouped.Groups))
	}
}

func TestValidateRejectsUnknownOperator(t *testing.T) {
	_, err := ParseFilterSpec([]byte(`{"rules":[{"field":"status","operator":"resembles","value":"x"}]}`))
	if err == nil {
		t.Fatalf("unknown operator must fail validation")
	}

	_, err = ParseFilterSpec([]byte(`{"rules":[{"field":"","operator":"equals","value":"x"}]}`))
	if err == nil {
		t.Fatalf("empty field must fail validation")
	}
}

func TestNumberBetween(t *testing.T) {
	rule := FilterRule{Field: "total_premium", Operator: "between", Value: "1000", Value2: "5000"}
	for _, tt := range []struct {
		premium float64
		want    bool
	}{
		{999.99, false},
		{1000, true},
		{5000, true},
		{5000.01, false},
	} {
		got := evaluateRule(rule, map[string]Attr{"total_premium": NumberAttr(tt.premium)}, evalNow)
		if got != tt.want {
			t.Fatalf("premium %.2f: got %v, want %v", tt.premium, got, tt.want)
		}
	}
}
