package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FilterSpec is the population filter of an automation: groups are combined
// with OR, rules inside a group with AND. A spec with zero groups matches no
// accounts; an unconfigured filter must never mean "match all".
type FilterSpec struct {
	Groups []FilterGroup `json:"groups"`
}

// FilterGroup is one AND-group of rules
type FilterGroup struct {
	Rules []FilterRule `json:"rules"`
}

// FilterRule is a single (field, operator, value[, value2]) comparison
type FilterRule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Value2   string `json:"value2,omitempty"`
}

// UnmarshalJSON accepts both the grouped form {"groups":[{"rules":[...]}]}
// and the legacy flat form {"rules":[...]}, which becomes a single group.
func (s *FilterSpec) UnmarshalJSON(data []byte) error {
	var grouped struct {
		Groups []FilterGroup `json:"groups"`
		Rules  []FilterRule  `json:"rules"`
	}
	if err := json.Unmarshal(data, &grouped); err != nil {
		return err
	}
	if grouped.Groups == nil && len(grouped.Rules) > 0 {
		s.Groups = []FilterGroup{{Rules: grouped.Rules}}
		return nil
	}
	s.Groups = grouped.Groups
	return nil
}

// AttrKind tags the type of a resolved account attribute
type AttrKind int

const (
	AttrText AttrKind = iota
	AttrNumber
	AttrDate
	AttrEnum
)

// Attr is one resolved attribute of a candidate account. Enum attributes may
// carry multiple values (e.g. the set of policy types on the account).
type Attr struct {
	Kind   AttrKind
	Text   string
	Number float64
	Date   *time.Time
	Values []string
}

func TextAttr(v string) Attr     { return Attr{Kind: AttrText, Text: v} }
func NumberAttr(v float64) Attr  { return Attr{Kind: AttrNumber, Number: v} }
func DateAttr(v *time.Time) Attr { return Attr{Kind: AttrDate, Date: v} }
func EnumAttr(vs ...string) Attr { return Attr{Kind: AttrEnum, Values: vs} }

// Operator sets per attribute kind. Validation happens once at automation
// save time; Evaluate assumes a validated spec.
var (
	enumOperators = map[string]bool{
		"is": true, "is_not": true, "is_any": true, "is_not_any": true,
	}
	numberOperators = map[string]bool{
		"equals": true, "not_equals": true, "greater_than": true,
		"less_than": true, "between": true,
	}
	dateOperators = map[string]bool{
		"before": true, "after": true, "equals_days_ago": true,
		"in_next_days": true, "in_last_days": true,
		"more_than_days_ago": true, "less_than_days_ago": true,
		"more_than_days_future": true, "is_set": true, "is_not_set": true,
	}
	textOperators = map[string]bool{
		"equals": true, "not_equals": true, "contains": true,
		"not_contains": true, "starts_with": true, "ends_with": true,
		"is_empty": true, "is_not_empty": true,
	}
)

// Validate checks every rule's operator is known. Field names are not checked
// here: the attribute snapshot decides which fields exist, and a rule against
// a missing field simply does not match.
func (s *FilterSpec) Validate() error {
	for gi, group := range s.Groups {
		for ri, rule := range group.Rules {
			if rule.Field == "" {
				return fmt.Errorf("group %d rule %d: field is required", gi, ri)
			}
			if !enumOperators[rule.Operator] && !numberOperators[rule.Operator] &&
				!dateOperators[rule.Operator] && !textOperators[rule.Operator] {
				return fmt.Errorf("group %d rule %d: unknown operator %q", gi, ri, rule.Operator)
			}
		}
	}
	return nil
}

// ParseFilterSpec decodes and validates a filter document in one step.
func ParseFilterSpec(raw []byte) (FilterSpec, error) {
	var spec FilterSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return spec, fmt.Errorf("invalid filter document: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

// Evaluate returns whether the account snapshot matches the filter, and the
// index of the first satisfied group for diagnostics (-1 when unmatched).
// Evaluation is pure: it never touches storage, so the same function serves
// live enrollment decisions and preview counts.
func Evaluate(spec FilterSpec, attrs map[string]Attr, now time.Time) (bool, int) {
	for gi, group := range spec.Groups {
		if len(group.Rules) == 0 {
			continue // an empty group matches nothing
		}
		matched := true
		for _, rule := range group.Rules {
			if !evaluateRule(rule, attrs, now) {
				matched = false
				break
			}
		}
		if matched {
			return true, gi
		}
	}
	return false, -1
}

func evaluateRule(rule FilterRule, attrs map[string]Attr, now time.Time) bool {
	attr, ok := attrs[rule.Field]
	if !ok {
		// is_not_set and is_empty are satisfied by absence
		return rule.Operator == "is_not_set" || rule.Operator == "is_empty"
	}

	switch attr.Kind {
	case AttrEnum:
		return evaluateEnum(rule, attr)
	case AttrNumber:
		return evaluateNumber(rule, attr)
	case AttrDate:
		return evaluateDate(rule, attr, now)
	default:
		return evaluateText(rule, attr)
	}
}

func evaluateEnum(rule FilterRule, attr Attr) bool {
	values := attr.Values
	contains := func(want string) bool {
		for _, v := range values {
			if strings.EqualFold(v, want) {
				return true
			}
		}
		return false
	}
	switch rule.Operator {
	case "is", "equals":
		return len(values) == 1 && contains(rule.Value)
	case "is_not", "not_equals":
		return !contains(rule.Value)
	case "is_any":
		for _, want := range splitList(rule.Value) {
			if contains(want) {
				return true
			}
		}
		return false
	case "is_not_any":
		for _, want := range splitList(rule.Value) {
			if contains(want) {
				return false
			}
		}
		return true
	case "is_empty":
		return len(values) == 0
	case "is_not_empty":
		return len(values) > 0
	}
	return false
}

func evaluateNumber(rule FilterRule, attr Attr) bool {
	want, err := strconv.ParseFloat(rule.Value, 64)
	if err != nil {
		return false
	}
	switch rule.Operator {
	case "equals":
		return attr.Number == want
	case "not_equals":
		return attr.Number != want
	case "greater_than":
		return attr.Number > want
	case "less_than":
		return attr.Number < want
	case "between":
		upper, err := strconv.ParseFloat(rule.Value2, 64)
		if err != nil {
			return false
		}
		return attr.Number >= want && attr.Number <= upper
	}
	return false
}

// evaluateDate compares calendar dates only. Day-offset operators truncate
// both sides to midnight so results do not flap near day boundaries.
func evaluateDate(rule FilterRule, attr Attr, now time.Time) bool {
	switch rule.Operator {
	case "is_set":
		return attr.Date != nil
	case "is_not_set":
		return attr.Date == nil
	}
	if attr.Date == nil {
		return false
	}

	today := truncateToDay(now)
	target := truncateToDay(*attr.Date)

	switch rule.Operator {
	case "before":
		ref, err := parseDate(rule.Value)
		if err != nil {
			return false
		}
		return target.Before(ref)
	case "after":
		ref, err := parseDate(rule.Value)
		if err != nil {
			return false
		}
		return target.After(ref)
	}

	days, err := strconv.Atoi(rule.Value)
	if err != nil {
		return false
	}
	// Positive diff means the date lies in the past.
	diff := int(today.Sub(target).Hours() / 24)

	switch rule.Operator {
	case "equals_days_ago":
		return diff == days
	case "in_next_days":
		return diff <= 0 && -diff <= days
	case "in_last_days":
		return diff >= 0 && diff <= days
	case "more_than_days_ago":
		return diff > days
	case "less_than_days_ago":
		return diff >= 0 && diff < days
	case "more_than_days_future":
		return -diff > days
	}
	return false
}

func evaluateText(rule FilterRule, attr Attr) bool {
	have := strings.ToLower(attr.Text)
	want := strings.ToLower(rule.Value)
	switch rule.Operator {
	case "equals", "is":
		return have == want
	case "not_equals", "is_not":
		return have != want
	case "contains":
		return strings.Contains(have, want)
	case "not_contains":
		return !strings.Contains(have, want)
	case "starts_with":
		return strings.HasPrefix(have, want)
	case "ends_with":
		return strings.HasSuffix(have, want)
	case "is_empty":
		return have == ""
	case "is_not_empty":
		return have != ""
	case "is_any":
		for _, w := range splitList(rule.Value) {
			if have == strings.ToLower(w) {
				return true
			}
		}
		return false
	case "is_not_any":
		for _, w := range splitList(rule.Value) {
			if have == strings.ToLower(w) {
				return false
			}
		}
		return true
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return truncateToDay(t), nil
}
