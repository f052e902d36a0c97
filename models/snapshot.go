package models

import (
	"fmt"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Snapshot resolves an account and its policies into the flat attribute map
// the segment evaluator consumes. Derived attributes are computed here so
// rules never reach into relations: "policy_types" with operator "is" matches
// accounts holding exactly one policy type, "is_any" matches any overlap.
func (a *Account) Snapshot() map[string]utils.Attr {
	attrs := map[string]utils.Attr{
		"email":          utils.TextAttr(a.Email),
		"first_name":     utils.TextAttr(a.FirstName),
		"last_name":      utils.TextAttr(a.LastName),
		"business_name":  utils.TextAttr(a.BusinessName),
		"account_type":   utils.TextAttr(a.AccountType),
		"status":         utils.TextAttr(a.Status),
		"carrier":        utils.TextAttr(a.Carrier),
		"agent_name":     utils.TextAttr(a.AgentName),
		"source":         utils.TextAttr(a.Source),
		"customer_since": utils.DateAttr(a.CustomerSince),
		"renewal_date":   utils.DateAttr(a.RenewalDate),
	}

	var totalPremium float64
	typeSet := make(map[string]bool)
	types := make([]string, 0, len(a.Policies))
	for _, p := range a.Policies {
		if p.Status != "active" {
			continue
		}
		totalPremium += p.Premium
		if !typeSet[p.PolicyType] {
			typeSet[p.PolicyType] = true
			types = append(types, p.PolicyType)
		}
	}
	attrs["policy_count"] = utils.NumberAttr(float64(len(a.Policies)))
	attrs["total_premium"] = utils.NumberAttr(totalPremium)
	attrs["policy_types"] = utils.EnumAttr(types...)
	attrs["policy_type_count"] = utils.NumberAttr(float64(len(types)))
	attrs["policy_renewal_dates"] = policyRenewalAttr(a.Policies)

	return attrs
}

// policyRenewalAttr surfaces the soonest upcoming policy renewal so date
// rules like in_next_days target the next renewal, not an arbitrary one.
func policyRenewalAttr(policies []Policy) utils.Attr {
	var soonest *Policy
	for i := range policies {
		p := &policies[i]
		if p.RenewalDate == nil || p.Status != "active" {
			continue
		}
		if soonest == nil || p.RenewalDate.Before(*soonest.RenewalDate) {
			soonest = p
		}
	}
	if soonest == nil {
		return utils.DateAttr(nil)
	}
	return utils.DateAttr(soonest.RenewalDate)
}

// SnapshotFieldDoc lists the filterable fields for the editing surface.
func SnapshotFieldDoc() []string {
	return []string{
		"email", "first_name", "last_name", "business_name", "account_type",
		"status", "carrier", "agent_name", "source", "customer_since",
		"renewal_date", "policy_count", "total_premium", "policy_types",
		"policy_type_count", "policy_renewal_dates",
	}
}

// DisplayName is the merge-friendly name of the account holder.
func (a *Account) DisplayName() string {
	if a.FirstName != "" {
		return a.FirstName
	}
	if a.BusinessName != "" {
		return a.BusinessName
	}
	return ""
}

// FullName joins first and last names for signatures and logs.
func (a *Account) FullName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return fmt.Sprintf("%s %s", a.FirstName, a.LastName)
	case a.FirstName != "":
		return a.FirstName
	default:
		return a.BusinessName
	}
}
