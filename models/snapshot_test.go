package models

import (
	"testing"
	"time"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSnapshotDerivedPolicyAttributes(t *testing.T) {
	account := Account{
		Email:  "dana@example.com",
		Status: "active",
		Policies: []Policy{
			{PolicyType: "auto", Status: "active", Premium: 1200, RenewalDate: datePtr(2025, 9, 1)},
			{PolicyType: "home", Status: "active", Premium: 2400, RenewalDate: datePtr(2025, 7, 15)},
			{PolicyType: "auto", Status: "active", Premium: 800, RenewalDate: datePtr(2025, 12, 1)},
			{PolicyType: "umbrella", Status: "cancelled", Premium: 300, RenewalDate: datePtr(2025, 6, 30)},
		},
	}

	attrs := account.Snapshot()

	if got := attrs["total_premium"].Number; got != 4400 {
		t.Fatalf("total_premium excludes cancelled policies: got %.0f, want 4400", got)
	}
	if got := attrs["policy_type_count"].Number; got != 2 {
		t.Fatalf("policy_type_count counts distinct active types: got %.0f, want 2", got)
	}

	types := attrs["policy_types"].Values
	if len(types) != 2 {
		t.Fatalf("policy_types: got %v", types)
	}

	// Soonest active renewal wins; the cancelled policy's earlier date does not
	renewal := attrs["policy_renewal_dates"].Date
	if renewal == nil || !renewal.Equal(*datePtr(2025, 7, 15)) {
		t.Fatalf("policy_renewal_dates: got %v, want 2025-07-15", renewal)
	}
}

func TestSnapshotFeedsEvaluator(t *testing.T) {
	account := Account{
		Email:       "dana@example.com",
		Status:      "active",
		FirstName:   "Dana",
		Carrier:     "Progressive",
		RenewalDate: datePtr(2025, 6, 25),
		Policies: []Policy{
			{PolicyType: "auto", Status: "active", Premium: 1500},
		},
	}

	spec := utils.FilterSpec{Groups: []utils.FilterGroup{{Rules: []utils.FilterRule{
		{Field: "status", Operator: "equals", Value: "active"},
		{Field: "policy_types", Operator: "is", Value: "auto"},
		{Field: "renewal_date", Operator: "in_next_days", Value: "15"},
	}}}}

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	ok, _ := utils.Evaluate(spec, account.Snapshot(), now)
	if !ok {
		t.Fatalf("account should match the renewal segment")
	}

	account.Policies[0].Status = "cancelled"
	ok, _ = utils.Evaluate(spec, account.Snapshot(), now)
	if ok {
		t.Fatalf("cancelled policy should drop the account from the segment")
	}
}

func TestDisplayAndFullName(t *testing.T) {
	person := Account{FirstName: "Dana", LastName: "Reyes"}
	if person.DisplayName() != "Dana" || person.FullName() != "Dana Reyes" {
		t.Fatalf("person names: %q / %q", person.DisplayName(), person.FullName())
	}

	business := Account{BusinessName: "Reyes Trucking LLC"}
	if business.DisplayName() != "Reyes Trucking LLC" || business.FullName() != "Reyes Trucking LLC" {
		t.Fatalf("business names: %q / %q", business.DisplayName(), business.FullName())
	}
}
