package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/entity"
)

// Region SOPA jurisdiction timeframe, in business days
type Region struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	Act              string `json:"act"`
	ResponseTimeDays int    `json:"response_time_days"`
	PaymentTimeDays  int    `json:"payment_time_days"`
}

// Regions supported jurisdictions; the first entry is the fallback
var Regions = []Region{
	{Code: "NSW", Name: "New South Wales", Act: "Building and Construction Industry Security of Payment Act 1999 (NSW)", ResponseTimeDays: 10, PaymentTimeDays: 15},
	{Code: "VIC", Name: "Victoria", Act: "Building and Construction Industry Security of Payment Act 2002 (Vic)", ResponseTimeDays: 10, PaymentTimeDays: 10},
	{Code: "QLD", Name: "Queensland", Act: "Building Industry Fairness (Security of Payment) Act 2017 (Qld)", ResponseTimeDays: 15, PaymentTimeDays: 15},
	{Code: "WA", Name: "Western Australia", Act: "Building and Construction Industry (Security of Payment) Act 2021 (WA)", ResponseTimeDays: 14, PaymentTimeDays: 28},
	{Code: "SA", Name: "South Australia", Act: "Building and Construction Industry Security of Payment Act 2009 (SA)", ResponseTimeDays: 15, PaymentTimeDays: 15},
	{Code: "TAS", Name: "Tasmania", Act: "Building and Construction Industry Security of Payment Act 2009 (Tas)", ResponseTimeDays: 10, PaymentTimeDays: 20},
	{Code: "ACT", Name: "Australian Capital Territory", Act: "Building and Construction Industry (Security of Payment) Act 2009 (ACT)", ResponseTimeDays: 10, PaymentTimeDays: 10},
	{Code: "NT", Name: "Northern Territory", Act: "Construction Contracts (Security of Payments) Act 2004 (NT)", ResponseTimeDays: 10, PaymentTimeDays: 20},
}

// LookupTimeframe finds the region by code (case-insensitive).
// Unknown or empty codes resolve to the first region with ok=false.
func LookupTimeframe(code string) (Region, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, r := range Regions {
		if r.Code == code {
			return r, true
		}
	}
	return Regions[0], false
}

// CertificationDueDate submittedAt + response business days
func CertificationDueDate(submittedAt time.Time, region string) time.Time {
	r, _ := LookupTimeframe(region)
	return AddBusinessDays(submittedAt, r.ResponseTimeDays)
}

// PaymentDueDate submittedAt + payment business days
func PaymentDueDate(submittedAt time.Time, region string) time.Time {
	r, _ := LookupTimeframe(region)
	return AddBusinessDays(submittedAt, r.PaymentTimeDays)
}

// DueState due-date classification
type DueState string

const (
	DueStateOverdue DueState = "overdue"
	DueStateDueSoon DueState = "due_soon"
	DueStateOnTrack DueState = "on_track"
)

// DueSoonWindowDays days remaining at or below which a deadline is due soon
const DueSoonWindowDays = 3

// DueStatus classification of a statutory deadline against now
type DueStatus struct {
	State         DueState  `json:"state"`
	DueDate       time.Time `json:"due_date"`
	DaysRemaining int       `json:"days_remaining"`
	DaysOverdue   int       `json:"days_overdue"`
	Label         string    `json:"label"`
}

// ClassifyDue compares now against due by local calendar day
func ClassifyDue(due, now time.Time) DueStatus {
	days := CalendarDaysBetween(now, due)
	st := DueStatus{DueDate: due}
	switch {
	case days < 0:
		st.State = DueStateOverdue
		st.DaysOverdue = -days
		st.Label = fmt.Sprintf("%d %s overdue", -days, pluralDays(-days))
	case days <= DueSoonWindowDays:
		st.State = DueStateDueSoon
		st.DaysRemaining = days
		if days == 0 {
			st.Label = "Due today"
		} else {
			st.Label = fmt.Sprintf("%d %s remaining", days, pluralDays(days))
		}
	default:
		st.State = DueStateOnTrack
		st.DaysRemaining = days
		st.Label = fmt.Sprintf("%d %s remaining", days, pluralDays(days))
	}
	return st
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

// CertificationStatus nil unless the claim is submitted
func CertificationStatus(claim entity.Claim, region string, now time.Time) *DueStatus {
	if claim.Status != entity.ClaimStatusSubmitted || claim.SubmittedAt == nil {
		return nil
	}
	st := ClassifyDue(CertificationDueDate(*claim.SubmittedAt, region), now)
	return &st
}

// PaymentStatus nil for draft or paid claims, or when submittedAt is absent
func PaymentStatus(claim entity.Claim, region string, now time.Time) *DueStatus {
	if claim.Status == entity.ClaimStatusDraft || claim.Status == entity.ClaimStatusPaid || claim.SubmittedAt == nil {
		return nil
	}
	st := ClassifyDue(PaymentDueDate(*claim.SubmittedAt, region), now)
	return &st
}

// ClaimDeadlines derived SOPA dates for a claim; never persisted
type ClaimDeadlines struct {
	Region              string     `json:"region"`
	RegionFallback      bool       `json:"region_fallback"`
	ResponseTimeDays    int        `json:"response_time_days"`
	PaymentTimeDays     int        `json:"payment_time_days"`
	CertificationDue    *time.Time `json:"certification_due,omitempty"`
	PaymentDue          *time.Time `json:"payment_due,omitempty"`
	CertificationStatus *DueStatus `json:"certification_status"`
	PaymentStatus       *DueStatus `json:"payment_status"`
}

// DeadlinesFor computes both due dates and statuses for a claim
func DeadlinesFor(claim entity.Claim, region string, now time.Time) ClaimDeadlines {
	r, ok := LookupTimeframe(region)
	d := ClaimDeadlines{
		Region:           r.Code,
		RegionFallback:   !ok,
		ResponseTimeDays: r.ResponseTimeDays,
		PaymentTimeDays:  r.PaymentTimeDays,
	}
	if claim.SubmittedAt != nil {
		cert := AddBusinessDays(*claim.SubmittedAt, r.ResponseTimeDays)
		pay := AddBusinessDays(*claim.SubmittedAt, r.PaymentTimeDays)
		d.CertificationDue = &cert
		d.PaymentDue = &pay
	}
	d.CertificationStatus = CertificationStatus(claim, r.Code, now)
	d.PaymentStatus = PaymentStatus(claim, r.Code, now)
	return d
}
