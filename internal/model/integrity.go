package model

import "time"

type FindingReason string

const (
	ReasonAccountMissing  FindingReason = "ACCOUNT_MISSING"
	ReasonCustomerMissing FindingReason = "CUSTOMER_MISSING"
)

// Finding is an integrity finding. It is reported, never returned as an error.
type Finding struct {
	Xref    CardXref        `json:"xref"`
	Reasons []FindingReason `json:"reasons"`
}

func (f Finding) Kind() ErrorKind {
	return KindIntegrityFinding
}

type IntegrityReport struct {
	Checked    int       `json:"checked"`
	Findings   []Finding `json:"findings"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r IntegrityReport) Healthy() bool {
	return len(r.Findings) == 0
}

// Orphans returns the xref of every finding in report order.
func (r IntegrityReport) Orphans() []CardXref {
	out := make([]CardXref, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, f.Xref)
	}
	return out
}
