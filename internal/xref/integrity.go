package xref

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
)

// AccountResolver returns the subset of ids that resolve to an existing account.
type AccountResolver interface {
	ResolveAccounts(ctx context.Context, ids []int64) (map[int64]struct{}, error)
}

// CustomerResolver returns the subset of ids that resolve to an existing customer.
type CustomerResolver interface {
	ResolveCustomers(ctx context.Context, ids []int64) (map[int64]struct{}, error)
}

// Validator audits the index against the account and customer collaborators.
// It never mutates the index.
type Validator struct {
	index     *Index
	accounts  AccountResolver
	customers CustomerResolver
}

func NewValidator(index *Index, accounts AccountResolver, customers CustomerResolver) *Validator {
	return &Validator{
		index:     index,
		accounts:  accounts,
		customers: customers,
	}
}

// DetectOrphans returns every entry whose account or customer does not resolve,
// in card number order.
func (v *Validator) DetectOrphans(ctx context.Context) ([]model.CardXref, error) {
	report, err := v.Audit(ctx)
	if err != nil {
		return nil, err
	}
	return report.Orphans(), nil
}

// Audit sweeps a snapshot of the whole index. O(n) in index size.
func (v *Validator) Audit(ctx context.Context) (model.IntegrityReport, error) {
	started := time.Now()
	entries := v.index.Snapshot()
	findings, err := v.CheckEntries(ctx, entries)
	if err != nil {
		return model.IntegrityReport{}, err
	}
	return model.IntegrityReport{
		Checked:    len(entries),
		Findings:   findings,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, nil
}

// CheckEntries reports the findings for the given entries only.
func (v *Validator) CheckEntries(ctx context.Context, entries []model.CardXref) ([]model.Finding, error) {
	findings := make([]model.Finding, 0)
	if len(entries) == 0 {
		return findings, nil
	}

	accountIDs, customerIDs := distinctIDs(entries)

	accounts, err := v.accounts.ResolveAccounts(ctx, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}
	customers, err := v.customers.ResolveCustomers(ctx, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve customers: %w", err)
	}

	for _, x := range entries {
		var reasons []model.FindingReason
		if _, ok := accounts[x.AccountID]; !ok || x.AccountID <= 0 {
			reasons = append(reasons, model.ReasonAccountMissing)
		}
		if _, ok := customers[x.CustomerID]; !ok || x.CustomerID <= 0 {
			reasons = append(reasons, model.ReasonCustomerMissing)
		}
		if len(reasons) > 0 {
			findings = append(findings, model.Finding{Xref: x, Reasons: reasons})
		}
	}
	slices.SortFunc(findings, func(a, b model.Finding) int {
		return strings.Compare(a.Xref.CardNumber, b.Xref.CardNumber)
	})
	return findings, nil
}

// ValidateLink reports whether cardNumber is currently linked to accountID.
// Malformed input and absent cards both yield false.
func (v *Validator) ValidateLink(cardNumber string, accountID int64) bool {
	got, ok, err := v.index.LookupAccountByCard(cardNumber)
	if err != nil || !ok {
		return false
	}
	return got == accountID
}

// ValidateAll is the batch health check. A collaborator failure is logged and
// reported as unhealthy.
func (v *Validator) ValidateAll(ctx context.Context) bool {
	orphans, err := v.DetectOrphans(ctx)
	if err != nil {
		logger.Error("xref integrity check failed", "error", err)
		return false
	}
	if len(orphans) > 0 {
		logger.Warn("xref integrity findings", "orphans", len(orphans))
		return false
	}
	return true
}

func distinctIDs(entries []model.CardXref) ([]int64, []int64) {
	accountSet := make(map[int64]struct{})
	customerSet := make(map[int64]struct{})
	for _, x := range entries {
		if x.AccountID > 0 {
			accountSet[x.AccountID] = struct{}{}
		}
		if x.CustomerID > 0 {
			customerSet[x.CustomerID] = struct{}{}
		}
	}
	return sortedIDs(accountSet), sortedIDs(customerSet)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
