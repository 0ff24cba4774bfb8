package metadata

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/pkg/repo"
)

// tierByteQuota maps a tenant's tier to the storage quota S1's QuotaChecker
// enforces (§4.1 E3). A tier absent from this map (or a tenant row that was
// never onboarded) is treated as unlimited.
var tierByteQuota = map[string]int64{
	"free":       5 << 30,   // 5 GiB
	"standard":   50 << 30,  // 50 GiB
	"enterprise": 500 << 30, // 500 GiB
}

// TenantStore is the directory of tenants themselves (§3 "Tenant: root of
// isolation"). Unlike every other store in this package it is not bound to
// one tenant at construction — a tenant row has no tenant_id of its own to
// scope by, so it is the one entity pkg/repo.Neo4jRepo's bare-ID shape (not
// TenantNeo4jRepo's tenant-bound shape) is meant for.
type TenantStore struct {
	repo *repo.Neo4jRepo[domain.Tenant, string]
}

// NewTenantStore builds the tenant directory store.
func NewTenantStore(driver neo4j.DriverWithContext) *TenantStore {
	return &TenantStore{
		repo: repo.NewNeo4jRepo[domain.Tenant, string](driver, "Tenant", tenantToMap, tenantFromRecord),
	}
}

// Get loads one tenant by ID.
func (s *TenantStore) Get(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Create onboards a new tenant row.
func (s *TenantStore) Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	return s.repo.Create(ctx, t)
}

// List returns a page of onboarded tenants.
func (s *TenantStore) List(ctx context.Context, opts repo.ListOpts) ([]domain.Tenant, error) {
	return s.repo.List(ctx, opts)
}

// tenantLookup is the narrow slice of TenantStore TierQuota depends on, so
// tests can fake tenant resolution without a live Neo4j driver.
type tenantLookup interface {
	Get(ctx context.Context, id string) (domain.Tenant, error)
}

// TierQuota implements ingestion.QuotaChecker against the tenant directory's
// tier field (§9 Open Question: "tiers gate quotas").
type TierQuota struct {
	tenants tenantLookup
	used    func(ctx context.Context, tenantID string) (int64, error)
}

// NewTierQuota builds a QuotaChecker that resolves a tenant's byte budget
// from its tier and subtracts usedBytes (typically a storage-usage
// aggregate query) to report what remains.
func NewTierQuota(tenants *TenantStore, usedBytes func(ctx context.Context, tenantID string) (int64, error)) *TierQuota {
	return &TierQuota{tenants: tenants, used: usedBytes}
}

// Remaining reports the bytes left in tenantID's tier quota, or -1 if the
// tenant's tier carries no cap.
func (q *TierQuota) Remaining(ctx context.Context, tenantID string) (int64, error) {
	tenant, err := q.tenants.Get(ctx, tenantID)
	if err != nil {
		return -1, fmt.Errorf("tierquota: load tenant %s: %w", tenantID, err)
	}
	limit, capped := tierByteQuota[tenant.Tier]
	if !capped {
		return -1, nil
	}
	used, err := q.used(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("tierquota: usage lookup for %s: %w", tenantID, err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func tenantToMap(t domain.Tenant) map[string]any {
	return map[string]any{
		"id":   t.ID,
		"name": t.Name,
		"tier": t.Tier,
	}
}

func tenantFromRecord(rec *neo4j.Record) (domain.Tenant, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return domain.Tenant{}, fmt.Errorf("metadata: record missing node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.Tenant{}, fmt.Errorf("metadata: unexpected record shape")
	}
	p := node.Props
	return domain.Tenant{
		ID:   str(p, "id"),
		Name: str(p, "name"),
		Tier: str(p, "tier"),
	}, nil
}
