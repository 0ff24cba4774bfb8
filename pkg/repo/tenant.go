package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TenantNeo4jRepo is a generic Neo4j-backed repository scoped to exactly one
// tenant. Unlike Neo4jRepo, tenant_id is baked in at construction time, not
// accepted as a method parameter — so no call site can accidentally cross
// tenants (Design Notes: "pseudo-inheritance among repositories").
type TenantNeo4jRepo[T any] struct {
	driver     neo4j.DriverWithContext
	label      string
	tenantID   string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// NewTenantNeo4jRepo constructs a repository that can only ever see rows
// belonging to tenantID.
func NewTenantNeo4jRepo[T any](
	driver neo4j.DriverWithContext,
	tenantID, label, idKey string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
) *TenantNeo4jRepo[T] {
	if idKey == "" {
		idKey = "id"
	}
	return &TenantNeo4jRepo[T]{
		driver:     driver,
		label:      label,
		tenantID:   tenantID,
		idKey:      idKey,
		toMap:      toMap,
		fromRecord: fromRecord,
	}
}

// TenantID returns the tenant this repository instance is bound to.
func (r *TenantNeo4jRepo[T]) TenantID() string { return r.tenantID }

func (r *TenantNeo4jRepo[T]) session(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{})
}

// Get fetches a single row by id, scoped to this repo's tenant.
func (r *TenantNeo4jRepo[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id, tenant_id: $tenant_id}) RETURN n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id, "tenant_id": r.tenantID})
	if err != nil {
		return zero, err
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("%s %s not found for tenant %s", r.label, id, r.tenantID)
	}
	return r.fromRecord(res.Record())
}

// List returns rows for this repo's tenant only.
func (r *TenantNeo4jRepo[T]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	cypher := fmt.Sprintf(
		"MATCH (n:%s {tenant_id: $tenant_id}) RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit",
		r.label, r.idKey,
	)
	res, err := sess.Run(ctx, cypher, map[string]any{
		"tenant_id": r.tenantID, "offset": opts.Offset, "limit": limit,
	})
	if err != nil {
		return nil, err
	}

	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Upsert creates or merges a row by id, stamping tenant_id from the repo
// (never from the entity) so a caller cannot smuggle a different tenant in
// through the entity payload.
func (r *TenantNeo4jRepo[T]) Upsert(ctx context.Context, id string, entity T) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	props["tenant_id"] = r.tenantID
	props[r.idKey] = id

	cypher := fmt.Sprintf(
		"MERGE (n:%s {%s: $id, tenant_id: $tenant_id}) SET n += $props RETURN n",
		r.label, r.idKey,
	)
	res, err := sess.Run(ctx, cypher, map[string]any{
		"id": id, "tenant_id": r.tenantID, "props": props,
	})
	if err != nil {
		return zero, err
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("failed to upsert %s %s", r.label, id)
	}
	return r.fromRecord(res.Record())
}

// Delete removes a row by id, scoped to this repo's tenant.
func (r *TenantNeo4jRepo[T]) Delete(ctx context.Context, id string) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id, tenant_id: $tenant_id}) DETACH DELETE n", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": id, "tenant_id": r.tenantID})
	return err
}
