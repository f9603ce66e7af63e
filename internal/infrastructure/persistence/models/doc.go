// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain types to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: shared persistence fields (BaseModel)
// - source.go: operational and raw source tables the pipeline reads from
// - resolution.go: candidate tables, source links, rule sets, score runs, and recommendations
// - canonical.go: canonical entity tables, candidate links, provenance, and lineage snapshots
package models
