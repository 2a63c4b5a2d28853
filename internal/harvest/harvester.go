// Package harvest runs harvesters against an entity with per-job timeouts and
// error isolation, and reports one result per requested harvester.
package harvest

import (
	"context"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/entity"
)

// Info describes a registered harvester.
type Info struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Category    entity.Category `json:"category" yaml:"category"`
	Enabled     bool            `json:"enabled" yaml:"enabled"`
}

// Saver persists artifacts for the job's entity. Saves after the job has
// been abandoned return ErrJobAbandoned.
type Saver interface {
	Save(ctx context.Context, category entity.Category, rec artifact.Record) (string, error)
	SaveRaw(ctx context.Context, source string, data any) (string, error)
}

// Harvester collects facts about one entity from one source.
type Harvester interface {
	Info() Info
	// Harvest returns the record for the entity, typically
	// {source, query, timestamp, <category fields>}.
	Harvest(ctx context.Context, entityName string, saver Saver) (artifact.Document, error)
}

// ArtifactWriter is the subset of artifact.Store used by jobs.
type ArtifactWriter interface {
	Save(ctx context.Context, entityName string, category entity.Category, rec artifact.Record) (string, error)
	SaveRaw(ctx context.Context, source string, data any, tag string) (string, error)
}
