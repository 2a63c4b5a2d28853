package harvesters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/extract"
	"github.com/JakeFAU/entity-harvester/internal/fetcher"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
	"github.com/JakeFAU/entity-harvester/internal/metrics"
)

const timestampLayout = "2006-01-02 15:04:05"

// Option configures a PageHarvester.
type Option func(*PageHarvester)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *PageHarvester) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *PageHarvester) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// PageHarvester fetches every page of a Source, extracts items with the
// page's candidate selector sets and saves the combined record.
type PageHarvester struct {
	source   Source
	fetcher  fetcher.Fetcher
	strategy *extract.Strategy
	now      func() time.Time
	logger   *zap.Logger
}

var _ harvest.Harvester = (*PageHarvester)(nil)

// NewPageHarvester builds a harvester for src.
func NewPageHarvester(src Source, f fetcher.Fetcher, strategy *extract.Strategy, opts ...Option) *PageHarvester {
	if strategy == nil {
		strategy = extract.New(extract.Config{})
	}
	h := &PageHarvester{
		source:   src,
		fetcher:  f,
		strategy: strategy,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("source", src.ID))
	return h
}

// Info implements harvest.Harvester.
func (h *PageHarvester) Info() harvest.Info {
	return harvest.Info{
		ID:          h.source.ID,
		Name:        h.source.Name,
		Description: h.source.Description,
		Category:    h.source.Category,
		Enabled:     h.source.Enabled,
	}
}

// Harvest implements harvest.Harvester. A page that fails to fetch is noted
// in the record; the harvest fails only when every page fails. The record is
// saved when at least one item or profile field was found.
func (h *PageHarvester) Harvest(ctx context.Context, entityName string, saver harvest.Saver) (artifact.Document, error) {
	query := h.source.Query(entityName)
	items := make([]any, 0)
	profile := make(map[string]any)
	pages := make([]any, 0, len(h.source.Pages))
	var errs []error

	for _, page := range h.source.Pages {
		addr := page.Address(query)
		summary, found, err := h.harvestPage(ctx, page, addr, entityName, saver)
		if err != nil {
			if ctx.Err() != nil || isFatal(err) {
				return nil, err
			}
			h.logger.Warn("page failed", zap.String("site", page.Site), zap.Error(err))
			errs = append(errs, err)
			pages = append(pages, map[string]any{"site": page.Site, "url": addr, "error": err.Error()})
			continue
		}
		for _, item := range found.Items {
			item["site"] = page.Site
			items = append(items, item)
		}
		for k, v := range found.Fields {
			profile[k] = v
		}
		pages = append(pages, summary)
	}
	if len(errs) == len(h.source.Pages) {
		return nil, fmt.Errorf("harvest %s: %w", h.source.ID, errors.Join(errs...))
	}

	doc := artifact.Document{
		"source":             h.source.ID,
		"query":              entityName,
		"timestamp":          h.now().Format(timestampLayout),
		h.source.ItemsField: items,
		"pages":              pages,
	}
	if len(profile) > 0 {
		doc["profile"] = profile
	}
	if len(items) == 0 && len(profile) == 0 {
		h.logger.Info("nothing extracted", zap.String("entity", entityName))
		return doc, nil
	}
	if _, err := saver.Save(ctx, h.source.Category, doc); err != nil {
		return nil, fmt.Errorf("save %s record: %w", h.source.ID, err)
	}
	return doc, nil
}

func (h *PageHarvester) harvestPage(
	ctx context.Context,
	page Page,
	addr string,
	entityName string,
	saver harvest.Saver,
) (map[string]any, extract.Result, error) {
	resp, err := h.fetcher.Fetch(ctx, fetcher.Request{URL: addr, Render: page.Render})
	if err != nil {
		return nil, extract.Result{}, fmt.Errorf("fetch %s: %w", page.Site, err)
	}
	if _, err := saver.SaveRaw(ctx, h.rawSource(page), string(resp.Body)); err != nil {
		return nil, extract.Result{}, fmt.Errorf("save raw %s: %w", page.Site, err)
	}
	pageURL := resp.URL
	if pageURL == "" {
		pageURL = addr
	}
	res := h.strategy.Extract(resp.Body, pageURL, page.Selectors)
	metrics.ObserveExtraction(string(res.Mode))
	h.logger.Debug("page extracted",
		zap.String("site", page.Site),
		zap.String("entity", entityName),
		zap.String("mode", string(res.Mode)),
		zap.Int("items", len(res.Items)),
	)
	summary := map[string]any{
		"site":  page.Site,
		"url":   addr,
		"mode":  string(res.Mode),
		"items": len(res.Items),
	}
	if res.MatchedSet != "" {
		summary["matched_set"] = res.MatchedSet
	}
	return summary, res, nil
}

func (h *PageHarvester) rawSource(page Page) string {
	if len(h.source.Pages) == 1 {
		return h.source.ID
	}
	return h.source.ID + "_" + page.Site
}

// isFatal reports errors that must end the harvest immediately.
func isFatal(err error) bool {
	var writeErr *artifact.WriteError
	return errors.As(err, &writeErr) || errors.Is(err, harvest.ErrJobAbandoned)
}
