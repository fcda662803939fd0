package core

// coordinator.go runs one import from raw spreadsheet bytes to committed
// listings.
//
// The flow per batch is:
//  1. Prepare: read both sheets, check headers, validate every row and build
//     listing drafts. Any problem fails the batch before any I/O.
//  2. Media: download, compress and upload the images of every listing.
//     A download failure fails the batch and removes what was uploaded.
//  3. Persist: one transaction per listing (or one for the whole batch).
//     When a transaction fails, the store rolls back its rows and the
//     coordinator deletes the listing's uploaded objects.
//
// Network I/O never happens while a transaction is open.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/logging"
	"github.com/JonMunkholm/listing-import/internal/media"
	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
	"github.com/JonMunkholm/listing-import/internal/workpool"
)

// CoordinatorConfig sizes and tunes the coordinator.
type CoordinatorConfig struct {
	// ListingConcurrency bounds listings in their media or transaction
	// phase at the same time.
	ListingConcurrency int
	// ChildConcurrency bounds child rows assembled at once per listing.
	ChildConcurrency int
	Isolation        Isolation
	// ToleratePartial commits every listing that can be committed and
	// reports the others instead of stopping at the first failure. It has
	// no effect with IsolationPerBatch.
	ToleratePartial bool
	DefaultCurrency string
}

// DefaultCoordinatorConfig returns the production defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ListingConcurrency: 5,
		ChildConcurrency:   20,
		Isolation:          IsolationPerListing,
		DefaultCurrency:    DefaultCurrency,
	}
}

// Coordinator orchestrates imports. It is safe for concurrent use.
type Coordinator struct {
	cfg       CoordinatorConfig
	store     Store
	media     MediaProcessor
	objects   ObjectDeleter
	scheduler AuctionScheduler
	progress  ProgressSink
}

// Option configures optional collaborators.
type Option func(*Coordinator)

// WithScheduler arms auction-end triggers after auction listings commit.
func WithScheduler(s AuctionScheduler) Option {
	return func(c *Coordinator) { c.scheduler = s }
}

// WithProgress reports progress snapshots to sink.
func WithProgress(sink ProgressSink) Option {
	return func(c *Coordinator) { c.progress = sink }
}

// NewCoordinator validates cfg and creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig, store Store, mediaProc MediaProcessor, objects ObjectDeleter, opts ...Option) (*Coordinator, error) {
	def := DefaultCoordinatorConfig()
	if cfg.ListingConcurrency <= 0 {
		cfg.ListingConcurrency = def.ListingConcurrency
	}
	if cfg.ChildConcurrency <= 0 {
		cfg.ChildConcurrency = def.ChildConcurrency
	}
	if cfg.Isolation == "" {
		cfg.Isolation = def.Isolation
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = def.DefaultCurrency
	}

	var problems []string
	if store == nil {
		problems = append(problems, "no relational store")
	}
	if mediaProc == nil {
		problems = append(problems, "no media processor")
	}
	if objects == nil {
		problems = append(problems, "no object store")
	}
	if cfg.Isolation != IsolationPerListing && cfg.Isolation != IsolationPerBatch {
		problems = append(problems, fmt.Sprintf("unknown isolation %q", cfg.Isolation))
	}
	if !IsKnownCurrency(cfg.DefaultCurrency) {
		problems = append(problems, fmt.Sprintf("unknown default currency %q", cfg.DefaultCurrency))
	}
	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}

	c := &Coordinator{
		cfg:     cfg,
		store:   store,
		media:   mediaProc,
		objects: objects,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type importPlan struct {
	req      ImportRequest
	currency string
	listings *spreadsheet.Result
	children *spreadsheet.Result
	drafts   []*listingDraft
}

// Validate parses and validates req without touching any store.
func (c *Coordinator) Validate(ctx context.Context, req ImportRequest) ValidationReport {
	report := ValidationReport{Kind: req.Kind}

	start := time.Now()
	plan, err := c.prepare(ctx, req, nil)
	if err != nil {
		info := Describe(err, "", time.Since(start))
		report.Error = &info
		return report
	}

	report.Valid = true
	report.Listings = len(plan.listings.Rows)
	if plan.children != nil {
		report.Children = len(plan.children.Rows)
	}
	for _, d := range plan.drafts {
		report.Images += len(d.allURLs())
	}
	return report
}

// Import runs req to completion. With ToleratePartial a nil error can come
// with per-listing failures in the result. Without it the first listing
// failure is returned together with the result of the listings that had
// already committed.
func (c *Coordinator) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	start := time.Now()
	if req.ImportID == "" {
		req.ImportID = uuid.NewString()
	}
	ctx = logging.WithImport(ctx, req.ImportID)
	log := logging.FromContext(ctx).With("kind", req.Kind)

	progress := newProgressTracker(c.progress, req)
	progress.phase(ctx, PhaseReading)

	plan, err := c.prepare(ctx, req, progress)
	if err != nil {
		log.Warn("import rejected", "error", err)
		progress.fail(ctx, err)
		return nil, err
	}

	tolerate := c.cfg.ToleratePartial
	if req.ToleratePartial != nil {
		tolerate = *req.ToleratePartial
	}
	if c.cfg.Isolation == IsolationPerBatch {
		tolerate = false
	}

	result := &ImportResult{ImportID: req.ImportID, Kind: req.Kind}
	progress.set(ctx, func(p *ImportProgress) { p.TotalListings = len(plan.drafts) })

	pending := plan.drafts
	if req.Kind == KindCatalog {
		pending, err = c.precheckDuplicates(ctx, plan, result, tolerate)
		if err != nil {
			result.Duration = time.Since(start)
			log.Warn("duplicate listing", "error", err)
			progress.fail(ctx, err)
			return result, err
		}
	}

	progress.phase(ctx, PhaseProcessingMedia)
	if err := c.processMedia(ctx, req, pending); err != nil {
		if _, cerr := c.cleanup(ctx, plan.drafts...); cerr != nil {
			log.Error("cleanup after media failure incomplete", "error", cerr)
		}
		result.Duration = time.Since(start)
		log.Error("media processing failed", "error", err)
		progress.fail(ctx, err)
		return nil, err
	}
	progress.set(ctx, func(p *ImportProgress) {
		for _, d := range pending {
			p.Images += len(d.assets)
		}
	})

	progress.phase(ctx, PhasePersisting)
	if c.cfg.Isolation == IsolationPerBatch {
		err = c.commitBatch(ctx, req, pending, result, progress)
	} else {
		err = c.commitEach(ctx, req, pending, result, progress, tolerate)
	}
	result.Duration = time.Since(start)

	c.scheduleAuctions(ctx, req, pending)

	if err != nil {
		log.Error("import failed",
			"created", len(result.Created),
			"failed", len(result.Failures),
			"duration_ms", result.Duration.Milliseconds(),
			"error", err)
		progress.fail(ctx, err)
		return result, err
	}

	log.Info("import complete",
		"created", len(result.Created),
		"failed", len(result.Failures),
		"warnings", len(result.Warnings),
		"duration_ms", result.Duration.Milliseconds())
	progress.complete(ctx, result)
	return result, nil
}

func (c *Coordinator) prepare(ctx context.Context, req ImportRequest, progress *progressTracker) (*importPlan, error) {
	currency, err := c.checkRequest(req)
	if err != nil {
		return nil, err
	}

	listingSchema, ok := Get(req.Kind.ListingSheet())
	if !ok {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("no sheet schema registered for %s", req.Kind.ListingSheet())}}
	}
	childSchema, ok := Get(req.Kind.ChildSheet())
	if !ok {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("no sheet schema registered for %s", req.Kind.ChildSheet())}}
	}

	plan := &importPlan{req: req, currency: currency}

	plan.listings, err = spreadsheet.Read(req.Listings.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Listings.Name, err)
	}
	if req.Children != nil && len(req.Children.Data) > 0 {
		plan.children, err = spreadsheet.Read(req.Children.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", req.Children.Name, err)
		}
	}

	progress.phase(ctx, PhaseValidating)

	listingValidator := NewRowValidator(listingSchema, req.Listings.Name)
	var childValidator *RowValidator
	if plan.children != nil {
		childValidator = NewRowValidator(childSchema, req.Children.Name)
	}

	// Headers of both sheets are checked before any row.
	headerErrs := []*ValidationError{listingValidator.ValidateHeaders(plan.listings.Index)}
	if childValidator != nil {
		headerErrs = append(headerErrs, childValidator.ValidateHeaders(plan.children.Index))
	}
	if verr := mergeValidation(headerErrs...); verr != nil {
		return nil, verr
	}

	rowErrs := []*ValidationError{asValidationError(listingValidator.Validate(plan.listings))}
	if childValidator != nil {
		rowErrs = append(rowErrs, asValidationError(childValidator.Validate(plan.children)))
	}
	if verr := mergeValidation(rowErrs...); verr != nil {
		return nil, verr
	}

	builder := &draftBuilder{req: req, currency: currency}
	plan.drafts = builder.build(plan.listings, plan.children)
	if len(builder.violations) > 0 {
		return nil, &ValidationError{Violations: builder.violations}
	}
	return plan, nil
}

func asValidationError(err error) *ValidationError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return nil
}

// checkRequest returns the currency to fall back on.
func (c *Coordinator) checkRequest(req ImportRequest) (string, error) {
	var problems []string
	if _, ok := ParseListingKind(string(req.Kind)); !ok {
		problems = append(problems, fmt.Sprintf("unknown listing type %q", req.Kind))
	}
	if req.SellerID == uuid.Nil {
		problems = append(problems, "seller id is required")
	}
	if strings.TrimSpace(req.SellerPublicID) == "" {
		problems = append(problems, "seller public id is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = c.cfg.DefaultCurrency
	} else if !IsKnownCurrency(currency) {
		problems = append(problems, fmt.Sprintf("unknown currency %q", req.Currency))
	}

	if len(problems) > 0 {
		return "", &ConfigurationError{Problems: problems}
	}
	return currency, nil
}

// precheckDuplicates fails catalog listings whose digest matches a live
// listing, or an earlier row of the same batch, before any object is
// uploaded. The check is repeated inside each listing's transaction.
func (c *Coordinator) precheckDuplicates(ctx context.Context, plan *importPlan, result *ImportResult, tolerate bool) ([]*listingDraft, error) {
	type hit struct {
		draft *listingDraft
		err   *DuplicateDetectedError
	}
	var hits []hit

	seen := make(map[string]*listingDraft, len(plan.drafts))
	err := c.store.InTx(ctx, func(ctx context.Context, q Queries) error {
		detector := NewDuplicateDetector(q)
		for _, d := range plan.drafts {
			if first, ok := seen[d.listing.DuplicateCheckHash]; ok {
				hits = append(hits, hit{d, &DuplicateDetectedError{
					Row:    d.row.Index,
					Digest: d.listing.DuplicateCheckHash,
					Existing: ExistingListing{
						ID:       first.listing.ID.String(),
						PublicID: first.listing.PublicID,
						Title:    first.listing.Title,
						Status:   first.listing.Status,
						Row:      first.row.Index,
					},
				}})
				continue
			}
			seen[d.listing.DuplicateCheckHash] = d

			err := detector.CheckListing(ctx, &d.listing)
			var dup *DuplicateDetectedError
			if errors.As(err, &dup) {
				hits = append(hits, hit{d, dup})
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return plan.drafts, nil
	}
	if !tolerate {
		return nil, hits[0].err
	}

	rejected := make(map[*listingDraft]bool, len(hits))
	for _, h := range hits {
		rejected[h.draft] = true
		result.Failures = append(result.Failures, ListingFailure{
			Row:   h.draft.row.Index,
			Title: h.draft.listing.Title,
			Error: Describe(h.err, h.draft.file, 0),
			Err:   h.err,
		})
	}
	pending := make([]*listingDraft, 0, len(plan.drafts)-len(hits))
	for _, d := range plan.drafts {
		if !rejected[d] {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// processMedia runs the media pipeline for every draft. The first failure
// cancels the rest and is returned.
func (c *Coordinator) processMedia(ctx context.Context, req ImportRequest, drafts []*listingDraft) error {
	return workpool.EachFailFast(ctx, c.cfg.ListingConcurrency, drafts,
		func(ctx context.Context, _ int, d *listingDraft) error {
			assets, err := c.media.Process(ctx, media.Request{
				URLs:           d.allURLs(),
				Folder:         req.Kind.Folder(),
				SellerPublicID: req.SellerPublicID,
				Tracker:        d.tc,
			})
			if err != nil {
				return fmt.Errorf("listing row %d: %w", d.row.Index, err)
			}
			d.assets = assets
			return nil
		})
}

// errNotAttempted marks listings skipped after another listing failed.
var errNotAttempted = fmt.Errorf("listing not attempted after an earlier failure: %w", context.Canceled)

func (c *Coordinator) commitEach(ctx context.Context, req ImportRequest, drafts []*listingDraft, result *ImportResult, progress *progressTracker, tolerate bool) error {
	// A failure stops listings that have not begun. Transactions already
	// running keep the caller's context and finish.
	var stopped atomic.Bool
	var once sync.Once
	var firstErr error

	results := workpool.Map(ctx, c.cfg.ListingConcurrency, drafts,
		func(ctx context.Context, _ int, d *listingDraft) (ListingOutcome, error) {
			if stopped.Load() {
				return ListingOutcome{}, workpool.ErrNotStarted
			}
			out, err := c.commitListing(ctx, req, d)
			if err != nil {
				if !tolerate {
					once.Do(func() {
						firstErr = err
						stopped.Store(true)
					})
				}
				progress.set(ctx, func(p *ImportProgress) { p.Failed++ })
				return out, err
			}
			progress.set(ctx, func(p *ImportProgress) { p.Committed++ })
			return out, nil
		})

	for i, r := range results {
		d := drafts[i]
		if r.Err == nil {
			result.Created = append(result.Created, r.Value)
			result.Warnings = append(result.Warnings, d.warnings...)
			continue
		}

		err := r.Err
		if errors.Is(err, workpool.ErrNotStarted) {
			err = errNotAttempted
			if _, cerr := c.cleanup(ctx, d); cerr != nil {
				logging.FromContext(ctx).Warn("cleanup of skipped listing incomplete", "listing_row", d.row.Index, "error", cerr)
			}
		}
		result.Failures = append(result.Failures, ListingFailure{
			Row:   d.row.Index,
			Title: d.listing.Title,
			Error: Describe(err, d.file, 0),
			Err:   err,
		})
	}

	return firstErr
}

func (c *Coordinator) commitBatch(ctx context.Context, req ImportRequest, drafts []*listingDraft, result *ImportResult, progress *progressTracker) error {
	var outcomes []ListingOutcome
	err := c.store.InTx(ctx, func(ctx context.Context, q Queries) error {
		outcomes = outcomes[:0]
		for _, d := range drafts {
			out, err := c.writeListing(ctx, q, req, d)
			if err != nil {
				return fmt.Errorf("listing row %d: %w", d.row.Index, err)
			}
			outcomes = append(outcomes, out)
		}
		return nil
	})
	if err != nil {
		for _, d := range drafts {
			d.tc.resetRelational()
		}
		rb := c.compensate(ctx, err, drafts...)
		progress.set(ctx, func(p *ImportProgress) { p.Failed = len(drafts) })
		return rb
	}

	for _, d := range drafts {
		d.tc.MarkCommitted()
		result.Warnings = append(result.Warnings, d.warnings...)
	}
	result.Created = append(result.Created, outcomes...)
	progress.set(ctx, func(p *ImportProgress) { p.Committed = len(drafts) })
	return nil
}

// commitListing writes one listing in its own transaction and compensates
// on failure.
func (c *Coordinator) commitListing(ctx context.Context, req ImportRequest, d *listingDraft) (ListingOutcome, error) {
	log := logging.WithFields(ctx, "listing_row", d.row.Index, "phase", PhasePersisting)
	start := time.Now()

	var out ListingOutcome
	err := c.store.InTx(ctx, func(ctx context.Context, q Queries) error {
		var err error
		out, err = c.writeListing(ctx, q, req, d)
		return err
	})
	if err != nil {
		op := d.tc.Operation()
		d.tc.resetRelational()
		rb := c.compensate(ctx, err, d)
		log.Error("listing rolled back",
			"operation", op,
			"database_rolled_back", rb.DatabaseRolledBack,
			"objects_deleted", rb.ObjectsDeleted,
			"cleanup_failed", rb.CleanupFailed,
			"error", err)
		return ListingOutcome{}, rb
	}

	d.tc.MarkCommitted()
	log.Info("listing committed",
		"listing_id", out.ListingID,
		"images", out.Images,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// writeListing performs every write of one listing on q. It runs on the
// goroutine that owns the transaction.
func (c *Coordinator) writeListing(ctx context.Context, q Queries, req ImportRequest, d *listingDraft) (ListingOutcome, error) {
	tc := d.tc
	d.warnings = nil
	l := d.listing

	if req.Kind == KindCatalog {
		tc.SetOperation("duplicate check")
		if err := NewDuplicateDetector(q).CheckListing(ctx, &l); err != nil {
			return ListingOutcome{}, err
		}
	}

	tc.SetOperation("persist images")
	err := media.PersistBatches(ctx, d.assets, c.media.BatchSize(), tc, func(ctx context.Context, batch []media.Asset) error {
		return q.InsertImages(ctx, req.SellerID, batch)
	})
	if err != nil {
		return ListingOutcome{}, err
	}
	byURL := media.IndexByURL(d.assets)

	tc.SetOperation("resolve brands")
	resolver := NewEntityResolver(q, req.SellerID, tc)
	if err := resolver.PrimeBrands(ctx, d.brandNames()); err != nil {
		return ListingOutcome{}, err
	}
	if l.BrandID, err = resolver.ResolveBrand(ctx, d.brand); err != nil {
		return ListingOutcome{}, err
	}

	if !d.address.IsZero() {
		tc.SetOperation("resolve address")
		id, ok, err := resolver.ResolveAddress(ctx, d.address)
		if err != nil {
			return ListingOutcome{}, err
		}
		if !ok {
			return ListingOutcome{}, &EntityResolutionError{
				Entity: "address",
				Row:    d.row.Index,
				Reason: ColAddressLine1 + " and " + ColCity + " are required when an address is given",
			}
		}
		l.AddressID = id
	}

	links := imageLinks(d.imageURLs, byURL)
	if a, ok := firstAsset(d.allURLs(), byURL); ok {
		l.DefaultImageID = &a.ID
	}

	tc.SetOperation("insert listing")
	if err := q.InsertListing(ctx, &l); err != nil {
		return ListingOutcome{}, fmt.Errorf("insert listing: %w", err)
	}
	tc.RecordListingID(l.ID)

	out := ListingOutcome{
		Row:       d.row.Index,
		ListingID: l.ID,
		PublicID:  l.PublicID,
		Title:     l.Title,
		Images:    len(d.assets),
	}

	switch req.Kind {
	case KindCatalog:
		tc.SetOperation("insert products")
		n, err := c.writeProducts(ctx, q, resolver, d, l.ID, byURL)
		if err != nil {
			return ListingOutcome{}, err
		}
		out.Products = n
	default:
		tc.SetOperation("insert manifest")
		n, err := c.writeManifest(ctx, q, resolver, d, l.ID, byURL)
		if err != nil {
			return ListingOutcome{}, err
		}
		out.ManifestItems = n
	}

	if len(links) > 0 {
		tc.SetOperation("link images")
		if err := q.LinkListingImages(ctx, l.ID, links); err != nil {
			return ListingOutcome{}, fmt.Errorf("link listing images: %w", err)
		}
	}

	if len(d.visibility) > 0 {
		tc.SetOperation("insert visibility rules")
		rules := make([]VisibilityRule, len(d.visibility))
		for i, r := range d.visibility {
			r.ID = uuid.New()
			r.ListingID = l.ID
			rules[i] = r
		}
		if err := q.InsertVisibilityRules(ctx, rules); err != nil {
			return ListingOutcome{}, fmt.Errorf("insert visibility rules: %w", err)
		}
	}

	tc.SetOperation("commit")
	d.listing = l
	return out, nil
}

func (c *Coordinator) writeManifest(ctx context.Context, q Queries, brands *EntityResolver, d *listingDraft, listingID uuid.UUID, byURL map[string]media.Asset) (int, error) {
	if len(d.manifest) == 0 {
		return 0, nil
	}

	items, err := workpool.MapFailFast(ctx, c.cfg.ChildConcurrency, d.manifest,
		func(_ context.Context, _ int, m manifestDraft) (ManifestItem, error) {
			item := m.item
			item.ListingID = listingID
			item.BrandID = brands.cachedBrand(m.brand)
			if a, ok := firstAsset(m.imageURLs, byURL); ok {
				item.ImageID = &a.ID
			}
			return item, nil
		})
	if err != nil {
		return 0, err
	}

	if err := q.InsertManifestItems(ctx, items); err != nil {
		return 0, fmt.Errorf("insert manifest items: %w", err)
	}
	return len(items), nil
}

type productLink struct {
	productID uuid.UUID
	urls      []string
}

// writeProducts inserts parents first and variants second. Rows that are
// neither become a synthetic parent plus one default variant; so do
// variants whose parent SKU names no parent row, with a warning.
func (c *Coordinator) writeProducts(ctx context.Context, q Queries, brands *EntityResolver, d *listingDraft, listingID uuid.UUID, byURL map[string]media.Asset) (int, error) {
	if len(d.products) == 0 {
		return 0, nil
	}

	parentSKUs := make(map[string]bool)
	for _, p := range d.products {
		if p.rec.IsParent && p.rec.SKU != "" {
			parentSKUs[strings.ToUpper(p.rec.SKU)] = true
		}
	}

	var parents, variants, standalone []productDraft
	for _, p := range d.products {
		switch {
		case p.rec.IsParent:
			parents = append(parents, p)
		case p.parentSKU != "" && parentSKUs[strings.ToUpper(p.parentSKU)]:
			variants = append(variants, p)
		case p.parentSKU != "":
			d.warnings = append(d.warnings, Warning{
				File:    d.childFile,
				Row:     p.rec.SourceRow,
				Message: fmt.Sprintf("%s %q does not match a parent product; imported as a standalone product", ColParentSKU, p.parentSKU),
			})
			p.parentSKU = ""
			standalone = append(standalone, p)
		default:
			standalone = append(standalone, p)
		}
	}

	fill := func(p productDraft) ProductRecord {
		rec := p.rec
		rec.ListingID = listingID
		rec.BrandID = brands.cachedBrand(p.brand)
		return rec
	}

	// Parents: real parent rows, then one synthetic parent per standalone row.
	parentSources := append(append([]productDraft(nil), parents...), standalone...)
	parentRecs, err := workpool.MapFailFast(ctx, c.cfg.ChildConcurrency, parentSources,
		func(_ context.Context, i int, p productDraft) (ProductRecord, error) {
			rec := fill(p)
			if i >= len(parents) {
				rec.ID = uuid.New()
				rec.SKU = ""
				rec.IsParent = true
				rec.Price = nil
				rec.Quantity = nil
			}
			return rec, nil
		})
	if err != nil {
		return 0, err
	}

	parentIDs := make(map[string]uuid.UUID, len(parents))
	var links []productLink
	for i := range parentRecs {
		if err := q.InsertProduct(ctx, &parentRecs[i]); err != nil {
			return 0, fmt.Errorf("insert parent product row %d: %w", parentRecs[i].SourceRow, err)
		}
		if i < len(parents) {
			parentIDs[strings.ToUpper(parentRecs[i].SKU)] = parentRecs[i].ID
		}
		links = append(links, productLink{productID: parentRecs[i].ID, urls: parentSources[i].imageURLs})
	}

	// Variants: real variant rows, then the default variant of each
	// standalone row.
	variantSources := append(append([]productDraft(nil), variants...), standalone...)
	variantRecs, err := workpool.MapFailFast(ctx, c.cfg.ChildConcurrency, variantSources,
		func(_ context.Context, i int, p productDraft) (ProductRecord, error) {
			rec := fill(p)
			rec.IsParent = false
			if i < len(variants) {
				id := parentIDs[strings.ToUpper(p.parentSKU)]
				rec.ParentID = &id
			} else {
				id := parentRecs[len(parents)+i-len(variants)].ID
				rec.ParentID = &id
				rec.IsDefaultVariant = true
			}
			return rec, nil
		})
	if err != nil {
		return 0, err
	}

	for i := range variantRecs {
		if err := q.InsertProduct(ctx, &variantRecs[i]); err != nil {
			return 0, fmt.Errorf("insert product row %d: %w", variantRecs[i].SourceRow, err)
		}
		if i < len(variants) {
			links = append(links, productLink{productID: variantRecs[i].ID, urls: variantSources[i].imageURLs})
		}
	}

	for _, link := range links {
		pl := imageLinks(link.urls, byURL)
		if len(pl) == 0 {
			continue
		}
		if err := q.LinkProductImages(ctx, link.productID, pl); err != nil {
			return 0, fmt.Errorf("link product images: %w", err)
		}
	}

	return len(parentRecs) + len(variantRecs), nil
}

// imageLinks links the uploaded assets of urls in url order. The first
// linked image is the default.
func imageLinks(urls []string, byURL map[string]media.Asset) []ImageLink {
	var links []ImageLink
	for _, u := range media.DistinctURLs(urls) {
		a, ok := byURL[u]
		if !ok {
			continue
		}
		links = append(links, ImageLink{ImageID: a.ID, SortOrder: len(links), IsDefault: len(links) == 0})
	}
	return links
}

func firstAsset(urls []string, byURL map[string]media.Asset) (media.Asset, bool) {
	for _, u := range urls {
		if a, ok := byURL[strings.TrimSpace(u)]; ok {
			return a, true
		}
	}
	return media.Asset{}, false
}

// scheduleAuctions arms the end trigger of every committed auction with an
// end time. Failures are logged and never fail the import.
func (c *Coordinator) scheduleAuctions(ctx context.Context, req ImportRequest, drafts []*listingDraft) {
	if c.scheduler == nil || req.Kind != KindAuction {
		return
	}
	for _, d := range drafts {
		if !d.tc.Committed() || d.listing.EndsAt == nil {
			continue
		}
		if err := c.scheduler.ScheduleAuctionEnd(ctx, d.listing.ID, *d.listing.EndsAt); err != nil {
			logging.WithFields(ctx, "listing_id", d.listing.ID, "listing_row", d.row.Index).
				Warn("failed to schedule auction end", "error", err)
		}
	}
}
