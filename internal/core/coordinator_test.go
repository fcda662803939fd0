package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listing-import/internal/core"
	_ "github.com/JonMunkholm/listing-import/internal/core/sheets"
	"github.com/JonMunkholm/listing-import/internal/media"
)

// =============================================================================
// In-memory relational store
// =============================================================================

type memState struct {
	images        map[uuid.UUID]media.Asset
	brands        map[string]core.Brand
	addresses     map[uuid.UUID]core.Address
	listings      map[uuid.UUID]core.ListingRecord
	manifest      []core.ManifestItem
	products      []core.ProductRecord
	listingImages map[uuid.UUID][]core.ImageLink
	productImages map[uuid.UUID][]core.ImageLink
	visibility    []core.VisibilityRule
}

func newMemState() *memState {
	return &memState{
		images:        make(map[uuid.UUID]media.Asset),
		brands:        make(map[string]core.Brand),
		addresses:     make(map[uuid.UUID]core.Address),
		listings:      make(map[uuid.UUID]core.ListingRecord),
		listingImages: make(map[uuid.UUID][]core.ImageLink),
		productImages: make(map[uuid.UUID][]core.ImageLink),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.images {
		c.images[k] = v
	}
	for k, v := range s.brands {
		c.brands[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.listingImages {
		c.listingImages[k] = v
	}
	for k, v := range s.productImages {
		c.productImages[k] = v
	}
	c.manifest = append(c.manifest, s.manifest...)
	c.products = append(c.products, s.products...)
	c.visibility = append(c.visibility, s.visibility...)
	return c
}

// memDB runs each transaction on a copy of the state. By default
// transactions run one at a time and the copy is swapped in on commit. With
// concurrent set they overlap, a transaction whose context ended rolls back
// and commit merges only the rows the transaction added.
type memDB struct {
	mu         sync.Mutex
	state      *memState
	fail       func(op string, arg any) error
	commitErr  error
	concurrent bool
	txs        int
}

func newMemDB() *memDB { return &memDB{state: newMemState()} }

func (db *memDB) InTx(ctx context.Context, fn func(ctx context.Context, q core.Queries) error) error {
	if db.concurrent {
		return db.inConcurrentTx(ctx, fn)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txs++

	tx := &memTx{db: db, s: db.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	db.state = tx.s
	return db.commitErr
}

func (db *memDB) inConcurrentTx(ctx context.Context, fn func(ctx context.Context, q core.Queries) error) error {
	db.mu.Lock()
	db.txs++
	base := db.state.clone()
	db.mu.Unlock()

	tx := &memTx{db: db, s: base.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.merge(base, tx.s)
	return db.commitErr
}

// merge adds to s what tx holds beyond base.
func (s *memState) merge(base, tx *memState) {
	for k, v := range tx.images {
		if _, ok := base.images[k]; !ok {
			s.images[k] = v
		}
	}
	for k, v := range tx.brands {
		if _, ok := base.brands[k]; !ok {
			s.brands[k] = v
		}
	}
	for k, v := range tx.addresses {
		if _, ok := base.addresses[k]; !ok {
			s.addresses[k] = v
		}
	}
	for k, v := range tx.listings {
		if _, ok := base.listings[k]; !ok {
			s.listings[k] = v
		}
	}
	for k, v := range tx.listingImages {
		s.listingImages[k] = append(s.listingImages[k], v[len(base.listingImages[k]):]...)
	}
	for k, v := range tx.productImages {
		s.productImages[k] = append(s.productImages[k], v[len(base.productImages[k]):]...)
	}
	s.manifest = append(s.manifest, tx.manifest[len(base.manifest):]...)
	s.products = append(s.products, tx.products[len(base.products):]...)
	s.visibility = append(s.visibility, tx.visibility[len(base.visibility):]...)
}

func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

type memTx struct {
	db *memDB
	s  *memState
}

func (tx *memTx) check(op string, arg any) error {
	if tx.db.fail == nil {
		return nil
	}
	return tx.db.fail(op, arg)
}

func (tx *memTx) InsertImages(_ context.Context, _ uuid.UUID, assets []media.Asset) error {
	if err := tx.check("InsertImages", assets); err != nil {
		return err
	}
	for _, a := range assets {
		tx.s.images[a.ID] = a
	}
	return nil
}

func (tx *memTx) FindBrandsByKey(_ context.Context, keys []string) ([]core.Brand, error) {
	var out []core.Brand
	for _, k := range keys {
		if b, ok := tx.s.brands[k]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (tx *memTx) InsertBrandsSkipExisting(_ context.Context, brands []core.Brand) (int, error) {
	n := 0
	for _, b := range brands {
		if _, ok := tx.s.brands[b.Key]; ok {
			continue
		}
		tx.s.brands[b.Key] = b
		n++
	}
	return n, nil
}

func (tx *memTx) InsertAddress(_ context.Context, _ uuid.UUID, addr core.Address) (uuid.UUID, error) {
	id := uuid.New()
	tx.s.addresses[id] = addr
	return id, nil
}

func (tx *memTx) FindDuplicateListing(_ context.Context, sellerID uuid.UUID, digest string, statuses []string) (*core.ExistingListing, error) {
	for _, l := range tx.s.listings {
		if l.SellerID != sellerID || l.DuplicateCheckHash != digest {
			continue
		}
		for _, st := range statuses {
			if l.Status == st {
				return &core.ExistingListing{ID: l.ID.String(), PublicID: l.PublicID, Title: l.Title, Status: l.Status}, nil
			}
		}
	}
	return nil, nil
}

func (tx *memTx) InsertListing(_ context.Context, l *core.ListingRecord) error {
	if err := tx.check("InsertListing", l); err != nil {
		return err
	}
	tx.s.listings[l.ID] = *l
	return nil
}

func (tx *memTx) InsertManifestItems(_ context.Context, items []core.ManifestItem) error {
	if err := tx.check("InsertManifestItems", items); err != nil {
		return err
	}
	tx.s.manifest = append(tx.s.manifest, items...)
	return nil
}

func (tx *memTx) InsertProduct(_ context.Context, p *core.ProductRecord) error {
	if err := tx.check("InsertProduct", p); err != nil {
		return err
	}
	if p.ParentID != nil {
		found := false
		for _, existing := range tx.s.products {
			if existing.ID == *p.ParentID {
				found = true
				break
			}
		}
		if !found {
			return errors.New("insert or update on table \"products\" violates foreign key constraint")
		}
	}
	tx.s.products = append(tx.s.products, *p)
	return nil
}

func (tx *memTx) LinkListingImages(_ context.Context, listingID uuid.UUID, links []core.ImageLink) error {
	tx.s.listingImages[listingID] = append(tx.s.listingImages[listingID], links...)
	return nil
}

func (tx *memTx) LinkProductImages(_ context.Context, productID uuid.UUID, links []core.ImageLink) error {
	tx.s.productImages[productID] = append(tx.s.productImages[productID], links...)
	return nil
}

func (tx *memTx) InsertVisibilityRules(_ context.Context, rules []core.VisibilityRule) error {
	tx.s.visibility = append(tx.s.visibility, rules...)
	return nil
}

// =============================================================================
// Object store, downloader and scheduler fakes
// =============================================================================

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects { return &memObjects{objects: make(map[string][]byte)} }

func (o *memObjects) Put(_ context.Context, key string, body []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = body
	return nil
}

func (o *memObjects) Delete(_ context.Context, keys []string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := o.objects[k]; ok {
			delete(o.objects, k)
			n++
		}
	}
	return n, nil
}

func (o *memObjects) URL(key string) string { return "https://cdn.test/" + key }

func (o *memObjects) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

type fakeDownloader struct {
	body    []byte
	missing map[string]bool
	calls   atomic.Int64
}

func (d *fakeDownloader) Download(_ context.Context, rawURL string) (*media.Downloaded, error) {
	d.calls.Add(1)
	if d.missing[rawURL] {
		return nil, &media.DownloadError{URL: rawURL, StatusCode: http.StatusNotFound, Attempts: 1}
	}
	return &media.Downloaded{URL: rawURL, Data: d.body, ContentType: "image/png"}, nil
}

type fakeScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (s *fakeScheduler) ScheduleAuctionEnd(_ context.Context, listingID uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, listingID)
	return nil
}

type progressLog struct {
	mu       sync.Mutex
	phases   []core.ImportPhase
	onUpdate func(core.ImportProgress)
}

func (p *progressLog) Update(_ context.Context, pr core.ImportProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onUpdate != nil {
		p.onUpdate(pr)
	}
	if n := len(p.phases); n == 0 || p.phases[n-1] != pr.Phase {
		p.phases = append(p.phases, pr.Phase)
	}
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	db        *memDB
	objects   *memObjects
	downloads *fakeDownloader
	scheduler *fakeScheduler
	progress  *progressLog
	coord     *core.Coordinator
}

func newHarness(t *testing.T, cfg core.CoordinatorConfig) *harness {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	h := &harness{
		db:        newMemDB(),
		objects:   newMemObjects(),
		downloads: &fakeDownloader{body: buf.Bytes(), missing: map[string]bool{}},
		scheduler: &fakeScheduler{},
		progress:  &progressLog{},
	}
	pipeline := media.NewPipeline(media.DefaultConfig(), h.downloads, nil, h.objects)

	coord, err := core.NewCoordinator(cfg, h.db, pipeline, h.objects,
		core.WithScheduler(h.scheduler),
		core.WithProgress(h.progress))
	require.NoError(t, err)
	h.coord = coord
	return h
}

var sellerID = uuid.MustParse("7d1f2c3b-0a4e-4b5c-8d6e-9f0a1b2c3d4e")

func request(kind core.ListingKind, listings, children string) core.ImportRequest {
	req := core.ImportRequest{
		Kind:           kind,
		SellerID:       sellerID,
		SellerPublicID: "S-100",
		Listings:       core.File{Name: "listings.csv", Data: []byte(listings)},
	}
	if children != "" {
		req.Children = &core.File{Name: "children.csv", Data: []byte(children)}
	}
	return req
}

const catalogListing = "NAME,CATEGORY1,CONDITION,PACKAGING,BRAND,IMAGE1,IMAGE2\n" +
	"Summer Tees,Apparel,New,Boxes,Acme,https://img.test/1.png,https://img.test/2.png\n"

const catalogProducts = "SKU,PARENT_SKU,IS_PARENT,NAME,PRICE,QUANTITY,IMAGE1\n" +
	"A,,true,Tee,,,https://img.test/2.png\n" +
	"A-RED,A,false,Tee Red,10.00,5,\n" +
	"A-BLUE,A,false,Tee Blue,$12.00,3,\n"

func lotRequest(names ...string) core.ImportRequest {
	var listings, manifest strings.Builder
	listings.WriteString("LISTING_REF,NAME,CATEGORY1,CONDITION,PACKAGING,PRICE,IMAGE1\n")
	manifest.WriteString("LISTING_REF,DESCRIPTION,QUANTITY,RETAIL_PRICE\n")
	for i, name := range names {
		fmt.Fprintf(&listings, "R%d,%s,Electronics,Customer Returns,Boxes,100,https://img.test/lot%d.png\n", i, name, i)
		fmt.Fprintf(&manifest, "R%d,Item of %s,2,25\n", i, name)
	}
	return request(core.KindLot, listings.String(), manifest.String())
}

// =============================================================================
// Tests
// =============================================================================

func TestNewCoordinator_RejectsBadConfig(t *testing.T) {
	cfg := core.DefaultCoordinatorConfig()
	cfg.Isolation = "per_row"

	_, err := core.NewCoordinator(cfg, nil, nil, nil)

	var cerr *core.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Problems, 4)
}

func TestImport_CatalogParentsBeforeVariants(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())

	res, err := h.coord.Import(context.Background(), request(core.KindCatalog, catalogListing, catalogProducts))
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, 3, res.Created[0].Products)
	assert.Equal(t, 2, res.Created[0].Images)
	assert.Empty(t, res.Failures)

	st := h.db.snapshot()
	require.Len(t, st.listings, 1)
	require.Len(t, st.products, 3)
	assert.Len(t, st.images, 2)
	assert.Equal(t, 4, h.objects.len(), "compressed and original object per image")

	parent := st.products[0]
	assert.True(t, parent.IsParent)
	assert.Equal(t, "A", parent.SKU)
	for _, v := range st.products[1:] {
		require.NotNil(t, v.ParentID)
		assert.Equal(t, parent.ID, *v.ParentID)
	}
	assert.Equal(t, 10.0, *st.products[1].Price)
	assert.Equal(t, 12.0, *st.products[2].Price)

	l := st.listings[res.Created[0].ListingID]
	assert.Equal(t, core.StatusDraft, l.Status)
	require.NotNil(t, l.BrandID)
	require.NotNil(t, l.DefaultImageID)
	assert.Len(t, st.brands, 1)

	links := st.listingImages[l.ID]
	require.Len(t, links, 2)
	assert.True(t, links[0].IsDefault)
	assert.Equal(t, *l.DefaultImageID, links[0].ImageID)
	assert.Len(t, st.productImages[parent.ID], 1)

	assert.Equal(t, []core.ImportPhase{
		core.PhaseReading, core.PhaseValidating, core.PhaseProcessingMedia, core.PhasePersisting, core.PhaseComplete,
	}, h.progress.phases)
}

func TestImport_FailureInsideTransactionLeavesNothing(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	h.db.fail = func(op string, arg any) error {
		if op == "InsertProduct" && arg.(*core.ProductRecord).SKU == "A-BLUE" {
			return errors.New("connection reset by peer")
		}
		return nil
	}

	_, err := h.coord.Import(context.Background(), request(core.KindCatalog, catalogListing, catalogProducts))
	require.Error(t, err)

	var rb *core.RollbackError
	require.ErrorAs(t, err, &rb)
	assert.True(t, rb.DatabaseRolledBack)
	assert.Equal(t, 4, rb.ObjectsTracked)
	assert.Equal(t, 4, rb.ObjectsDeleted)
	assert.False(t, rb.CleanupFailed)

	st := h.db.snapshot()
	assert.Empty(t, st.listings)
	assert.Empty(t, st.products)
	assert.Empty(t, st.images)
	assert.Empty(t, st.brands)
	assert.Zero(t, h.objects.len())
	assert.Equal(t, "DB005", core.MapError(err).Code)
}

func TestImport_DuplicateCatalogListingIsRejected(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	req := request(core.KindCatalog, catalogListing, catalogProducts)

	_, err := h.coord.Import(context.Background(), req)
	require.NoError(t, err)
	objects := h.objects.len()
	downloads := h.downloads.calls.Load()

	_, err = h.coord.Import(context.Background(), req)

	var dup *core.DuplicateDetectedError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "Summer Tees", dup.Existing.Title)
	assert.Equal(t, 1, dup.Row)

	st := h.db.snapshot()
	assert.Len(t, st.listings, 1)
	assert.Equal(t, objects, h.objects.len())
	assert.Equal(t, downloads, h.downloads.calls.Load(), "duplicates are caught before any download")

	for _, l := range st.listings {
		assert.Equal(t, l.DuplicateCheckHash, dup.Digest)
	}
}

func TestImport_DuplicateWithinOneBatch(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	listings := "NAME,CATEGORY1,CONDITION,PACKAGING\n" +
		"Summer Tees,Apparel,New,Boxes\n" +
		" summer tees ,Apparel,New,Boxes\n"

	_, err := h.coord.Import(context.Background(), request(core.KindCatalog, listings, ""))

	var dup *core.DuplicateDetectedError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 2, dup.Row)
	assert.Equal(t, 1, dup.Existing.Row)
	assert.True(t, dup.Existing.CreatedAt.IsZero(), "an unsaved row has no creation time")
	assert.Contains(t, err.Error(), "row 1 of the same upload")
	assert.Empty(t, h.db.snapshot().listings)
}

func TestImport_DownloadFailureRemovesEverything(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	h.downloads.missing["https://img.test/lot1.png"] = true

	res, err := h.coord.Import(context.Background(), lotRequest("First Lot", "Second Lot"))
	assert.Nil(t, res)

	var derr *media.DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusNotFound, derr.StatusCode)
	assert.Equal(t, "MED001", core.MapError(err).Code)

	st := h.db.snapshot()
	assert.Empty(t, st.listings)
	assert.Empty(t, st.images)
	assert.Zero(t, h.objects.len())
	assert.Zero(t, h.db.txs, "no transaction opens when media fails")
}

func TestImport_ToleratePartialKeepsGoodListings(t *testing.T) {
	cfg := core.DefaultCoordinatorConfig()
	cfg.ToleratePartial = true
	h := newHarness(t, cfg)
	h.db.fail = func(op string, arg any) error {
		if op == "InsertListing" && arg.(*core.ListingRecord).Title == "Bad Lot" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	res, err := h.coord.Import(context.Background(), lotRequest("Good Lot", "Bad Lot"))
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "Good Lot", res.Created[0].Title)
	assert.Equal(t, 1, res.Created[0].ManifestItems)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Row)
	assert.Equal(t, "DB007", res.Failures[0].Error.Code)
	require.NotNil(t, res.Failures[0].Error.Rollback)

	st := h.db.snapshot()
	assert.Len(t, st.listings, 1)
	assert.Len(t, st.manifest, 1)
	assert.Equal(t, 2, h.objects.len(), "only the committed listing keeps its objects")
}

func TestImport_FailFastSkipsRemainingListings(t *testing.T) {
	cfg := core.DefaultCoordinatorConfig()
	cfg.ListingConcurrency = 1
	h := newHarness(t, cfg)
	h.db.fail = func(op string, arg any) error {
		if op == "InsertListing" && arg.(*core.ListingRecord).Title == "Bad Lot" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	res, err := h.coord.Import(context.Background(), lotRequest("Bad Lot", "Later Lot"))
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Empty(t, res.Created)
	require.Len(t, res.Failures, 2)
	assert.ErrorIs(t, res.Failures[1].Err, context.Canceled)
	assert.Empty(t, h.db.snapshot().listings)
	assert.Zero(t, h.objects.len())
}

// await blocks until ch closes. It fails the test instead of hanging.
func await(t *testing.T, ch <-chan struct{}, what string) error {
	select {
	case <-ch:
		return nil
	case <-time.After(2 * time.Second):
		t.Errorf("timed out waiting for %s", what)
		return errors.New("timed out waiting for " + what)
	}
}

func TestImport_FailFastLetsRunningListingsFinish(t *testing.T) {
	cfg := core.DefaultCoordinatorConfig()
	cfg.ListingConcurrency = 2
	h := newHarness(t, cfg)
	h.db.concurrent = true

	slowStarted := make(chan struct{})
	failed := make(chan struct{})
	var failOnce sync.Once
	h.progress.onUpdate = func(p core.ImportProgress) {
		if p.Failed > 0 {
			failOnce.Do(func() { close(failed) })
		}
	}
	h.db.fail = func(op string, arg any) error {
		if op != "InsertListing" {
			return nil
		}
		switch arg.(*core.ListingRecord).Title {
		case "Bad Lot":
			if err := await(t, slowStarted, "slow listing"); err != nil {
				return err
			}
			return errors.New("deadlock detected")
		case "Slow Lot":
			close(slowStarted)
			return await(t, failed, "first failure")
		}
		return nil
	}

	res, err := h.coord.Import(context.Background(), lotRequest("Bad Lot", "Slow Lot", "Later Lot"))
	require.Error(t, err)
	require.NotNil(t, res)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "Slow Lot", res.Created[0].Title, "a listing already in its transaction commits")
	require.Len(t, res.Failures, 2)
	assert.Equal(t, 1, res.Failures[0].Row)
	assert.Equal(t, 3, res.Failures[1].Row)
	assert.ErrorIs(t, res.Failures[1].Err, context.Canceled)

	st := h.db.snapshot()
	require.Len(t, st.listings, 1)
	assert.Len(t, st.manifest, 1)
	assert.Equal(t, 2, h.objects.len(), "only the committed listing keeps its objects")
	assert.Equal(t, 2, h.db.txs)
}

func TestImport_CancelledContextRollsBack(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	h.db.concurrent = true

	ctx, cancel := context.WithCancel(context.Background())
	h.db.fail = func(op string, _ any) error {
		if op == "InsertListing" {
			cancel()
		}
		return nil
	}

	_, err := h.coord.Import(ctx, lotRequest("Only Lot"))

	var rb *core.RollbackError
	require.ErrorAs(t, err, &rb)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, rb.DatabaseRolledBack)
	assert.Empty(t, h.db.snapshot().listings)
	assert.Zero(t, h.objects.len())
}

func TestImport_UnknownCommitOutcomeKeepsObjects(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	h.db.commitErr = &core.TransactionError{Op: "commit", Err: errors.New("unexpected EOF"), RolledBack: false}

	_, err := h.coord.Import(context.Background(), lotRequest("Only Lot"))

	var rb *core.RollbackError
	require.ErrorAs(t, err, &rb)
	assert.False(t, rb.DatabaseRolledBack)
	assert.Equal(t, 2, rb.ObjectsTracked)
	assert.Zero(t, rb.ObjectsDeleted)
	assert.Len(t, h.db.snapshot().listings, 1, "the server kept the rows")
	assert.Equal(t, 2, h.objects.len(), "objects the rows may reference are kept")
}

func TestImport_PerBatchRollsBackEveryListing(t *testing.T) {
	cfg := core.DefaultCoordinatorConfig()
	cfg.Isolation = core.IsolationPerBatch
	h := newHarness(t, cfg)
	h.db.fail = func(op string, arg any) error {
		if op == "InsertListing" && arg.(*core.ListingRecord).Title == "Bad Lot" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	_, err := h.coord.Import(context.Background(), lotRequest("Good Lot", "Bad Lot"))

	var rb *core.RollbackError
	require.ErrorAs(t, err, &rb)
	assert.Equal(t, 4, rb.ObjectsDeleted)
	assert.Empty(t, h.db.snapshot().listings)
	assert.Zero(t, h.objects.len())
}

func TestImport_UnknownParentBecomesStandalone(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	products := "SKU,PARENT_SKU,IS_PARENT,NAME,PRICE\n" +
		"B-1,ZZZ,false,Orphan,9.99\n"

	res, err := h.coord.Import(context.Background(), request(core.KindCatalog, catalogListing, products))
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, res.Warnings[0].Row)
	assert.Equal(t, "children.csv", res.Warnings[0].File)
	assert.Contains(t, res.Warnings[0].Message, "ZZZ")

	st := h.db.snapshot()
	require.Len(t, st.products, 2)
	synthetic, variant := st.products[0], st.products[1]
	assert.True(t, synthetic.IsParent)
	assert.Empty(t, synthetic.SKU)
	assert.True(t, variant.IsDefaultVariant)
	assert.Equal(t, "B-1", variant.SKU)
	require.NotNil(t, variant.ParentID)
	assert.Equal(t, synthetic.ID, *variant.ParentID)
}

func TestImport_IncompleteAddressFailsListing(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	listings := "NAME,CATEGORY1,CONDITION,PACKAGING,PRICE,CITY,STATE\n" +
		"Warehouse Lot,Tools,New,Boxes,50,Austin,tx\n"

	_, err := h.coord.Import(context.Background(), request(core.KindLot, listings, ""))

	var eerr *core.EntityResolutionError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "address", eerr.Entity)
	assert.Equal(t, 1, eerr.Row)
	assert.Equal(t, "ENT001", core.MapError(err).Code)
	assert.Empty(t, h.db.snapshot().addresses)
}

func TestImport_AddressAndVisibility(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	listings := "NAME,CATEGORY1,CONDITION,PACKAGING,PRICE,ADDRESS_LINE1,CITY,STATE,VISIBILITY_STATES\n" +
		"Warehouse Lot,Tools,New,Boxes,50,1 Dock Rd,Austin,tx,\"TX, ca\"\n"
	req := request(core.KindLot, listings, "")
	req.Publish = true

	res, err := h.coord.Import(context.Background(), req)
	require.NoError(t, err)

	st := h.db.snapshot()
	l := st.listings[res.Created[0].ListingID]
	assert.Equal(t, core.StatusActive, l.Status)
	require.NotNil(t, l.AddressID)
	assert.Equal(t, "TX", st.addresses[*l.AddressID].State)

	var states []string
	for _, r := range st.visibility {
		assert.Equal(t, l.ID, r.ListingID)
		states = append(states, r.Value)
	}
	assert.Equal(t, []string{"TX", "CA"}, states)
}

func TestImport_AuctionSchedulesEnd(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	listings := "NAME,CATEGORY1,CONDITION,PACKAGING,STARTING_BID,START_DATE,END_DATE\n" +
		"Night Auction,Toys,New,Boxes,$5,2030-01-01,2030-01-08\n"

	res, err := h.coord.Import(context.Background(), request(core.KindAuction, listings, ""))
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, []uuid.UUID{res.Created[0].ListingID}, h.scheduler.ids)
}

func TestImport_ValidationFailsBeforeAnyIO(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	listings := "NAME,CONDITION,PACKAGING,IMAGE1\n" +
		"No Category,New,Boxes,https://img.test/x.png\n"

	_, err := h.coord.Import(context.Background(), request(core.KindCatalog, listings, ""))

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"CATEGORY1"}, verr.MissingColumns)
	assert.Zero(t, h.downloads.calls.Load())
	assert.Zero(t, h.db.txs)
}

func TestImport_UnknownListingRef(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	req := lotRequest("First Lot")
	req.Children.Data = []byte("LISTING_REF,DESCRIPTION\nNOPE,Widget\n")

	_, err := h.coord.Import(context.Background(), req)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, "children.csv", verr.Violations[0].File)
	assert.Equal(t, "LISTING_REF", verr.Violations[0].Field)
}

func TestImport_RejectsBadRequest(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())
	req := request("bundle", catalogListing, "")
	req.Currency = "XYZ"

	_, err := h.coord.Import(context.Background(), req)

	var cerr *core.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Problems, 2)
}

func TestValidate_DryRun(t *testing.T) {
	h := newHarness(t, core.DefaultCoordinatorConfig())

	report := h.coord.Validate(context.Background(), request(core.KindCatalog, catalogListing, catalogProducts))
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.Listings)
	assert.Equal(t, 3, report.Children)
	assert.Equal(t, 2, report.Images)
	assert.Nil(t, report.Error)

	assert.Zero(t, h.db.txs)
	assert.Zero(t, h.downloads.calls.Load())

	report = h.coord.Validate(context.Background(), request(core.KindCatalog, "NAME\nx\n", ""))
	assert.False(t, report.Valid)
	require.NotNil(t, report.Error)
	assert.Equal(t, "VAL004", report.Error.Code)
}
