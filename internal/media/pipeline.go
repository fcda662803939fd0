// Package media downloads, compresses and stores listing images.
//
// A [Pipeline] runs four stages in strict sequence, each a bounded fan-out
// over the images of one request:
//
//  1. Download: any permanent failure fails the whole request with a
//     [DownloadError]. A listing with missing images is worse than a
//     rejected import.
//  2. Process: sniff, resize and re-encode. Undecodable images are dropped
//     and logged; encoder failures keep the original bytes.
//  3. Upload: write the compressed and the original object. Every written
//     key is reported to the request's [KeyTracker] so it can be deleted on
//     rollback. Failed uploads drop the image.
//  4. Persist (optional): hand the assets to the caller in batches.
//
// Nothing in this package touches the relational store.
package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/logging"
	"github.com/JonMunkholm/listing-import/internal/workpool"
)

// ObjectStore is the object storage the pipeline writes to.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, keys []string) (int, error)
	URL(key string) string
}

// KeyTracker records what a request created so it can be compensated.
// Implementations must be safe for concurrent use.
type KeyTracker interface {
	RecordUploadedKey(key string)
	RecordImageID(id uuid.UUID)
}

// Asset is a processed and uploaded image, not yet persisted.
type Asset struct {
	ID        uuid.UUID
	SourceURL string
	SortOrder int

	Key      string
	URL      string
	Format   Format
	MIMEType string
	Size     int
	Width    int
	Height   int

	OriginalKey    string
	OriginalURL    string
	OriginalFormat Format
	OriginalSize   int

	Compressed bool
}

// Config sizes the pipeline stages.
type Config struct {
	DownloadConcurrency int
	ProcessConcurrency  int
	UploadConcurrency   int
	PersistBatchSize    int
	Process             ProcessConfig
}

// DefaultConfig returns the stage sizes used in production.
func DefaultConfig() Config {
	return Config{
		DownloadConcurrency: 15,
		ProcessConcurrency:  10,
		UploadConcurrency:   20,
		PersistBatchSize:    50,
		Process: ProcessConfig{
			MaxWidth:    1200,
			Quality:     75,
			SmallBytes:  200 << 10,
			LargeBytes:  8 << 20,
			AVIFTimeout: 10 * time.Second,
			MaxPixels:   50_000_000,
		},
	}
}

// Request is the image set of one listing.
type Request struct {
	URLs           []string
	Folder         Folder
	SellerPublicID string
	Tracker        KeyTracker
}

// Persister stores one batch of assets.
type Persister func(ctx context.Context, batch []Asset) error

// Pipeline runs the media stages. It is safe for concurrent use.
type Pipeline struct {
	cfg        Config
	downloader Downloader
	codec      ImageCodec
	store      ObjectStore
}

// NewPipeline creates a pipeline. codec may be nil, in which case images
// are stored as downloaded.
func NewPipeline(cfg Config, downloader Downloader, codec ImageCodec, store ObjectStore) *Pipeline {
	def := DefaultConfig()
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = def.DownloadConcurrency
	}
	if cfg.ProcessConcurrency <= 0 {
		cfg.ProcessConcurrency = def.ProcessConcurrency
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = def.UploadConcurrency
	}
	if cfg.PersistBatchSize <= 0 {
		cfg.PersistBatchSize = def.PersistBatchSize
	}
	return &Pipeline{
		cfg:        cfg,
		downloader: downloader,
		codec:      codec,
		store:      store,
	}
}

type downloadedItem struct {
	sortOrder int
	url       string
	data      []byte
	format    Format
}

type processedItem struct {
	downloadedItem
	out processed
}

// Process downloads, processes and uploads every distinct URL of req. Assets
// come back ordered by SortOrder, which is the URL's position in req.URLs
// after blanks and repeats are removed. Callers should still correlate by
// SourceURL since dropped images leave gaps.
func (p *Pipeline) Process(ctx context.Context, req Request) ([]Asset, error) {
	if req.Tracker == nil {
		return nil, errors.New("media: request has no key tracker")
	}
	urls := DistinctURLs(req.URLs)
	if len(urls) == 0 {
		return nil, nil
	}

	log := logging.WithFields(ctx, "folder", req.Folder, "images", len(urls))
	start := time.Now()

	downloaded, err := workpool.MapFailFast(ctx, p.cfg.DownloadConcurrency, urls,
		func(ctx context.Context, i int, u string) (downloadedItem, error) {
			got, err := p.downloader.Download(ctx, u)
			if err != nil {
				return downloadedItem{}, err
			}
			return downloadedItem{sortOrder: i, url: u, data: got.Data, format: Sniff(got.Data)}, nil
		})
	if err != nil {
		return nil, err
	}

	processedResults := workpool.Map(ctx, p.cfg.ProcessConcurrency, downloaded,
		func(ctx context.Context, _ int, d downloadedItem) (processedItem, error) {
			out, err := processImage(ctx, p.codec, p.cfg.Process, d.url, d.data, d.format)
			if err != nil {
				return processedItem{}, err
			}
			return processedItem{downloadedItem: d, out: out}, nil
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range workpool.Failed(processedResults) {
		log.Warn("dropping image that could not be processed", "url", downloaded[r.Index].url, "error", r.Err)
	}
	ready := workpool.Succeeded(processedResults)

	uploadResults := workpool.Map(ctx, p.cfg.UploadConcurrency, ready,
		func(ctx context.Context, _ int, item processedItem) (Asset, error) {
			return p.upload(ctx, req, item)
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, r := range workpool.Failed(uploadResults) {
		log.Warn("dropping image that could not be uploaded", "url", ready[r.Index].url, "error", r.Err)
	}
	assets := workpool.Succeeded(uploadResults)

	sort.Slice(assets, func(i, j int) bool { return assets[i].SortOrder < assets[j].SortOrder })

	log.Info("media processed",
		"uploaded", len(assets),
		"dropped", len(urls)-len(assets),
		"duration_ms", time.Since(start).Milliseconds())
	return assets, nil
}

// ProcessAndPersist is Process followed by PersistBatches. Persistence
// errors propagate.
func (p *Pipeline) ProcessAndPersist(ctx context.Context, req Request, persist Persister) ([]Asset, error) {
	assets, err := p.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := PersistBatches(ctx, assets, p.cfg.PersistBatchSize, req.Tracker, persist); err != nil {
		return nil, err
	}
	return assets, nil
}

// BatchSize is the configured persistence batch size.
func (p *Pipeline) BatchSize() int { return p.cfg.PersistBatchSize }

func (p *Pipeline) upload(ctx context.Context, req Request, item processedItem) (Asset, error) {
	id := uuid.New()
	key := CompressedKey(req.Folder, req.SellerPublicID, id, item.out.format)
	originalKey := OriginalKey(req.Folder, req.SellerPublicID, id, item.format)

	if err := p.store.Put(ctx, key, item.out.data, item.out.format.MIMEType()); err != nil {
		return Asset{}, &UploadError{Key: key, Err: err}
	}
	req.Tracker.RecordUploadedKey(key)

	if err := p.store.Put(ctx, originalKey, item.data, item.format.MIMEType()); err != nil {
		// never leave a compressed object without its original
		if _, derr := p.store.Delete(context.WithoutCancel(ctx), []string{key}); derr != nil {
			logging.FromContext(ctx).Warn("failed to delete orphaned compressed image", "key", key, "error", derr)
		}
		return Asset{}, &UploadError{Key: originalKey, Err: err}
	}
	req.Tracker.RecordUploadedKey(originalKey)

	return Asset{
		ID:             id,
		SourceURL:      item.url,
		SortOrder:      item.sortOrder,
		Key:            key,
		URL:            p.store.URL(key),
		Format:         item.out.format,
		MIMEType:       item.out.format.MIMEType(),
		Size:           len(item.out.data),
		Width:          item.out.width,
		Height:         item.out.height,
		OriginalKey:    originalKey,
		OriginalURL:    p.store.URL(originalKey),
		OriginalFormat: item.format,
		OriginalSize:   len(item.data),
		Compressed:     item.out.compressed,
	}, nil
}

// PersistBatches hands assets to persist in batches of size, recording each
// persisted id with tracker. Batches run sequentially on the calling
// goroutine because persist usually writes through a transaction.
func PersistBatches(ctx context.Context, assets []Asset, size int, tracker KeyTracker, persist Persister) error {
	if size <= 0 {
		size = DefaultConfig().PersistBatchSize
	}
	for start := 0; start < len(assets); start += size {
		end := min(start+size, len(assets))
		batch := assets[start:end]
		if err := persist(ctx, batch); err != nil {
			return fmt.Errorf("persist images %d-%d: %w", start+1, end, err)
		}
		if tracker != nil {
			for _, a := range batch {
				tracker.RecordImageID(a.ID)
			}
		}
	}
	return nil
}

// DistinctURLs trims urls and drops blanks and repeats, keeping first
// occurrence order.
func DistinctURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// IndexByURL maps each asset's source URL to the asset.
func IndexByURL(assets []Asset) map[string]Asset {
	m := make(map[string]Asset, len(assets))
	for _, a := range assets {
		m[a.SourceURL] = a
	}
	return m
}
