package metrics

import (
	"context"
	"sync"
	"time"

	"photo-library/internal/logging"
)

// Timeout of a single stats query
const collectTimeout = 10 * time.Second

// StatsProvider reports catalog totals.
type StatsProvider interface {
	CatalogStats(ctx context.Context) (Stats, error)
}

// Stats holds the current catalog statistics
type Stats struct {
	Photos          int `db:"photos" json:"photos"`
	Videos          int `db:"videos" json:"videos"`
	Albums          int `db:"albums" json:"albums"`
	TombstonedMedia int `db:"tombstoned_media" json:"tombstonedMedia"`
	LabeledGroups   int `db:"labeled_groups" json:"labeledGroups"`
	UnlabeledGroups int `db:"unlabeled_groups" json:"unlabeledGroups"`
}

// Collector refreshes the catalog gauges on an interval.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	cancel context.CancelFunc
	done   sync.WaitGroup
	once   sync.Once
}

// NewCollector creates a collector polling provider every interval.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{provider: provider, interval: interval}
}

// Start collects once and then on every tick until Stop.
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done.Add(1)
	go func() {
		defer c.done.Done()
		c.run(ctx)
	}()
}

// Stop ends collection and waits for an in-flight query.
func (c *Collector) Stop() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
	c.done.Wait()
}

func (c *Collector) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Collect(ctx); err != nil && ctx.Err() == nil {
			logging.Warn("Failed to collect catalog stats: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect queries the provider once and updates the catalog gauges.
func (c *Collector) Collect(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	stats, err := c.provider.CatalogStats(ctx)
	if err != nil {
		return err
	}
	stats.publish()
	logging.Debug("Catalog stats: %d photos, %d videos, %d albums, %d face groups",
		stats.Photos, stats.Videos, stats.Albums, stats.LabeledGroups+stats.UnlabeledGroups)
	return nil
}

func (s Stats) publish() {
	CatalogMediaTotal.WithLabelValues("photo").Set(float64(s.Photos))
	CatalogMediaTotal.WithLabelValues("video").Set(float64(s.Videos))
	CatalogAlbumsTotal.Set(float64(s.Albums))
	CatalogTombstonesTotal.Set(float64(s.TombstonedMedia))
	CatalogFaceGroupsTotal.WithLabelValues("labeled").Set(float64(s.LabeledGroups))
	CatalogFaceGroupsTotal.WithLabelValues("unlabeled").Set(float64(s.UnlabeledGroups))
}
