package sitemap

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jane-menu-proxy/internal/clock"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/storage"
	"github.com/JakeFAU/jane-menu-proxy/internal/storage/memory"
)

func twoStores() []menu.StoreConfig {
	return []menu.StoreConfig{
		{ID: 1, PageID: 10, ProxyURL: "https://p.example/a", SitemapURL: "https://p.example/a.xml", StorePath: "a"},
		{ID: 2, PageID: 11, ProxyURL: "https://p.example/b", SitemapURL: "https://p.example/b.xml?x=1&y=2", StorePath: "b"},
	}
}

func newAggregator(t *testing.T, blobs storage.BlobStore, configs ...menu.StoreConfig) (*Aggregator, *memory.Settings) {
	t.Helper()
	settings := memory.NewSettings()
	agg := New(memory.NewConfigStore(configs...), settings, blobs,
		Config{BaseURL: "http://host.example/uploads", EnabledDefault: true},
		clock.Fixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), nil)
	return agg, settings
}

func TestRenderLayout(t *testing.T) {
	t.Parallel()

	want := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap>
    <loc>https://p.example/a.xml</loc>
  </sitemap>
  <sitemap>
    <loc>https://p.example/b.xml?x=1&amp;y=2</loc>
  </sitemap>
</sitemapindex>`
	assert.Equal(t, want, string(Render(twoStores())))
}

func TestRegenerateWritesDeterministicFile(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	agg, _ := newAggregator(t, blobs, twoStores()...)
	ctx := context.Background()

	written, err := agg.Regenerate(ctx)
	require.NoError(t, err)
	require.True(t, written)
	first, err := agg.Read(ctx)
	require.NoError(t, err)

	written, err = agg.Regenerate(ctx)
	require.NoError(t, err)
	require.True(t, written)
	second, err := agg.Read(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Render(twoStores()), first)
}

func TestRegenerateWithoutConfigsWritesNothing(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(context.Background(), ObjectPath, "application/xml", strings.NewReader("stale"))
	require.NoError(t, err)
	agg, _ := newAggregator(t, blobs)

	written, err := agg.Regenerate(context.Background())
	require.NoError(t, err)
	assert.False(t, written)
	exists, err := agg.Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegenerateDisabledRemovesPreviousFile(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	agg, settings := newAggregator(t, blobs, twoStores()...)
	ctx := context.Background()

	written, err := agg.Regenerate(ctx)
	require.NoError(t, err)
	require.True(t, written)

	require.NoError(t, settings.SetBool(ctx, menu.SettingSitemapEnabled, false))
	written, err = agg.Regenerate(ctx)
	require.NoError(t, err)
	assert.False(t, written)

	_, err = agg.Read(ctx)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestSetEnabledRegenerates(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator(t, memory.NewBlobStore(), twoStores()...)
	ctx := context.Background()

	written, err := agg.SetEnabled(ctx, false)
	require.NoError(t, err)
	assert.False(t, written)
	enabled, err := agg.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	written, err = agg.SetEnabled(ctx, true)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestRegenerateBlobFailures(t *testing.T) {
	t.Parallel()

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		blobs := &storage.MockBlobStore{}
		blobs.On("DeletePrefix", mock.Anything, Dir).Return(errors.New("denied"))
		agg, _ := newAggregator(t, blobs, twoStores()...)

		written, err := agg.Regenerate(context.Background())
		require.Error(t, err)
		assert.False(t, written)
		blobs.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("write", func(t *testing.T) {
		t.Parallel()
		blobs := &storage.MockBlobStore{}
		blobs.On("DeletePrefix", mock.Anything, Dir).Return(nil)
		blobs.On("PutObject", mock.Anything, ObjectPath, "application/xml", mock.Anything).Return("", errors.New("quota"))
		agg, _ := newAggregator(t, blobs, twoStores()...)

		written, err := agg.Regenerate(context.Background())
		require.ErrorContains(t, err, "write sitemap")
		assert.False(t, written)
		blobs.AssertExpectations(t)
	})
}

func TestURL(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator(t, memory.NewBlobStore())
	assert.Equal(t, "http://host.example/uploads/jane-menu/sitemap.xml", agg.URL(false))
	assert.Equal(t, "https://host.example/uploads/jane-menu/sitemap.xml", agg.URL(true))
}

func TestEntries(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator(t, memory.NewBlobStore(), twoStores()...)
	entries, err := agg.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Loc: "https://p.example/a.xml", Lastmod: "2024-05-01T12:00:00Z"}, entries[0])

	doc := string(RenderEntries(entries))
	assert.Contains(t, doc, "<lastmod>2024-05-01T12:00:00Z</lastmod>")
	assert.Contains(t, doc, "<loc>https://p.example/b.xml?x=1&amp;y=2</loc>")
}

func TestRobotsGeneratesOnDemand(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	agg, _ := newAggregator(t, blobs, twoStores()...)
	ctx := context.Background()

	out := RobotsTXT(ctx, DefaultRobots, []*Aggregator{agg}, true)
	assert.Equal(t, DefaultRobots+"Sitemap: https://host.example/uploads/jane-menu/sitemap.xml\n", out)
	exists, err := agg.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRobotsSkipsDisabledAndEmptySites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	empty, _ := newAggregator(t, memory.NewBlobStore())
	disabled, settings := newAggregator(t, memory.NewBlobStore(), twoStores()...)
	require.NoError(t, settings.SetBool(ctx, menu.SettingSitemapEnabled, false))
	live, _ := newAggregator(t, memory.NewBlobStore(), twoStores()...)

	out := RobotsTXT(ctx, "", []*Aggregator{empty, disabled, live}, false)
	assert.Equal(t, "Sitemap: http://host.example/uploads/jane-menu/sitemap.xml\n", out)
}
