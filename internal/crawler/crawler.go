package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tomgould/Scrape/internal/filter"
	"github.com/tomgould/Scrape/internal/parser"
	"github.com/tomgould/Scrape/internal/types"
)

// Lister fetches the body of a directory listing page
type Lister interface {
	FetchListing(ctx context.Context, rawURL string) ([]byte, error)
}

// Crawler walks directory listings and collects downloadable files
type Crawler struct {
	config types.Config
	lister Lister
	filter *filter.Filter
	logger *slog.Logger

	// exists reports whether a final path is already on disk
	exists func(path string) bool
}

// traversal is the state owned by one Discover call
type traversal struct {
	visited  *VisitedSet
	emitted  map[string]struct{}
	items    []types.DownloadItem
	listings int
	failures int
}

// New creates a crawler. config is expected to be normalized.
func New(config types.Config, lister Lister, logger *slog.Logger) *Crawler {
	return &Crawler{
		config: config,
		lister: lister,
		filter: filter.New(config.ExcludedPaths, config.ExcludedFilenames, config.SearchTerms),
		logger: types.LoggerOrDiscard(logger),
		exists: fileExists,
	}
}

// Discover crawls every target depth-first in order and returns the files
// that passed filtering and are not yet on disk. On cancellation it returns
// what it has found so far together with the context error.
func (c *Crawler) Discover(ctx context.Context, targets []types.ScrapeTarget) ([]types.DownloadItem, error) {
	start := time.Now()
	tr := &traversal{
		visited: NewVisitedSet(),
		emitted: make(map[string]struct{}),
		items:   make([]types.DownloadItem, 0),
	}

	for _, t := range targets {
		tr.visited.Add(t.URL)
	}

	for _, t := range targets {
		if err := c.crawl(ctx, tr, t); err != nil {
			c.logger.Warn("discovery interrupted", "error", err, "found", len(tr.items))
			return tr.items, err
		}
	}

	c.logger.Info("discovery finished",
		"targets", len(targets),
		"listings", tr.listings,
		"listing_failures", tr.failures,
		"directories", tr.visited.Len(),
		"files", len(tr.items),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return tr.items, nil
}

func (c *Crawler) crawl(ctx context.Context, tr *traversal, target types.ScrapeTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := c.lister.FetchListing(ctx, target.URL)
	tr.listings++
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		tr.failures++
		c.logger.Warn("listing fetch failed", "url", target.URL, "error", err)
		return nil
	}

	hrefs, title := parser.ExtractLinks(body)
	c.logger.Debug("listing fetched", "url", target.URL, "title", title, "links", len(hrefs))

	for _, href := range hrefs {
		link, ok := parser.Resolve(target.URL, href)
		if !ok {
			continue
		}

		switch link.Kind {
		case parser.KindDirectory:
			if !parser.Below(target.URL, link.URL) || c.filter.ExcludedPath(link.URL) {
				continue
			}
			if !tr.visited.Add(link.URL) {
				continue
			}
			child := types.ScrapeTarget{
				URL:               link.URL,
				DestinationSubDir: target.DestinationSubDir,
				WantedExtensions:  target.WantedExtensions,
			}
			if seg := filter.Sanitize(unescape(link.Name)); seg != "" {
				child.DestinationSubDir += seg + "/"
			}
			if err := c.crawl(ctx, tr, child); err != nil {
				return err
			}

		case parser.KindFile:
			if !target.Wants(link.Extension) {
				continue
			}
			item, ok := c.buildItem(target, link)
			if !ok {
				continue
			}
			if _, dup := tr.emitted[item.LocalPath]; dup {
				continue
			}
			tr.emitted[item.LocalPath] = struct{}{}
			tr.items = append(tr.items, item)
		}
	}
	return nil
}

func (c *Crawler) buildItem(target types.ScrapeTarget, link parser.Link) (types.DownloadItem, bool) {
	dir := filepath.Join(c.config.DestinationRoot, filepath.FromSlash(unescape(target.DestinationSubDir)))
	name := filter.Sanitize(unescape(link.Name))
	if c.config.FileNameProcessor != nil {
		name = c.config.FileNameProcessor(name)
	}
	if !c.filter.ShouldInclude(link.URL, name) {
		return types.DownloadItem{}, false
	}

	local := filepath.Join(dir, name)
	if c.exists(local) {
		return types.DownloadItem{}, false
	}

	return types.DownloadItem{
		SourceURL:      link.URL,
		LocalPath:      local,
		FileName:       name,
		DestinationDir: dir,
	}, true
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
