// Package marketview turns the rate-limited market provider into a cached,
// per-round view of tradeable instruments.
package marketview

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alejandrodnm/polyswarm/internal/domain"
	"github.com/alejandrodnm/polyswarm/internal/ports"
)

const (
	defaultTTL      = 30 * time.Second
	defaultLookback = 45
	bookWorkers     = 8
	minPageSize     = 20
	maxPageSize     = 100
)

// Config controla el TTL y los filtros de negociabilidad.
type Config struct {
	TTL          time.Duration
	MinVolume    float64
	LookbackDays int
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		TTL:          defaultTTL,
		MinVolume:    1000,
		LookbackDays: defaultLookback,
	}
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache sirve listings, orderbooks y mid prices con TTL.
// Un refetch fallido nunca desaloja el último valor bueno.
type Cache struct {
	provider ports.MarketProvider
	cfg      Config
	now      func() time.Time
	group    singleflight.Group

	mu       sync.RWMutex
	listings map[int]entry[[]domain.Listing]
	books    map[string]entry[domain.OrderBook]
	prices   map[string]entry[float64]
}

// New crea una Cache sobre el provider dado.
func New(provider ports.MarketProvider, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookback
	}
	return &Cache{
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
		listings: make(map[int]entry[[]domain.Listing]),
		books:    make(map[string]entry[domain.OrderBook]),
		prices:   make(map[string]entry[float64]),
	}
}

// WithClock reemplaza el reloj. Solo para tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// ListTradeable devuelve hasta limit snapshots de instrumentos negociables,
// uno por token de cada mercado que pasa los filtros. Los tokens sin orderbook
// disponible se descartan antes de aplicar limit.
// Si el proveedor falla y no hay nada cacheado devuelve nil.
func (c *Cache) ListTradeable(ctx context.Context, limit int) []domain.MarketSnapshot {
	if limit <= 0 {
		return nil
	}

	listings := c.listingPage(ctx, limit)
	now := c.now()

	var candidates []candidate
	for _, l := range listings {
		if !l.Tradeable(now, c.cfg.MinVolume) {
			continue
		}
		for _, tok := range l.Tokens {
			if tok.TokenID == "" {
				continue
			}
			candidates = append(candidates, candidate{listing: l, token: tok})
		}
	}

	snapshots := make([]domain.MarketSnapshot, 0, limit)
	for start := 0; start < len(candidates) && len(snapshots) < limit && ctx.Err() == nil; {
		end := min(start+limit-len(snapshots), len(candidates))
		snapshots = append(snapshots, c.snapshots(ctx, candidates[start:end])...)
		start = end
	}

	slog.Debug("market view refreshed",
		"listings", len(listings),
		"candidates", len(candidates),
		"tradeable", len(snapshots),
	)
	return snapshots
}

type candidate struct {
	listing domain.Listing
	token   domain.Token
}

// snapshots construye en paralelo los snapshots del lote, conservando el orden
// y omitiendo los tokens cuyo book no se pudo obtener.
func (c *Cache) snapshots(ctx context.Context, batch []candidate) []domain.MarketSnapshot {
	out := make([]domain.MarketSnapshot, len(batch))
	ok := make([]bool, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bookWorkers)
	for i, cand := range batch {
		g.Go(func() error {
			out[i], ok[i] = c.snapshot(gctx, cand.listing, cand.token)
			return nil
		})
	}
	_ = g.Wait()

	kept := out[:0]
	for i, s := range out {
		if ok[i] {
			kept = append(kept, s)
		}
	}
	return kept
}

// Price devuelve el mid price del token. Sirve la cache si está dentro del TTL;
// si no, refetchea el book. Un fallo sirve el último valor bueno si existe.
func (c *Cache) Price(ctx context.Context, tokenID string) (float64, bool) {
	c.mu.RLock()
	e, ok := c.prices[tokenID]
	c.mu.RUnlock()
	if ok && c.fresh(e.fetchedAt) {
		return e.value, true
	}

	book, fetched := c.refreshBook(ctx, tokenID)
	if !fetched {
		return e.value, ok
	}
	return book.MidPrice()
}

// snapshot construye el MarketSnapshot de un token usando el book cacheado.
// Devuelve false si no hay book ni fresco ni cacheado.
func (c *Cache) snapshot(ctx context.Context, l domain.Listing, tok domain.Token) (domain.MarketSnapshot, bool) {
	s := domain.MarketSnapshot{
		TokenID:     tok.TokenID,
		MarketID:    l.ID,
		Question:    l.Question,
		Description: l.Description,
		Category:    l.Category,
		Outcome:     tok.Outcome,
		EndDate:     l.EndDate,
		Volume:      l.Volume,
		Liquidity:   l.Liquidity,
		FetchedAt:   c.now(),
	}

	book, ok := c.book(ctx, tok.TokenID)
	if !ok {
		return s, false
	}
	s.BestBid = book.BestBid()
	s.BestAsk = book.BestAsk()
	s.Price, s.HasPrice = book.MidPrice()
	return s, true
}

// listingPage devuelve la página de listings para el limit dado, refetcheando si está stale.
func (c *Cache) listingPage(ctx context.Context, limit int) []domain.Listing {
	c.mu.RLock()
	e, ok := c.listings[limit]
	c.mu.RUnlock()
	if ok && c.fresh(e.fetchedAt) {
		return e.value
	}

	v, err, _ := c.group.Do("listings:"+strconv.Itoa(limit), func() (any, error) {
		params := domain.ListParams{
			Limit:        pageSize(limit),
			StartDateMin: c.now().AddDate(0, 0, -c.cfg.LookbackDays),
		}
		listings, err := c.provider.ListMarkets(ctx, params)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.listings[limit] = entry[[]domain.Listing]{value: listings, fetchedAt: c.now()}
		c.mu.Unlock()
		return listings, nil
	})
	if err != nil {
		slog.Warn("market listing fetch failed, serving cached view",
			"cached", len(e.value),
			"err", err,
		)
		return e.value
	}
	return v.([]domain.Listing)
}

// book devuelve el orderbook cacheado o lo refetchea si está stale.
func (c *Cache) book(ctx context.Context, tokenID string) (domain.OrderBook, bool) {
	c.mu.RLock()
	e, ok := c.books[tokenID]
	c.mu.RUnlock()
	if ok && c.fresh(e.fetchedAt) {
		return e.value, true
	}
	book, fetched := c.refreshBook(ctx, tokenID)
	if fetched {
		return book, true
	}
	return e.value, ok
}

// refreshBook pide el book al proveedor y actualiza las caches de book y precio.
// Llamadas concurrentes para el mismo token comparten un único fetch.
func (c *Cache) refreshBook(ctx context.Context, tokenID string) (domain.OrderBook, bool) {
	v, err, _ := c.group.Do("book:"+tokenID, func() (any, error) {
		book, err := c.provider.OrderBook(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		now := c.now()
		c.mu.Lock()
		c.books[tokenID] = entry[domain.OrderBook]{value: book, fetchedAt: now}
		if mid, ok := book.MidPrice(); ok {
			c.prices[tokenID] = entry[float64]{value: mid, fetchedAt: now}
		} else {
			delete(c.prices, tokenID)
		}
		c.mu.Unlock()
		return book, nil
	})
	if err != nil {
		slog.Debug("order book fetch failed", "token", tokenID, "err", err)
		return domain.OrderBook{}, false
	}
	return v.(domain.OrderBook), true
}

func (c *Cache) fresh(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.cfg.TTL
}

// pageSize pide el doble de mercados de los necesarios para compensar los filtros.
func pageSize(limit int) int {
	return min(max(limit*2, minPageSize), maxPageSize)
}
