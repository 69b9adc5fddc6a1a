package window

import (
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/mediapool/internal/conv"
	"github.com/hupe1980/mediapool/pool"
)

// Pool is the part of pool.Pool driven by the Controller.
type Pool interface {
	Acquire(index int, key string) pool.Snapshot
	SetActive(index int) bool
	Release(index int)
	Indices() []int
	Retry(index int) bool
	Failed() []int
	Forget(index int)
}

// Config configures a Controller.
type Config struct {
	// Radius defaults to DefaultRadius when 0.
	Radius int
	// Logger receives page-change messages. Nil discards.
	Logger *slog.Logger
}

// Delta lists the membership changes made by one page change, ascending.
type Delta struct {
	Window   Window
	Acquired []int
	Released []int
	// Skipped holds window members the catalog had no key for.
	Skipped []int
	// Forgotten holds failed indices that left the window.
	Forgotten []int
}

// Controller moves the window over a pool. Like the pool, it belongs to the
// control goroutine.
type Controller struct {
	pool    Pool
	catalog Catalog
	radius  int
	log     *slog.Logger
	current Window
}

// NewController creates a Controller.
func NewController(p Pool, catalog Catalog, cfg Config) (*Controller, error) {
	if cfg.Radius == 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.Radius < 1 {
		return nil, ErrInvalidRadius
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		pool:    p,
		catalog: catalog,
		radius:  cfg.Radius,
		log:     log,
	}, nil
}

// Window returns the window set by the last page change.
func (c *Controller) Window() Window {
	return c.current
}

// Radius returns the configured radius.
func (c *Controller) Radius() int {
	return c.radius
}

// OnPageChanged moves the window to newIndex: it acquires new members,
// activates newIndex, then releases members outside the window.
func (c *Controller) OnPageChanged(newIndex, feedLength int) Delta {
	w := Window{Center: newIndex, Radius: c.radius, FeedLength: feedLength}
	c.current = w
	members := w.Members()

	pooled, stray := toBitmap(c.pool.Indices())
	d := Delta{Window: w}

	for _, i := range roaring.AndNot(members, pooled).ToArray() {
		index := int(i)
		key, ok := c.catalog.MediaKey(index)
		if !ok {
			d.Skipped = append(d.Skipped, index)
			c.log.Warn("no media key for page", "index", index)
			continue
		}
		c.pool.Acquire(index, key)
		d.Acquired = append(d.Acquired, index)
	}

	c.pool.SetActive(newIndex)

	// Strays are indices no window can contain.
	d.Released = append(d.Released, stray...)
	for _, i := range roaring.AndNot(pooled, members).ToArray() {
		d.Released = append(d.Released, int(i))
	}
	for _, index := range d.Released {
		c.pool.Release(index)
	}
	for _, index := range c.pool.Failed() {
		if !w.Contains(index) {
			c.pool.Forget(index)
			d.Forgotten = append(d.Forgotten, index)
		}
	}

	c.log.Debug("page changed", "index", newIndex, "feed_length", feedLength,
		"acquired", d.Acquired, "released", d.Released, "forgotten", d.Forgotten)
	return d
}

// Retry reloads a failed index. It reports false for indices outside the
// current window and for indices the pool cannot retry.
func (c *Controller) Retry(index int) bool {
	if !c.current.Contains(index) {
		return false
	}
	return c.pool.Retry(index)
}

func toBitmap(indices []int) (*roaring.Bitmap, []int) {
	rb := roaring.New()
	var stray []int
	for _, i := range indices {
		u, err := conv.IntToUint32(i)
		if err != nil {
			stray = append(stray, i)
			continue
		}
		rb.Add(u)
	}
	return rb, stray
}
