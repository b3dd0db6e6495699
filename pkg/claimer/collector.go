package claimer

import (
	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/logger"
	"github.com/screa/king-claimer/pkg/types"
)

// Collector gathers results arriving in any order and hands them back in
// input order. It is owned by a single goroutine and needs no locking.
type Collector struct {
	total   int
	results map[int]types.ItemResult
	logger  *logger.Logger
}

// NewCollector creates a collector expecting results for indexes [0, total)
func NewCollector(total int, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		total:   total,
		results: make(map[int]types.ItemResult, total),
		logger:  log,
	}
}

// Collect drains in until it is closed and returns the ordered results
func (c *Collector) Collect(in <-chan types.ItemResult) []types.ItemResult {
	for r := range in {
		c.Add(r)
	}
	return c.Ordered()
}

// Add records r. Results outside the expected range or for an index that
// already reported are dropped.
func (c *Collector) Add(r types.ItemResult) bool {
	if r.Index < 0 || r.Index >= c.total {
		c.logger.Warn("dropping result with unknown index", zap.Int("index", r.Index))
		return false
	}
	if _, seen := c.results[r.Index]; seen {
		c.logger.Warn("dropping duplicate result", zap.Int("index", r.Index))
		return false
	}
	c.results[r.Index] = r
	return true
}

// Len returns how many distinct indexes have reported
func (c *Collector) Len() int {
	return len(c.results)
}

// Ordered returns one result per index in input order. Indexes that never
// reported get a failure placeholder.
func (c *Collector) Ordered() []types.ItemResult {
	ordered := make([]types.ItemResult, c.total)
	for i := range ordered {
		r, ok := c.results[i]
		if !ok {
			c.logger.Error("no result reported, using placeholder", zap.Int("index", i))
			r = types.Placeholder(i)
		}
		ordered[i] = r
	}
	return ordered
}
