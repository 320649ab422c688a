package history

import (
	lru "github.com/hashicorp/golang-lru"
)

const sampleCacheSize = 1 << 14

// Dataset exposes the valid rows of a table as randomly addressable Samples.
// Samples are built on demand and cached; the underlying table and
// vocabulary are read-only, so a Dataset is safe for concurrent readers.
type Dataset struct {
	builder *Builder
	rows    []int
	cache   *lru.Cache
}

// NewDataset wraps the builder with the valid row indices from the selector.
func NewDataset(b *Builder, rows []int) *Dataset {
	cache, err := lru.New(sampleCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size
		panic(err)
	}
	return &Dataset{builder: b, rows: rows, cache: cache}
}

// Len returns the number of valid samples.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// At builds (or returns the cached) Sample for the i-th valid row.
func (d *Dataset) At(i int) Sample {
	row := d.rows[i]
	if cached, ok := d.cache.Get(row); ok {
		return cached.(Sample)
	}
	s := d.builder.Build(row)
	d.cache.Add(row, s)
	return s
}

// Signals returns the signal ids labeled on every sample.
func (d *Dataset) Signals() []int {
	return d.builder.Signals()
}
