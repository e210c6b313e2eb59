// Package parallel fans kernel grids out over worker goroutines.
package parallel

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum grid points per goroutine.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a config that runs every grid on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// For executes f(i) for i in [0, n).
// Falls back to sequential execution if parallelism is disabled or n is too small.
// A panic in f is recovered and returned as an error; the remaining chunks
// still run to completion.
func For(n int, f func(i int), cfg Config) error {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		return runChunk(0, n, f)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			if err := runChunk(s, e, f); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// ForGrid runs f over a rows x cols grid, e.g. batch items x rows.
func ForGrid(rows, cols int, f func(r, c int), cfg Config) error {
	if cols <= 0 {
		return nil
	}
	return For(rows*cols, func(k int) {
		f(k/cols, k%cols)
	}, cfg)
}

func runChunk(start, end int, f func(i int)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("kernel panic at index %d..%d: %v", start, end, r)
		}
	}()
	for i := start; i < end; i++ {
		f(i)
	}
	return nil
}
