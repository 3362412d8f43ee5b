package pipeline

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// BatchResult is the outcome of one job in a batch.
type BatchResult struct {
	Job    ConcealConfig
	Result *ConcealResult
	Err    error
}

// Batch runs independent conceal jobs on a pool of workers. Zero workers
// means one per CPU. Output paths must be unique across the batch; this is
// checked before any job starts. Results are returned in job order.
func Batch(jobs []ConcealConfig, workers int) ([]BatchResult, error) {
	seen := make(map[string]int, len(jobs))
	for i, job := range jobs {
		if job.DryRun {
			continue
		}
		abs, err := filepath.Abs(job.OutputPath)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[abs]; ok {
			return nil, fmt.Errorf("jobs %d and %d both write %s", prev, i, job.OutputPath)
		}
		seen[abs] = i
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(jobs))

	results := make([]BatchResult, len(jobs))
	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				job := jobs[i]
				job.Progress = nil
				result, err := Conceal(job)
				results[i] = BatchResult{Job: jobs[i], Result: result, Err: err}
				if err != nil {
					log.Debug().Err(err).Str("payload", job.PayloadPath).Msg("Batch job failed")
				}
			}
		}()
	}
	for i := range jobs {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results, nil
}
