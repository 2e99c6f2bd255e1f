package queue

import (
	"encoding/json"
	"fmt"
	"sort"

	"order_engine/internal/domain"

	"github.com/cockroachdb/pebble"
)

// Journal persists jobs that are not yet completed so they survive a restart.
// keys: job:<queue>:<job id>
type Journal struct {
	db     *pebble.DB
	prefix []byte
}

// OpenJournal opens (or creates) a pebble journal for the named queue.
func OpenJournal(path, queueName string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue journal at %s: %w", path, err)
	}
	return &Journal{db: db, prefix: []byte("job:" + queueName + ":")}, nil
}

// Close closes the journal
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) key(id string) []byte {
	k := make([]byte, 0, len(j.prefix)+len(id))
	k = append(k, j.prefix...)
	return append(k, id...)
}

// Save writes the job's current delivery state.
func (j *Journal) Save(job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := j.db.Set(j.key(job.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Delete removes a job once it completed or failed permanently.
func (j *Journal) Delete(id string) error {
	if err := j.db.Delete(j.key(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Load returns all journaled jobs, oldest first.
func (j *Journal) Load() ([]domain.Job, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: j.prefix,
		UpperBound: keyUpperBound(j.prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal iterator: %w", err)
	}
	defer iter.Close()

	var jobs []domain.Job
	for iter.First(); iter.Valid(); iter.Next() {
		var job domain.Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			return nil, fmt.Errorf("corrupt journal entry %q: %w", iter.Key(), err)
		}
		jobs = append(jobs, job)
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].EnqueuedAt.Before(jobs[b].EnqueuedAt)
	})
	return jobs, nil
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
