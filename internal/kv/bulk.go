package kv

import "golang.org/x/sync/errgroup"

// KV is a single key/value pair for bulk import.
type KV struct {
	Key, Value []byte
}

// ChunkSize is the fixed bulk-import chunk size (spec.md §4.1).
const ChunkSize = 1024

// BulkInsert splits pairs into fixed-size chunks and writes each chunk in its
// own worker, each as a WAL-disabled batch. Order within a chunk does not
// matter because keys are unique per chunk; failure of any chunk aborts the
// whole operation via errgroup, matching spec.md §4.1 ("Failure of any chunk
// aborts the overall operation; partial writes may remain but are idempotent
// (same key -> same value)"). Grounded on the teacher's worker-pool style of
// fanning out independent units of I/O (core/txpool's per-subpool Add, and
// sync/handlers' concurrent leaf serving).
func (s *Store) BulkInsert(col Column, pairs []KV) error {
	var g errgroup.Group
	for start := 0; start < len(pairs); start += ChunkSize {
		end := start + ChunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := pairs[start:end]
		g.Go(func() error {
			b := s.NewBatch()
			b.DisableWAL()
			for _, kv := range chunk {
				if err := b.Put(col, kv.Key, kv.Value); err != nil {
					return err
				}
			}
			return b.Commit()
		})
	}
	return g.Wait()
}
