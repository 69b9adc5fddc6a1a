package mediapool

import "context"

// Close releases every resource, stops the control goroutine, waits for
// in-flight fetches and closes the cache. Queued page changes that have not
// been applied are dropped. Close is idempotent.
func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	f.closeOnce.Do(func() {
		close(f.closing)
		<-f.done

		f.pool.Close()
		f.adapter.Wait()

		stats := f.store.Stats()
		f.closeErr = f.store.Close()
		f.log.LogClose(context.Background(), stats.Entries, stats.Size, f.closeErr)
	})
	return f.closeErr
}
