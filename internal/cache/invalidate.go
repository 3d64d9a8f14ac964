package cache

import "context"

// InvalidateStreamWrite drops the stream-pool entries a write to the
// stream at podName/path could have made stale: the stream row itself
// and every cached child list in the pod, which includes its parent's
// (SPEC_FULL.md §4.10's "writes and deletes MUST invalidate" rule).
// Record lists and single-record entries are not touched here; the
// caller evicts those with InvalidateRecord, since they're keyed by
// stream ID, not path.
func InvalidateStreamWrite(ctx context.Context, c Cache, podName, path string) error {
	if err := c.Delete(ctx, PoolStreams, StreamKey(podName, path)); err != nil {
		return err
	}
	if err := c.Clear(ctx, PoolStreams, "streamChildren:"+podName+":*"); err != nil {
		return err
	}
	return nil
}

// InvalidateRecord drops the single-record cache entry for name and the
// whole record-list cache for streamID, since any list result that
// might have included or excluded this record is now stale.
func InvalidateRecord(ctx context.Context, c Cache, streamID int64, name string) error {
	if err := c.Delete(ctx, PoolSingleRecords, RecordKey(streamID, name)); err != nil {
		return err
	}
	return c.Clear(ctx, PoolRecordLists, RecordListKey(streamID, "")+"*")
}

// InvalidatePod drops the pod row and the owning user's pod list —
// creating or deleting a pod always changes both.
func InvalidatePod(ctx context.Context, c Cache, podName, ownerUserID string) error {
	if err := c.Delete(ctx, PoolPods, PodKey(podName)); err != nil {
		return err
	}
	return c.Delete(ctx, PoolPods, UserPodsKey(ownerUserID))
}
