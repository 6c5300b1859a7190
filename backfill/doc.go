// Package backfill fills the empty embedding slots of catalog items.
//
// A run pages through pending items in SKU order. Each batch is grouped by
// modality: items missing clip_text or semantic_text are embedded from their
// texts field with one call per space, and items missing an image slot are
// embedded from their resolved image assets with one call. Only the newly
// computed vectors are upserted, so existing slots are never recomputed.
//
// Writes are staged and committed every few batches. A checkpoint is saved
// after each commit so an interrupted run resumes where it stopped, and a
// lock keeps two runs from writing at once.
package backfill
