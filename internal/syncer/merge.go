// Package syncer reconciles the local ticket store with the remote canonical
// artifact: a pure last-write-wins merge plus the orchestrator that drives
// one sync pass at a time.
package syncer

import (
	"sort"

	"ticketkeeper/internal/models"
)

// MergeStats describes what the merge decided, for observability. Tie-breaks
// are informational, not errors: equal timestamps resolve to the remote copy
// by policy.
type MergeStats struct {
	LocalWins  int
	RemoteWins int
	TieBreaks  int
}

// Merge reconciles a remote record set and a local record set into a single
// consistent set. Pure function, no I/O.
//
// Remote records seed the result. A local record absent from the result is
// inserted as-is; a local record that is strictly newer replaces the result
// entry (last write wins). Equal timestamps keep the remote copy — remote was
// fetched most recently in the pass, so it is the least surprising default.
// The inline image payload is preserved from whichever side actually has one,
// biased toward the local inline copy: the remote body never carries it by
// construction. Soft-deleted records participate like any other mutation; a
// newer local tombstone correctly overwrites an older live remote record.
//
// Output is sorted by id so repeated merges produce identical artifacts.
func Merge(remote, local []models.Ticket) ([]models.Ticket, MergeStats) {
	var stats MergeStats

	localByID := make(map[string]models.Ticket, len(local))
	for _, l := range local {
		localByID[l.ID] = l
	}

	result := make(map[string]models.Ticket, len(remote)+len(local))
	for _, r := range remote {
		if r.ImageRef == "" {
			if l, ok := localByID[r.ID]; ok && l.HasInlineImage() {
				r.ImageData = l.ImageData
			}
		}
		result[r.ID] = r
	}

	for _, l := range local {
		cur, ok := result[l.ID]
		if !ok {
			if l.Deleted {
				// the remote side never saw this record, nothing to delete there
				continue
			}
			// new record the remote side has not seen
			result[l.ID] = l
			continue
		}

		switch {
		case l.UpdatedAt.After(cur.UpdatedAt):
			merged := l
			if !merged.HasInlineImage() && cur.HasInlineImage() {
				merged.ImageData = cur.ImageData
			}
			result[l.ID] = merged
			stats.LocalWins++
		default:
			if l.UpdatedAt.Equal(cur.UpdatedAt) {
				stats.TieBreaks++
			} else {
				stats.RemoteWins++
			}
			if !cur.HasInlineImage() && l.HasInlineImage() {
				cur.ImageData = l.ImageData
				result[l.ID] = cur
			}
		}
	}

	out := make([]models.Ticket, 0, len(result))
	for _, t := range result {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, stats
}
