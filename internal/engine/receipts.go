package engine

import "time"

// receiptSet tracks the last-seen timestamp per user for a single room.
// Last-write-wins, no history. Owned by the room worker.
type receiptSet struct {
	floor    time.Duration
	lastSeen map[string]time.Time
}

func newReceiptSet(floor time.Duration) *receiptSet {
	return &receiptSet{
		floor:    floor,
		lastSeen: make(map[string]time.Time),
	}
}

// update records a read receipt. Receipts arriving inside the defensive
// floor since the previous accepted one are dropped.
func (s *receiptSet) update(userID string, at time.Time) bool {
	if prev, ok := s.lastSeen[userID]; ok {
		if s.floor > 0 && at.Sub(prev) < s.floor {
			return false
		}
		if at.Before(prev) {
			return false
		}
	}
	s.lastSeen[userID] = at
	return true
}
