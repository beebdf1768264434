package engine

import (
	"testing"
	"time"
)

func TestReceiptSet_FloorAndMonotonic(t *testing.T) {
	s := newReceiptSet(time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !s.update("u1", base) {
		t.Error("first receipt should be accepted")
	}
	if s.update("u1", base.Add(200*time.Millisecond)) {
		t.Error("receipt inside the floor should be dropped")
	}
	if !s.update("u1", base.Add(2*time.Second)) {
		t.Error("receipt past the floor should be accepted")
	}
	if s.update("u1", base.Add(time.Second)) {
		t.Error("receipt older than last-seen should be dropped")
	}
}

func TestReceiptSet_NoFloor(t *testing.T) {
	s := newReceiptSet(0)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !s.update("u1", base) {
		t.Error("first receipt should be accepted")
	}
	if !s.update("u1", base.Add(time.Millisecond)) {
		t.Error("with no floor, any newer receipt is accepted")
	}
}

func TestReceiptSet_PerUser(t *testing.T) {
	s := newReceiptSet(time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.update("u1", base)
	if !s.update("u2", base) {
		t.Error("floor is per user; u2 must be unaffected by u1")
	}
}
