package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordExpired(t *testing.T) {
	now := time.Now().UTC()

	if (IdempotencyRecord{}).Expired(now) {
		t.Fatal("record without ttl never expires")
	}
	if !(IdempotencyRecord{TTLAt: now}).Expired(now) {
		t.Fatal("record expires exactly at ttl")
	}
	if (IdempotencyRecord{TTLAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatal("record must not expire before ttl")
	}
}

func TestIdempotencyRecordFinished(t *testing.T) {
	if (IdempotencyRecord{Status: IdempotencyStatusProcessing}).Finished() {
		t.Fatal("processing record is not finished")
	}
	if !(IdempotencyRecord{Status: IdempotencyStatusFailed}).Finished() {
		t.Fatal("failed record is finished")
	}
}

func TestNewIdempotencyRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record, err := NewIdempotencyRecord(" checkout-1 ", "/Checkout", " hash ", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Key != "checkout-1" || record.RequestHash != "hash" {
		t.Fatalf("key and hash must be trimmed: %+v", record)
	}
	if record.Status != IdempotencyStatusProcessing || !record.TTLAt.Equal(now.Add(DefaultIdempotencyTTL)) {
		t.Fatalf("unexpected defaults: %+v", record)
	}

	if _, err := NewIdempotencyRecord("  ", "/Checkout", "hash", now, now); !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := NewIdempotencyRecord("k", "/Checkout", "", now, now); !errors.Is(err, ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRecordConflict(t *testing.T) {
	held := IdempotencyRecord{Method: "/Checkout", RequestHash: "h1"}

	if err := held.Conflict("/Checkout", "h1"); !errors.Is(err, ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("same call must be a replay, got %v", err)
	}
	if err := held.Conflict("/Checkout", "h2"); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("other payload must mismatch, got %v", err)
	}
	if err := held.Conflict("/RecordPayment", "h1"); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("other method must mismatch, got %v", err)
	}
}
