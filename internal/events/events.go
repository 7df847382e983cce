// Package events defines the notifications the finance service emits after
// a ledger write.
package events

import (
	"context"
	"sync"
	"time"
)

// Topics events are published to.
const (
	TopicTransactionRecorded = "finance.transaction_recorded"
	TopicBalanceRecomputed   = "finance.balance_recomputed"
)

// Event is implemented by every published payload.
type Event interface {
	Topic() string
	// Key groups events so a consumer sees one partner's events in order.
	Key() string
}

// TransactionRecorded is emitted once a transaction is appended and the
// partner's cached balance has been recomputed.
type TransactionRecorded struct {
	TransactionID string    `json:"transaction_id"`
	PartnerID     string    `json:"partner_id"`
	Kind          string    `json:"kind"`
	Amount        string    `json:"amount"`
	InvoiceID     string    `json:"invoice_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (e TransactionRecorded) Topic() string { return TopicTransactionRecorded }
func (e TransactionRecorded) Key() string   { return e.PartnerID }

// BalanceRecomputed is emitted whenever a partner's cached balance is written.
type BalanceRecomputed struct {
	PartnerID  string    `json:"partner_id"`
	Balance    string    `json:"balance"`
	ComputedAt time.Time `json:"computed_at"`
}

func (e BalanceRecomputed) Topic() string { return TopicBalanceRecomputed }
func (e BalanceRecomputed) Key() string   { return e.PartnerID }

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, events ...Event) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*Recorder)(nil)
)
