package models

import "time"

// TicketStatus represents the workflow state of a ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

// Ticket is an externally persisted, multiply-written record guarded by
// optimistic concurrency. Version increments on every successful update;
// writers must present the version they last read.
type Ticket struct {
	// ID is the unique identifier for this ticket.
	ID string `json:"id"`
	// Title is the short summary of the ticket.
	Title string `json:"title"`
	// Description holds the ticket body.
	Description string `json:"description,omitempty"`
	// Status is the workflow state.
	Status TicketStatus `json:"status"`
	// Assignee is the agent or human currently responsible.
	Assignee string `json:"assignee,omitempty"`
	// Version is the optimistic-concurrency version counter.
	Version int64 `json:"version"`
	// CreatedAt is when the ticket was created. Immutable.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the ticket was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Fields returns the mutable fields of the ticket as a name→value map,
// the shape the conflict resolver works over. Identity fields (id,
// created_at) are deliberately excluded.
func (t *Ticket) Fields() map[string]any {
	return map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"status":      string(t.Status),
		"assignee":    t.Assignee,
	}
}
