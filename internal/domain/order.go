package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status ids of the seeded vocabulary.
const (
	StatusReceived   = 1
	StatusInProgress = 2
	StatusReady      = 3
	StatusFailed     = 4
)

// DefaultStatuses is the vocabulary seeded into the store on startup.
var DefaultStatuses = []Status{
	{ID: StatusReceived, Name: "received"},
	{ID: StatusInProgress, Name: "in_progress"},
	{ID: StatusReady, Name: "ready"},
	{ID: StatusFailed, Name: "failed"},
}

// Order is a customer order as stored in the order store.
type Order struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	StatusID   int       `json:"statusId"`
	RecipeName *string   `json:"recipeName"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Status is an entry of the fixed status vocabulary.
type Status struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NewOrderRequest is one element of a creation batch. CustomerID is validated
// by the caller-facing layer.
type NewOrderRequest struct {
	CustomerID string `json:"customerId"`
}

// DispatchResult is the outcome of a committed creation batch.
type DispatchResult struct {
	Message string  `json:"message"`
	Orders  []Order `json:"orders"`
}

// OrderFilter holds listing parameters. Zero StatusID and empty CustomerID mean "any".
type OrderFilter struct {
	StatusID   int
	CustomerID string
	Page       int
	Limit      int
}

// Offset returns the number of rows skipped for the requested page.
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// OrderPage is one page of a listing with its pagination metadata.
type OrderPage struct {
	Data       []Order `json:"data"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
	TotalItems int     `json:"totalItems"`
}

// TotalPages is ceil(total/limit); zero items give zero pages.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// IsValidID reports whether id is a canonical, hyphenated UUID string, the
// single identifier format used for orders and customers.
func IsValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
