// Package exec is the narrow boundary to the order execution subsystem.
// Order placement is fire-and-continue: SubmitOrder must never block the
// calling group worker, and fills, cancels and rejects come back
// asynchronously as Reports delivered to a handler.
package exec

import (
	"tradlet-core/internal/num"
	"tradlet-core/internal/wave"
)

// Action identifies the playbook leg an order belongs to.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// OrderRequest is one order intent derived from a playbook transition.
type OrderRequest struct {
	OrderID    string
	GroupID    string
	PlaybookID string
	Instrument string
	Direction  wave.Direction // position direction of the playbook
	Action     Action
	Qty        int
	Price      num.Price
}

// ReportKind classifies an asynchronous execution notification.
type ReportKind int

const (
	ReportFill ReportKind = iota
	ReportCancel
	ReportReject
)

func (k ReportKind) String() string {
	switch k {
	case ReportCancel:
		return "cancel"
	case ReportReject:
		return "reject"
	}
	return "fill"
}

// Report is one asynchronous execution notification. Reports are routed back
// to the owning group's event queue so playbook bookkeeping stays
// single-writer.
type Report struct {
	OrderID    string
	GroupID    string
	PlaybookID string
	Kind       ReportKind
	Action     Action
	Qty        int
	Price      num.Price
	Reason     string
}

// ReportHandler consumes execution reports. Handlers only enqueue; they must
// not touch group state directly.
type ReportHandler func(Report)

// Gateway places and cancels orders. Implementations must return promptly;
// the outcome arrives later as a Report.
type Gateway interface {
	SubmitOrder(req OrderRequest) error
	CancelOrder(orderID string) error
}
