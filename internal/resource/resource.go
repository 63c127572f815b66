// Package resource defines the core business-object types for the dynamic
// schema engine: typed, account-scoped resource instances, the patches that
// mutate their fields, and their cost line items.
package resource

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procura-hq/procura/internal/resource/value"
)

// Type identifies a kind of business object. The set is closed: every
// resource row carries exactly one of these tags.
type Type int

const (
	TypeOrder Type = iota
	TypeBill
	TypePurchase
	TypeJob
	TypeCustomer
	TypeVendor
	TypeItem
	TypeWorkCenter
	TypeOrderLine
	TypeBillLine
	TypePurchaseLine
	TypeJobLine
)

// String returns the string representation of the resource type.
func (t Type) String() string {
	switch t {
	case TypeOrder:
		return "order"
	case TypeBill:
		return "bill"
	case TypePurchase:
		return "purchase"
	case TypeJob:
		return "job"
	case TypeCustomer:
		return "customer"
	case TypeVendor:
		return "vendor"
	case TypeItem:
		return "item"
	case TypeWorkCenter:
		return "work_center"
	case TypeOrderLine:
		return "order_line"
	case TypeBillLine:
		return "bill_line"
	case TypePurchaseLine:
		return "purchase_line"
	case TypeJobLine:
		return "job_line"
	default:
		return "unknown"
	}
}

// ParseType converts a string to a resource Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "order":
		return TypeOrder, nil
	case "bill":
		return TypeBill, nil
	case "purchase":
		return TypePurchase, nil
	case "job":
		return TypeJob, nil
	case "customer":
		return TypeCustomer, nil
	case "vendor":
		return TypeVendor, nil
	case "item":
		return TypeItem, nil
	case "work_center":
		return TypeWorkCenter, nil
	case "order_line":
		return TypeOrderLine, nil
	case "bill_line":
		return TypeBillLine, nil
	case "purchase_line":
		return TypePurchaseLine, nil
	case "job_line":
		return TypeJobLine, nil
	default:
		return 0, fmt.Errorf("unknown resource type: %s", s)
	}
}

// Types returns every resource type in declaration order.
func Types() []Type {
	return []Type{
		TypeOrder, TypeBill, TypePurchase, TypeJob,
		TypeCustomer, TypeVendor, TypeItem, TypeWorkCenter,
		TypeOrderLine, TypeBillLine, TypePurchaseLine, TypeJobLine,
	}
}

// Patch is the unit of field mutation: a field id, a timestamp, and exactly
// one value variant. A resource's current value for a field is the value of
// its most recent patch; no patch at all means "never set", which is distinct
// from a patch carrying a null value.
type Patch struct {
	FieldID   uuid.UUID
	CreatedAt time.Time
	Value     value.Value
}

// Cost is a line item owned by a resource, independently addressable.
type Cost struct {
	ID           uuid.UUID
	Name         string
	IsPercentage bool
	Value        float64
	Position     int
}

// Resource is a typed, account-scoped, schema-conformant business entity
// instance. Patches holds the materialized current value per field.
type Resource struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	Type       Type
	TemplateID string // set when the resource originates from a system template
	Key        int
	Patches    []Patch
	Costs      []Cost
}

// Value returns the resource's current value for the given field and whether
// one exists.
func (r *Resource) Value(fieldID uuid.UUID) (value.Value, bool) {
	for i := range r.Patches {
		if r.Patches[i].FieldID == fieldID {
			return r.Patches[i].Value, true
		}
	}
	return value.Value{}, false
}

// Cost returns the cost with the given id, or nil.
func (r *Resource) Cost(id uuid.UUID) *Cost {
	for i := range r.Costs {
		if r.Costs[i].ID == id {
			return &r.Costs[i]
		}
	}
	return nil
}

// PatchSet is the full staged output of a patch engine session: everything the
// store must apply as one atomic commit. Costs are upserted by id; cost rows on
// the stored resource that are neither staged nor removed are carried through.
type PatchSet struct {
	AccountID    uuid.UUID
	ResourceID   uuid.UUID
	Type         Type
	Create       bool   // true when the resource does not exist yet
	TemplateID   string // non-empty to stamp a template id on the resource
	Patches      []Patch
	Costs        []Cost
	RemovedCosts []uuid.UUID
}

// Empty reports whether the set stages no change at all.
func (ps *PatchSet) Empty() bool {
	return !ps.Create && ps.TemplateID == "" &&
		len(ps.Patches) == 0 && len(ps.Costs) == 0 && len(ps.RemovedCosts) == 0
}
