// Package template attaches stable, cross-version identities to
// system-defined fields and options, defines the system baseline schemas, and
// reconciles tenant schemas against the latest system definitions.
package template

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
)

// Status enumerates the well-known workflow states shared across document
// types. Each resource type's flow is a subset; Canceled is reachable from
// every intermediate state.
type Status int

const (
	StatusDraft Status = iota
	StatusSubmitted
	StatusApproved
	StatusPurchased
	StatusOrdered
	StatusReceived
	StatusShipped
	StatusInvoiced
	StatusPaid
	StatusCanceled
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusSubmitted:
		return "Submitted"
	case StatusApproved:
		return "Approved"
	case StatusPurchased:
		return "Purchased"
	case StatusOrdered:
		return "Ordered"
	case StatusReceived:
		return "Received"
	case StatusShipped:
		return "Shipped"
	case StatusInvoiced:
		return "Invoiced"
	case StatusPaid:
		return "Paid"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// slug is the stable fragment used in template ids. Template ids are contracts
// with stored tenant schemas and must never change once shipped.
func (s Status) slug() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusSubmitted:
		return "submitted"
	case StatusApproved:
		return "approved"
	case StatusPurchased:
		return "purchased"
	case StatusOrdered:
		return "ordered"
	case StatusReceived:
		return "received"
	case StatusShipped:
		return "shipped"
	case StatusInvoiced:
		return "invoiced"
	case StatusPaid:
		return "paid"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// NameField is the template id of the display-name field every type carries.
func NameField(t resource.Type) schema.FieldTemplate {
	return schema.FieldTemplate(t.String() + ".name")
}

// NumberField is the template id of the document-number field document types
// carry (PO number, bill number, ...).
func NumberField(t resource.Type) schema.FieldTemplate {
	return schema.FieldTemplate(t.String() + ".number")
}

// StatusField is the template id of the workflow status field.
func StatusField(t resource.Type) schema.FieldTemplate {
	return schema.FieldTemplate(t.String() + ".status")
}

// StatusOption is the template id of one workflow status option.
func StatusOption(t resource.Type, s Status) schema.OptionTemplate {
	return schema.OptionTemplate(fmt.Sprintf("%s.status.%s", t, s.slug()))
}

// VendorField is the template id of the vendor reference on purchasing
// documents.
func VendorField(t resource.Type) schema.FieldTemplate {
	return schema.FieldTemplate(t.String() + ".vendor")
}

// CustomerField is the template id of the customer reference on sales
// documents.
func CustomerField(t resource.Type) schema.FieldTemplate {
	return schema.FieldTemplate(t.String() + ".customer")
}

// DateField is the template id of the document date.
func DateField(t resource.Type) schema.FieldTemplate {
	return schema.FieldTemplate(t.String() + ".date")
}

// statusFlow returns the workflow states for a resource type, or nil when the
// type carries no status field.
func statusFlow(t resource.Type) []Status {
	switch t {
	case resource.TypeOrder:
		return []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusOrdered, StatusShipped, StatusInvoiced, StatusPaid, StatusCanceled}
	case resource.TypeBill:
		return []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusPaid, StatusCanceled}
	case resource.TypePurchase:
		return []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusPurchased, StatusReceived, StatusPaid, StatusCanceled}
	case resource.TypeJob:
		return []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusCanceled}
	case resource.TypeCustomer, resource.TypeVendor, resource.TypeItem, resource.TypeWorkCenter,
		resource.TypeOrderLine, resource.TypeBillLine, resource.TypePurchaseLine, resource.TypeJobLine:
		return nil
	default:
		return nil
	}
}

// hasVendor reports whether the type carries a vendor reference.
func hasVendor(t resource.Type) bool {
	switch t {
	case resource.TypeBill, resource.TypePurchase:
		return true
	default:
		return false
	}
}

// hasCustomer reports whether the type carries a customer reference.
func hasCustomer(t resource.Type) bool {
	switch t {
	case resource.TypeOrder, resource.TypeJob:
		return true
	default:
		return false
	}
}

// isDocument reports whether the type is a numbered, dated document.
func isDocument(t resource.Type) bool {
	switch t {
	case resource.TypeOrder, resource.TypeBill, resource.TypePurchase, resource.TypeJob:
		return true
	default:
		return false
	}
}

// SystemSchema builds the immutable baseline schema for a resource type.
// Field and option ids are freshly generated; identity across versions is the
// template id, never the uuid.
func SystemSchema(t resource.Type) *schema.Schema {
	s := &schema.Schema{
		ID:           uuid.New(),
		ResourceType: t,
		IsSystem:     true,
	}
	general := s.AddSection("General")

	mustAdd(s, general.ID, &schema.SchemaField{
		TemplateID: NameField(t),
		Name:       "Name",
		Type:       schema.FieldText,
		IsRequired: true,
	})

	if isDocument(t) {
		mustAdd(s, general.ID, &schema.SchemaField{
			TemplateID: NumberField(t),
			Name:       "Number",
			Type:       schema.FieldText,
		})
		mustAdd(s, general.ID, &schema.SchemaField{
			TemplateID:     DateField(t),
			Name:           "Date",
			Type:           schema.FieldDate,
			DefaultToToday: true,
		})
	}

	if flow := statusFlow(t); flow != nil {
		opts := make([]schema.Option, 0, len(flow))
		for _, st := range flow {
			opts = append(opts, schema.Option{
				ID:         uuid.New(),
				TemplateID: StatusOption(t, st),
				Name:       st.String(),
			})
		}
		mustAdd(s, general.ID, &schema.SchemaField{
			TemplateID: StatusField(t),
			Name:       "Status",
			Type:       schema.FieldSelect,
			Options:    opts,
		})
	}

	if hasVendor(t) {
		rt := resource.TypeVendor
		mustAdd(s, general.ID, &schema.SchemaField{
			TemplateID:   VendorField(t),
			Name:         "Vendor",
			Type:         schema.FieldResource,
			ResourceType: &rt,
		})
	}
	if hasCustomer(t) {
		rt := resource.TypeCustomer
		mustAdd(s, general.ID, &schema.SchemaField{
			TemplateID:   CustomerField(t),
			Name:         "Customer",
			Type:         schema.FieldResource,
			ResourceType: &rt,
		})
	}

	switch t {
	case resource.TypeVendor, resource.TypeCustomer:
		details := s.AddSection("Contact")
		mustAdd(s, details.ID, &schema.SchemaField{
			TemplateID: schema.FieldTemplate(t.String() + ".address"),
			Name:       "Address",
			Type:       schema.FieldAddress,
		})
		mustAdd(s, details.ID, &schema.SchemaField{
			TemplateID: schema.FieldTemplate(t.String() + ".contact"),
			Name:       "Primary Contact",
			Type:       schema.FieldContact,
		})
	case resource.TypeItem:
		mustAdd(s, general.ID, &schema.SchemaField{
			TemplateID: schema.FieldTemplate("item.unit_cost"),
			Name:       "Unit Cost",
			Type:       schema.FieldMoney,
		})
	}

	return s
}

// mustAdd panics on failure: the system schema is built from hardcoded
// definitions and an invalid one is a programming error.
func mustAdd(s *schema.Schema, sectionID uuid.UUID, f *schema.SchemaField) {
	if err := s.AddField(sectionID, f); err != nil {
		panic(fmt.Sprintf("system schema for %s: %v", s.ResourceType, err))
	}
}
