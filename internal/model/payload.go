package model

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which remote endpoint and payload shape a mutation uses.
type Kind string

const (
	KindSheetSale   Kind = "sheet-sale"
	KindExpense     Kind = "expense"
	KindVisit       Kind = "visit"
	KindVisitUpdate Kind = "visit-update"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSheetSale, KindExpense, KindVisit, KindVisitUpdate:
		return true
	}
	return false
}

// Payload is the submission body of one mutation, in the shape the remote
// endpoint expects.
type Payload interface {
	Kind() Kind
}

// AttachmentCarrier is implemented by payloads whose endpoint expects an
// uploaded photo URL spliced into the submission body.
type AttachmentCarrier interface {
	SetAttachmentURL(url string)
}

// SheetSale reports sheets sold from one catalog on one day.
type SheetSale struct {
	Date        string `json:"date"`
	Catalog     string `json:"catalog"`
	SheetsCount int    `json:"sheetsCount"`
}

func (*SheetSale) Kind() Kind { return KindSheetSale }

// Expense reports a single expense, optionally with a receipt photo.
// RequestID is a client-generated idempotency hint the backend dedupes on.
type Expense struct {
	RequestID string   `json:"requestId"`
	Date      string   `json:"date"`
	Category  string   `json:"category"`
	Amount    float64  `json:"amount"`
	Note      string   `json:"note,omitempty"`
	PhotoURLs []string `json:"photoUrls,omitempty"`
}

func (*Expense) Kind() Kind { return KindExpense }

func (e *Expense) SetAttachmentURL(url string) {
	e.PhotoURLs = []string{url}
}

// Visit logs a new shop visit.
type Visit struct {
	ShopName  string   `json:"shopName"`
	Date      string   `json:"date"`
	Notes     string   `json:"notes,omitempty"`
	PhotoURLs []string `json:"photoUrls,omitempty"`
}

func (*Visit) Kind() Kind { return KindVisit }

func (v *Visit) SetAttachmentURL(url string) {
	v.PhotoURLs = []string{url}
}

// VisitUpdate amends an already-logged visit.
type VisitUpdate struct {
	VisitID   string   `json:"visitId"`
	Notes     string   `json:"notes,omitempty"`
	PhotoURLs []string `json:"photoUrls,omitempty"`
}

func (*VisitUpdate) Kind() Kind { return KindVisitUpdate }

func (v *VisitUpdate) SetAttachmentURL(url string) {
	v.PhotoURLs = []string{url}
}

// DecodePayload unmarshals raw JSON into the payload type for kind.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindSheetSale:
		p = &SheetSale{}
	case KindExpense:
		p = &Expense{}
	case KindVisit:
		p = &Visit{}
	case KindVisitUpdate:
		p = &VisitUpdate{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
