// Package entity describes the wallet-bearing parties of the marketplace.
package entity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Type tags which table an entity (and its wallet) lives in.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeVendor   Type = "vendor"
	TypeRider    Type = "rider"
)

var ErrUnknownType = errors.New("unknown entity type")

// Types lists every wallet-bearing entity type.
func Types() []Type {
	return []Type{TypeCustomer, TypeVendor, TypeRider}
}

func (t Type) Valid() bool {
	switch t {
	case TypeCustomer, TypeVendor, TypeRider:
		return true
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Ref identifies one entity across the three entity tables.
type Ref struct {
	ID   uuid.UUID `json:"entity_id" db:"entity_id"`
	Type Type      `json:"entity_type" db:"entity_type"`
}

func NewRef(id uuid.UUID, t Type) Ref {
	return Ref{ID: id, Type: t}
}

func (r Ref) Valid() bool {
	return r.ID != uuid.Nil && r.Type.Valid()
}

func (r Ref) String() string {
	return string(r.Type) + ":" + r.ID.String()
}
