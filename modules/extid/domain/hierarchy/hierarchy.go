// Package hierarchy holds the four entity kinds of the organizational tree
// (office, center, group, client) and the storage contract the identifier
// allocator consumes.
package hierarchy

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindOffice Kind = "office"
	KindCenter Kind = "center"
	KindGroup  Kind = "group"
	KindClient Kind = "client"
)

var Kinds = []Kind{KindOffice, KindCenter, KindGroup, KindClient}

// ParseKind matches s case-insensitively against the known kinds.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, true
		}
	}
	return "", false
}

func (k Kind) String() string { return string(k) }

// Office is a node of the office tree. ParentID is nil for the root office.
type Office struct {
	ID         int64  `yaml:"id" validate:"gt=0"`
	ParentID   *int64 `yaml:"parent,omitempty" validate:"omitempty,gt=0"`
	ExternalID string `yaml:"external_id,omitempty" validate:"omitempty,number"`
}

// Group is either a center (IsCenter, anchored to OfficeID) or a plain group
// whose ParentID points at a center or another group.
type Group struct {
	ID         int64  `yaml:"id" validate:"gt=0"`
	ParentID   *int64 `yaml:"parent,omitempty" validate:"omitempty,gt=0"`
	OfficeID   int64  `yaml:"office,omitempty" validate:"gte=0"`
	IsCenter   bool   `yaml:"center,omitempty"`
	ExternalID string `yaml:"external_id,omitempty" validate:"omitempty,number"`
}

func (g Group) Kind() Kind {
	if g.IsCenter {
		return KindCenter
	}
	return KindGroup
}

type Client struct {
	ID         int64   `yaml:"id" validate:"gt=0"`
	GroupIDs   []int64 `yaml:"groups,omitempty" validate:"dive,gt=0"`
	ExternalID string  `yaml:"external_id,omitempty" validate:"omitempty,number"`
}

// Ref identifies one entity for logging and error messages.
type Ref struct {
	Kind Kind
	ID   int64
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}
