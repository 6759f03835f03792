// Package supply models procurement requests: the items a buyer needs and who is asking.
package supply

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/prodmatch/internal/domain"
)

// Item is one requested product. Nil pointers and an empty Category mean "not specified".
type Item struct {
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	MinQuantity *int     `json:"minQuantity,omitempty"`
	TargetPrice *float64 `json:"targetPrice,omitempty"`
	MaxLeadTime *int     `json:"maxLeadTime,omitempty"`
}

// Validate rejects items that cannot be matched at all.
func (it Item) Validate() error {
	if strings.TrimSpace(it.Description) == "" {
		return fmt.Errorf("%w: description is required", domain.ErrInvalidRequest)
	}
	if it.MinQuantity != nil && *it.MinQuantity < 0 {
		return fmt.Errorf("%w: minQuantity must be >= 0", domain.ErrInvalidRequest)
	}
	if it.TargetPrice != nil && *it.TargetPrice <= 0 {
		return fmt.Errorf("%w: targetPrice must be positive", domain.ErrInvalidRequest)
	}
	if it.MaxLeadTime != nil && *it.MaxLeadTime < 0 {
		return fmt.Errorf("%w: maxLeadTime must be >= 0", domain.ErrInvalidRequest)
	}
	return nil
}

// Location is where the buyer is.
type Location struct {
	Geohash string `json:"geohash,omitempty"`
	City    string `json:"city,omitempty"`
}

// UserContext is shared by every item of one request.
type UserContext struct {
	Location *Location `json:"location,omitempty"`
	UserID   string    `json:"userId,omitempty"`
}

// Geohash returns the buyer's lowercased geohash, or "" when unknown.
func (u UserContext) Geohash() string {
	if u.Location == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(u.Location.Geohash))
}

// SampleItem is the canned request served by the smoke-test endpoint.
func SampleItem() Item {
	minQty, maxLead := 100, 7
	price := 50.0
	return Item{
		Description: "organic steel screws 1/4 inch",
		Category:    "hardware",
		MinQuantity: &minQty,
		TargetPrice: &price,
		MaxLeadTime: &maxLead,
	}
}

// SampleUserContext pairs with SampleItem.
func SampleUserContext() UserContext {
	return UserContext{Location: &Location{Geohash: "9q8yyk"}}
}
