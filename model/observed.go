package model

import "strings"

// ObservedItem is a physical item reported by the host. Only its cosmetic
// attributes take part in matching.
type ObservedItem struct {
	Material        Material `json:"material"`
	DisplayName     *string  `json:"display_name,omitempty"`
	CustomModelData *int     `json:"custom_model_data,omitempty"`
	Amount          int      `json:"amount,omitempty"`
}

// Normalized returns a copy with the material upper-cased.
func (o ObservedItem) Normalized() ObservedItem {
	o.Material = Material(strings.ToUpper(strings.TrimSpace(string(o.Material))))
	return o
}

// Count returns the stack size, treating unset amounts as one.
func (o ObservedItem) Count() int {
	if o.Amount < 1 {
		return 1
	}
	return o.Amount
}

// Identity returns the observed cosmetic identity.
func (o ObservedItem) Identity() CosmeticIdentity {
	id := CosmeticIdentity{Material: o.Material}
	if o.DisplayName != nil {
		id.DisplayName = *o.DisplayName
	}
	if o.CustomModelData != nil {
		id.HasModelData = true
		id.ModelData = *o.CustomModelData
	}
	return id
}

// Matches reports whether o is an instance of d: same material, the
// definition's name if it requires one, and its model data if it sets one.
func (o ObservedItem) Matches(d *ItemDefinition) bool {
	if o.Material.IsAir() || o.Material != d.Material {
		return false
	}
	if d.DisplayName != "" {
		if o.DisplayName == nil || *o.DisplayName != d.DisplayName {
			return false
		}
	}
	if d.CustomModelData != nil {
		if o.CustomModelData == nil || *o.CustomModelData != *d.CustomModelData {
			return false
		}
	}
	return true
}
