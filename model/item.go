package model

import (
	"strings"
	"time"
)

// Action is one of the two triggers a user can perform while holding an item.
type Action string

const (
	// ActionPrimary is bound by "right-click-command".
	ActionPrimary Action = "primary"
	// ActionSecondary is bound by "left-click-command".
	ActionSecondary Action = "secondary"
)

// ParseAction converts a wire value into an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(s)) {
	case ActionPrimary:
		return ActionPrimary, true
	case ActionSecondary:
		return ActionSecondary, true
	}
	return "", false
}

// Key returns the cooldown bucket used for overrides on this action.
func (a Action) Key() ActionKey {
	if a == ActionSecondary {
		return KeySecondary
	}
	return KeyPrimary
}

// ActionKey identifies a cooldown bucket of an item.
type ActionKey string

const (
	KeyPrimary   ActionKey = "primary"
	KeySecondary ActionKey = "secondary"
	// KeyItemWide is shared by every action without its own cooldown.
	KeyItemWide ActionKey = "item"
)

// Unset sentinels for tiered values.
const (
	UnsetCooldown time.Duration = -time.Millisecond
	UnsetInterval               = -1
)

// ActionProperties configures the command bound to one action and its
// cooldown overrides.
type ActionProperties struct {
	Command                 string        `json:"command"`
	Cooldown                time.Duration `json:"cooldown_ms"`
	CooldownMessage         string        `json:"cooldown_message,omitempty"`
	CooldownMessageInterval int           `json:"cooldown_message_interval"`
	ShowHostCooldown        bool          `json:"show_item_cooldown"`
}

// NewActionProperties returns properties for command with every override
// deferring to the item or global level.
func NewActionProperties(command string) *ActionProperties {
	return &ActionProperties{
		Command:                 command,
		Cooldown:                UnsetCooldown,
		CooldownMessageInterval: UnsetInterval,
	}
}

// HasCooldown reports whether the action overrides the cooldown.
func (p *ActionProperties) HasCooldown() bool {
	return p != nil && p.Cooldown > 0
}

// ItemDefinition is the normalized description of one custom item. It is
// built once per load pass and must not be mutated afterwards.
type ItemDefinition struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`

	Material        Material            `json:"material"`
	DisplayName     string              `json:"display_name,omitempty"`
	Lore            []string            `json:"lore,omitempty"`
	CustomModelData *int                `json:"custom_model_data,omitempty"`
	Unbreakable     bool                `json:"unbreakable"`
	HideAttributes  bool                `json:"hide_attributes"`
	Glowing         bool                `json:"glowing"`
	Enchanted       bool                `json:"enchanted"`
	Enchantments    map[Enchantment]int `json:"enchantments,omitempty"`
	Flags           []ItemFlag          `json:"item_flags,omitempty"`

	Primary   *ActionProperties `json:"primary,omitempty"`
	Secondary *ActionProperties `json:"secondary,omitempty"`

	Cooldown                time.Duration `json:"cooldown_ms"`
	CooldownMessage         string        `json:"cooldown_message,omitempty"`
	CooldownMessageInterval int           `json:"cooldown_message_interval"`
	ShowHostCooldown        bool          `json:"show_item_cooldown"`

	CancelPrimary   bool   `json:"cancel_primary"`
	CancelSecondary bool   `json:"cancel_secondary"`
	Droppable       bool   `json:"droppable"`
	DropMessage     string `json:"drop_message,omitempty"`
}

// NewItemDefinition returns a definition carrying the built-in defaults.
func NewItemDefinition(namespace, id string, material Material) *ItemDefinition {
	return &ItemDefinition{
		ID:                      id,
		Namespace:               namespace,
		Material:                material,
		Enchantments:            map[Enchantment]int{},
		Cooldown:                UnsetCooldown,
		CooldownMessageInterval: UnsetInterval,
		CancelPrimary:           true,
		CancelSecondary:         true,
		Droppable:               true,
	}
}

// QualifiedID returns "namespace:id".
func (d *ItemDefinition) QualifiedID() string {
	return d.Namespace + ":" + d.ID
}

// ActionFor returns the properties bound to a, or nil.
func (d *ItemDefinition) ActionFor(a Action) *ActionProperties {
	if a == ActionSecondary {
		return d.Secondary
	}
	return d.Primary
}

// CancelFor reports whether the host default is cancelled for a.
func (d *ItemDefinition) CancelFor(a Action) bool {
	if a == ActionSecondary {
		return d.CancelSecondary
	}
	return d.CancelPrimary
}

// Identity returns the cosmetic identity the resolver matches on.
func (d *ItemDefinition) Identity() CosmeticIdentity {
	id := CosmeticIdentity{Material: d.Material, DisplayName: d.DisplayName}
	if d.CustomModelData != nil {
		id.HasModelData = true
		id.ModelData = *d.CustomModelData
	}
	return id
}

// CosmeticIdentity is the (material, name, model data) triple.
type CosmeticIdentity struct {
	Material     Material
	DisplayName  string
	HasModelData bool
	ModelData    int
}

// ItemStack is the host-facing rendering of a definition.
type ItemStack struct {
	Material        Material           `json:"material"`
	Amount          int                `json:"amount"`
	DisplayName     string             `json:"display_name,omitempty"`
	Lore            []string           `json:"lore,omitempty"`
	CustomModelData *int               `json:"custom_model_data,omitempty"`
	Unbreakable     bool               `json:"unbreakable"`
	Flags           []ItemFlag         `json:"item_flags,omitempty"`
	Enchantments    []EnchantmentLevel `json:"enchantments,omitempty"`
}

// Stack renders d as a single item the host can hand out. Glowing items
// without enchantments carry a hidden sharpness glint.
func (d *ItemDefinition) Stack() ItemStack {
	s := ItemStack{
		Material:    d.Material,
		Amount:      1,
		DisplayName: d.DisplayName,
		Unbreakable: d.Unbreakable,
	}
	if len(d.Lore) > 0 {
		s.Lore = append([]string(nil), d.Lore...)
	}
	if d.CustomModelData != nil {
		v := *d.CustomModelData
		s.CustomModelData = &v
	}
	for _, f := range d.Flags {
		s.Flags = AppendFlag(s.Flags, f)
	}
	if d.HideAttributes {
		s.Flags = AppendFlag(s.Flags, FlagHideAttributes)
	}
	s.Enchantments = SortedEnchantments(d.Enchantments)
	if (d.Glowing || d.Enchanted) && len(d.Enchantments) == 0 {
		s.Enchantments = []EnchantmentLevel{{Enchantment: EnchantmentSharpness, Level: 1}}
		s.Flags = AppendFlag(s.Flags, FlagHideEnchants)
	}
	return s
}
