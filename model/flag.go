package model

import "strings"

// ItemFlag hides a part of an item's tooltip on the host.
type ItemFlag string

// Known item flags.
const (
	FlagHideEnchants          ItemFlag = "HIDE_ENCHANTS"
	FlagHideAttributes        ItemFlag = "HIDE_ATTRIBUTES"
	FlagHideUnbreakable       ItemFlag = "HIDE_UNBREAKABLE"
	FlagHideDestroys          ItemFlag = "HIDE_DESTROYS"
	FlagHidePlacedOn          ItemFlag = "HIDE_PLACED_ON"
	FlagHideAdditionalTooltip ItemFlag = "HIDE_ADDITIONAL_TOOLTIP"
	FlagHideDye               ItemFlag = "HIDE_DYE"
	FlagHideArmorTrim         ItemFlag = "HIDE_ARMOR_TRIM"
	FlagHideStoredEnchants    ItemFlag = "HIDE_STORED_ENCHANTS"
)

var knownFlags = map[ItemFlag]struct{}{
	FlagHideEnchants:          {},
	FlagHideAttributes:        {},
	FlagHideUnbreakable:       {},
	FlagHideDestroys:          {},
	FlagHidePlacedOn:          {},
	FlagHideAdditionalTooltip: {},
	FlagHideDye:               {},
	FlagHideArmorTrim:         {},
	FlagHideStoredEnchants:    {},
}

// ParseItemFlag upper-cases name and checks it against the known flags.
func ParseItemFlag(name string) (ItemFlag, bool) {
	f := ItemFlag(strings.ToUpper(strings.TrimSpace(name)))
	_, ok := knownFlags[f]
	return f, ok
}

// AppendFlag adds f to flags unless already present.
func AppendFlag(flags []ItemFlag, f ItemFlag) []ItemFlag {
	for _, existing := range flags {
		if existing == f {
			return flags
		}
	}
	return append(flags, f)
}
