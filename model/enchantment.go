package model

import (
	"sort"
	"strings"
)

// Enchantment is a namespaced enchantment key such as "sharpness".
type Enchantment string

// EnchantmentSharpness is applied to glowing items that declare no
// enchantments of their own.
const EnchantmentSharpness Enchantment = "sharpness"

var enchantmentKeys = []Enchantment{
	"aqua_affinity", "bane_of_arthropods", "binding_curse", "blast_protection", "breach",
	"channeling", "density", "depth_strider", "efficiency", "feather_falling", "fire_aspect",
	"fire_protection", "flame", "fortune", "frost_walker", "impaling", "infinity", "knockback",
	"looting", "loyalty", "luck_of_the_sea", "lure", "mending", "multishot", "piercing", "power",
	"projectile_protection", "protection", "punch", "quick_charge", "respiration", "riptide",
	"sharpness", "silk_touch", "smite", "soul_speed", "sweeping_edge", "swift_sneak", "thorns",
	"unbreaking", "vanishing_curse", "wind_burst",
}

// enchantmentIndex maps the normalized form of every key to the key.
var enchantmentIndex = func() map[string]Enchantment {
	idx := make(map[string]Enchantment, len(enchantmentKeys))
	for _, e := range enchantmentKeys {
		idx[NormalizeEnchantmentKey(string(e))] = e
	}
	return idx
}()

// NormalizeEnchantmentKey lower-cases key and strips underscores, so that
// "FIRE_ASPECT", "fire_aspect" and "fireaspect" compare equal.
func NormalizeEnchantmentKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "")
}

// LookupEnchantment resolves a configured enchantment name.
func LookupEnchantment(name string) (Enchantment, bool) {
	e, ok := enchantmentIndex[NormalizeEnchantmentKey(name)]
	return e, ok
}

// EnchantmentLevel is one entry of a rendered enchantment list.
type EnchantmentLevel struct {
	Enchantment Enchantment `json:"enchantment"`
	Level       int         `json:"level"`
}

// SortedEnchantments returns the entries of m ordered by key.
func SortedEnchantments(m map[Enchantment]int) []EnchantmentLevel {
	out := make([]EnchantmentLevel, 0, len(m))
	for e, lvl := range m {
		out = append(out, EnchantmentLevel{Enchantment: e, Level: lvl})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Enchantment < out[j].Enchantment })
	return out
}
