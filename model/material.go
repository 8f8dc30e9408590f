package model

import "strings"

// Material is the base type of an item as understood by the host.
type Material string

// MaterialAir is the empty-hand material. It never matches a definition.
const MaterialAir Material = "AIR"

// Variants of the empty material. MatchMaterial accepts them so an
// air entry can be reported as such rather than as unknown.
const (
	MaterialCaveAir Material = "CAVE_AIR"
	MaterialVoidAir Material = "VOID_AIR"
)

var colors = []string{
	"WHITE", "ORANGE", "MAGENTA", "LIGHT_BLUE", "YELLOW", "LIME", "PINK", "GRAY",
	"LIGHT_GRAY", "CYAN", "PURPLE", "BLUE", "BROWN", "GREEN", "RED", "BLACK",
}

var coloredKinds = []string{
	"WOOL", "CARPET", "CONCRETE", "CONCRETE_POWDER", "TERRACOTTA", "GLAZED_TERRACOTTA",
	"STAINED_GLASS", "STAINED_GLASS_PANE", "BED", "BANNER", "SHULKER_BOX", "CANDLE", "DYE",
}

// Overworld woods. Mangrove grows from a propagule, not a sapling.
var woods = []string{"OAK", "SPRUCE", "BIRCH", "JUNGLE", "ACACIA", "DARK_OAK", "MANGROVE", "CHERRY", "PALE_OAK"}

var woodKinds = []string{
	"LOG", "WOOD", "PLANKS", "SLAB", "STAIRS", "FENCE", "FENCE_GATE", "DOOR", "TRAPDOOR",
	"BUTTON", "PRESSURE_PLATE", "SIGN", "HANGING_SIGN", "BOAT", "CHEST_BOAT", "LEAVES",
}

var netherWoodKinds = []string{
	"STEM", "HYPHAE", "PLANKS", "SLAB", "STAIRS", "FENCE", "FENCE_GATE", "DOOR", "TRAPDOOR",
	"BUTTON", "PRESSURE_PLATE", "SIGN", "HANGING_SIGN", "FUNGUS", "ROOTS",
}

var ores = []string{"COAL", "IRON", "COPPER", "GOLD", "REDSTONE", "LAPIS", "DIAMOND", "EMERALD"}

var toolTiers = []string{"WOODEN", "STONE", "IRON", "GOLDEN", "DIAMOND", "NETHERITE"}

var armorTiers = []string{"LEATHER", "CHAINMAIL", "IRON", "GOLDEN", "DIAMOND", "NETHERITE"}

var materialNames = []string{
	"AIR", "CAVE_AIR", "VOID_AIR",
	// Weapons and tools
	"BOW", "CROSSBOW", "TRIDENT", "MACE", "SHIELD", "FISHING_ROD", "SHEARS", "FLINT_AND_STEEL",
	"ARROW", "SPECTRAL_ARROW", "TIPPED_ARROW", "CARROT_ON_A_STICK", "WARPED_FUNGUS_ON_A_STICK", "BRUSH",
	"TURTLE_HELMET", "ELYTRA", "WOLF_ARMOR", "LEATHER_HORSE_ARMOR", "IRON_HORSE_ARMOR",
	"GOLDEN_HORSE_ARMOR", "DIAMOND_HORSE_ARMOR",
	// Materials and miscellaneous items
	"DIAMOND", "EMERALD", "GOLD_INGOT", "IRON_INGOT", "COPPER_INGOT", "NETHERITE_INGOT", "NETHERITE_SCRAP",
	"GOLD_NUGGET", "IRON_NUGGET", "COAL", "CHARCOAL", "LAPIS_LAZULI", "REDSTONE", "QUARTZ", "AMETHYST_SHARD",
	"RAW_IRON", "RAW_GOLD", "RAW_COPPER", "FLINT", "CLAY_BALL", "BRICK", "NETHER_BRICK", "PRISMARINE_SHARD",
	"PRISMARINE_CRYSTALS", "GLOWSTONE_DUST", "SUGAR", "SUGAR_CANE", "WHEAT", "WHEAT_SEEDS", "BEETROOT",
	"BEETROOT_SEEDS", "MELON_SEEDS", "PUMPKIN_SEEDS", "COCOA_BEANS", "BONE_MEAL", "INK_SAC", "GLOW_INK_SAC",
	"STICK", "BLAZE_ROD", "BLAZE_POWDER", "BREEZE_ROD", "BONE", "FEATHER", "LEATHER", "RABBIT_HIDE",
	"RABBIT_FOOT", "STRING", "SLIME_BALL", "MAGMA_CREAM", "FERMENTED_SPIDER_EYE", "SPIDER_EYE",
	"PHANTOM_MEMBRANE", "SCUTE", "TURTLE_SCUTE", "ARMADILLO_SCUTE", "SHULKER_SHELL", "POPPED_CHORUS_FRUIT",
	"ENDER_PEARL", "ENDER_EYE", "GHAST_TEAR", "NETHER_STAR", "HEART_OF_THE_SEA", "NAUTILUS_SHELL", "ECHO_SHARD",
	"NETHER_WART", "HONEYCOMB", "DISC_FRAGMENT_5", "HEAVY_CORE", "TRIAL_KEY", "OMINOUS_TRIAL_KEY",
	"TOTEM_OF_UNDYING", "EXPERIENCE_BOTTLE", "FIRE_CHARGE", "WIND_CHARGE", "SNOWBALL", "EGG", "GUNPOWDER",
	"PAPER", "BOOK", "WRITABLE_BOOK", "WRITTEN_BOOK", "ENCHANTED_BOOK", "KNOWLEDGE_BOOK", "NAME_TAG",
	"COMPASS", "RECOVERY_COMPASS", "CLOCK", "MAP", "FILLED_MAP", "SPYGLASS", "LEAD", "SADDLE", "BUNDLE",
	"BUCKET", "WATER_BUCKET", "LAVA_BUCKET", "MILK_BUCKET", "POWDER_SNOW_BUCKET", "AXOLOTL_BUCKET",
	"COD_BUCKET", "SALMON_BUCKET", "PUFFERFISH_BUCKET", "TROPICAL_FISH_BUCKET", "TADPOLE_BUCKET",
	"POTION", "SPLASH_POTION", "LINGERING_POTION", "GLASS_BOTTLE", "HONEY_BOTTLE", "DRAGON_BREATH",
	"OMINOUS_BOTTLE", "FIREWORK_ROCKET", "FIREWORK_STAR", "GOAT_HORN",
	"MUSIC_DISC_13", "MUSIC_DISC_CAT", "MUSIC_DISC_BLOCKS", "MUSIC_DISC_CHIRP", "MUSIC_DISC_FAR",
	"MUSIC_DISC_MALL", "MUSIC_DISC_MELLOHI", "MUSIC_DISC_STAL", "MUSIC_DISC_STRAD", "MUSIC_DISC_WARD",
	"MUSIC_DISC_11", "MUSIC_DISC_WAIT", "MUSIC_DISC_OTHERSIDE", "MUSIC_DISC_5", "MUSIC_DISC_PIGSTEP",
	"MUSIC_DISC_RELIC",
	"PLAYER_HEAD", "SKELETON_SKULL", "WITHER_SKELETON_SKULL", "ZOMBIE_HEAD", "CREEPER_HEAD", "DRAGON_HEAD",
	"PIGLIN_HEAD", "ARMOR_STAND", "ITEM_FRAME", "GLOW_ITEM_FRAME", "PAINTING", "END_CRYSTAL", "BEACON",
	"CONDUIT", "MINECART", "CHEST_MINECART", "FURNACE_MINECART", "HOPPER_MINECART", "TNT_MINECART",
	"BAMBOO_RAFT", "BAMBOO_CHEST_RAFT",
	// Food
	"APPLE", "GOLDEN_APPLE", "ENCHANTED_GOLDEN_APPLE", "GOLDEN_CARROT", "CARROT", "POTATO", "BAKED_POTATO",
	"POISONOUS_POTATO", "BREAD", "COOKIE", "CAKE", "PUMPKIN_PIE", "MELON_SLICE", "GLISTERING_MELON_SLICE",
	"SWEET_BERRIES", "GLOW_BERRIES", "CHORUS_FRUIT", "DRIED_KELP", "HONEY_BLOCK",
	"BEEF", "PORKCHOP", "CHICKEN", "MUTTON", "RABBIT", "COD", "SALMON", "TROPICAL_FISH", "PUFFERFISH",
	"COOKED_BEEF", "COOKED_PORKCHOP", "COOKED_CHICKEN", "COOKED_MUTTON", "COOKED_RABBIT",
	"COOKED_COD", "COOKED_SALMON", "ROTTEN_FLESH", "MUSHROOM_STEW", "RABBIT_STEW", "BEETROOT_SOUP",
	"SUSPICIOUS_STEW",
	// Natural blocks
	"STONE", "COBBLESTONE", "MOSSY_COBBLESTONE", "SMOOTH_STONE", "STONE_BRICKS", "MOSSY_STONE_BRICKS",
	"CRACKED_STONE_BRICKS", "CHISELED_STONE_BRICKS", "GRANITE", "POLISHED_GRANITE", "DIORITE",
	"POLISHED_DIORITE", "ANDESITE", "POLISHED_ANDESITE", "DEEPSLATE", "COBBLED_DEEPSLATE",
	"POLISHED_DEEPSLATE", "DEEPSLATE_BRICKS", "DEEPSLATE_TILES", "TUFF", "CALCITE", "DRIPSTONE_BLOCK",
	"POINTED_DRIPSTONE", "DIRT", "COARSE_DIRT", "ROOTED_DIRT", "PODZOL", "MYCELIUM", "MUD", "PACKED_MUD",
	"MUD_BRICKS", "GRASS_BLOCK", "DIRT_PATH", "FARMLAND", "CLAY", "SAND", "RED_SAND", "SANDSTONE",
	"RED_SANDSTONE", "GRAVEL", "SUSPICIOUS_SAND", "SUSPICIOUS_GRAVEL", "ICE", "PACKED_ICE", "BLUE_ICE",
	"SNOW", "SNOW_BLOCK", "POWDER_SNOW", "MOSS_BLOCK", "MOSS_CARPET", "SCULK", "SCULK_SENSOR",
	"SCULK_CATALYST", "SCULK_SHRIEKER", "NETHERRACK", "SOUL_SAND", "SOUL_SOIL", "BASALT",
	"POLISHED_BASALT", "BLACKSTONE", "POLISHED_BLACKSTONE", "GILDED_BLACKSTONE", "MAGMA_BLOCK",
	"NETHER_BRICKS", "RED_NETHER_BRICKS", "NETHER_WART_BLOCK", "WARPED_WART_BLOCK", "SHROOMLIGHT",
	"CRIMSON_NYLIUM", "WARPED_NYLIUM", "END_STONE", "END_STONE_BRICKS", "PURPUR_BLOCK", "PURPUR_PILLAR",
	"PRISMARINE", "PRISMARINE_BRICKS", "DARK_PRISMARINE", "SPONGE", "WET_SPONGE", "BRICKS",
	"QUARTZ_BLOCK", "QUARTZ_PILLAR", "CHISELED_QUARTZ_BLOCK", "SMOOTH_QUARTZ", "BAMBOO", "BAMBOO_BLOCK",
	"BAMBOO_PLANKS", "BAMBOO_MOSAIC", "CACTUS", "PUMPKIN", "CARVED_PUMPKIN", "JACK_O_LANTERN", "MELON",
	"HAY_BLOCK", "KELP", "SEAGRASS", "LILY_PAD", "VINE", "SHORT_GRASS", "TALL_GRASS", "FERN", "DEAD_BUSH",
	"DANDELION", "POPPY", "BLUE_ORCHID", "ALLIUM", "AZURE_BLUET", "RED_TULIP", "ORANGE_TULIP",
	"WHITE_TULIP", "PINK_TULIP", "OXEYE_DAISY", "CORNFLOWER", "LILY_OF_THE_VALLEY", "WITHER_ROSE",
	"SUNFLOWER", "LILAC", "ROSE_BUSH", "PEONY", "TORCHFLOWER", "PITCHER_PLANT", "SPORE_BLOSSOM",
	"AZALEA", "FLOWERING_AZALEA", "BROWN_MUSHROOM", "RED_MUSHROOM", "MANGROVE_PROPAGULE",
	"MANGROVE_ROOTS", "MUDDY_MANGROVE_ROOTS", "COBWEB", "SLIME_BLOCK", "HONEYCOMB_BLOCK", "BEE_NEST",
	"BEEHIVE", "GLASS", "GLASS_PANE", "TINTED_GLASS", "TERRACOTTA", "CANDLE", "WHITE_BANNER",
	// Ores and mineral blocks
	"NETHER_GOLD_ORE", "NETHER_QUARTZ_ORE", "ANCIENT_DEBRIS", "RAW_IRON_BLOCK", "RAW_GOLD_BLOCK",
	"RAW_COPPER_BLOCK", "COAL_BLOCK", "IRON_BLOCK", "COPPER_BLOCK", "GOLD_BLOCK", "REDSTONE_BLOCK",
	"LAPIS_BLOCK", "DIAMOND_BLOCK", "EMERALD_BLOCK", "NETHERITE_BLOCK", "AMETHYST_BLOCK",
	"BUDDING_AMETHYST", "AMETHYST_CLUSTER", "SMALL_AMETHYST_BUD", "MEDIUM_AMETHYST_BUD",
	"LARGE_AMETHYST_BUD", "EXPOSED_COPPER", "WEATHERED_COPPER", "OXIDIZED_COPPER", "CUT_COPPER",
	"WAXED_COPPER_BLOCK", "COPPER_BULB", "COPPER_GRATE", "COPPER_DOOR", "COPPER_TRAPDOOR",
	"OBSIDIAN", "CRYING_OBSIDIAN", "BEDROCK", "GLOWSTONE", "SEA_LANTERN",
	// Functional blocks
	"TNT", "CHEST", "TRAPPED_CHEST", "ENDER_CHEST", "BARREL", "SHULKER_BOX", "CRAFTING_TABLE",
	"FURNACE", "BLAST_FURNACE", "SMOKER", "ANVIL", "CHIPPED_ANVIL", "DAMAGED_ANVIL", "ENCHANTING_TABLE",
	"BOOKSHELF", "CHISELED_BOOKSHELF", "LECTERN", "CARTOGRAPHY_TABLE", "FLETCHING_TABLE",
	"SMITHING_TABLE", "STONECUTTER", "GRINDSTONE", "LOOM", "COMPOSTER", "CAULDRON", "BREWING_STAND",
	"TORCH", "SOUL_TORCH", "LANTERN", "SOUL_LANTERN", "REDSTONE_TORCH", "REDSTONE_LAMP", "REPEATER",
	"COMPARATOR", "LEVER", "STONE_BUTTON", "POLISHED_BLACKSTONE_BUTTON", "STONE_PRESSURE_PLATE",
	"LIGHT_WEIGHTED_PRESSURE_PLATE", "HEAVY_WEIGHTED_PRESSURE_PLATE", "TRIPWIRE_HOOK", "DAYLIGHT_DETECTOR",
	"TARGET", "RAIL", "POWERED_RAIL", "DETECTOR_RAIL", "ACTIVATOR_RAIL", "LADDER", "SCAFFOLDING",
	"CHAIN", "IRON_BARS", "IRON_DOOR", "IRON_TRAPDOOR", "FLOWER_POT", "DECORATED_POT", "CRAFTER",
	"BARRIER", "LIGHT", "STRUCTURE_VOID", "STRUCTURE_BLOCK", "JIGSAW", "COMMAND_BLOCK",
	"CHAIN_COMMAND_BLOCK", "REPEATING_COMMAND_BLOCK", "SPAWNER", "TRIAL_SPAWNER", "VAULT",
	"DRAGON_EGG", "END_ROD", "END_PORTAL_FRAME", "CAMPFIRE", "SOUL_CAMPFIRE", "RESPAWN_ANCHOR",
	"LODESTONE", "NOTE_BLOCK", "JUKEBOX", "BELL", "HOPPER", "DROPPER", "DISPENSER", "OBSERVER",
	"PISTON", "STICKY_PISTON", "SPONGE", "BEACON",
}

// knownMaterials is the fixed set of base types a definition may use.
var knownMaterials = func() map[Material]struct{} {
	set := make(map[Material]struct{}, 1500)
	add := func(names ...string) {
		for _, n := range names {
			set[Material(n)] = struct{}{}
		}
	}
	add(materialNames...)
	for _, c := range colors {
		for _, k := range coloredKinds {
			add(c + "_" + k)
		}
	}
	for _, w := range woods {
		for _, k := range woodKinds {
			add(w + "_" + k)
		}
		add("STRIPPED_"+w+"_LOG", "STRIPPED_"+w+"_WOOD")
		if w != "MANGROVE" {
			add(w + "_SAPLING")
		}
	}
	for _, w := range []string{"CRIMSON", "WARPED"} {
		for _, k := range netherWoodKinds {
			add(w + "_" + k)
		}
		add("STRIPPED_"+w+"_STEM", "STRIPPED_"+w+"_HYPHAE")
	}
	for _, o := range ores {
		add(o+"_ORE", "DEEPSLATE_"+o+"_ORE")
	}
	for _, t := range toolTiers {
		add(t+"_SWORD", t+"_AXE", t+"_PICKAXE", t+"_SHOVEL", t+"_HOE")
	}
	for _, t := range armorTiers {
		add(t+"_HELMET", t+"_CHESTPLATE", t+"_LEGGINGS", t+"_BOOTS")
	}
	return set
}()

// MatchMaterial normalizes name and looks it up in the material set.
// Accepted forms include "diamond_sword", "Diamond Sword" and
// "minecraft:diamond_sword".
func MatchMaterial(name string) (Material, bool) {
	n := strings.TrimSpace(name)
	if len(n) > len("minecraft:") && strings.EqualFold(n[:len("minecraft:")], "minecraft:") {
		n = n[len("minecraft:"):]
	}
	n = strings.ToUpper(strings.ReplaceAll(n, " ", "_"))
	m := Material(n)
	if _, ok := knownMaterials[m]; !ok {
		return "", false
	}
	return m, true
}

// IsAir reports whether m is the empty material or one of its variants.
func (m Material) IsAir() bool {
	switch m {
	case "", MaterialAir, MaterialCaveAir, MaterialVoidAir:
		return true
	}
	return false
}
