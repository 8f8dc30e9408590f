package definition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pitabwire/coreitems/model"
)

// Catalog document keys.
const (
	keyMaterial                = "material"
	keyName                    = "name"
	keyLore                    = "lore"
	keyCustomModelData         = "custom-model-data"
	keyUnbreakable             = "unbreakable"
	keyHideAttributes          = "hide-attributes"
	keyGlowing                 = "glowing"
	keyEnchanted               = "is_enchanted"
	keyEnchantments            = "enchantments"
	keyItemFlags               = "item-flags"
	keyRightClick              = "right-click-command"
	keyLeftClick               = "left-click-command"
	keyCommand                 = "command"
	keyCooldown                = "cooldown"
	keyCooldownMessage         = "cooldown-message"
	keyCooldownMessageInterval = "cooldown-message-interval"
	keyShowItemCooldown        = "show-item-cooldown"
	keyCancelRightClick        = "cancel_right_click"
	keyCancelLeftClick         = "cancel_left_click"
	keyDroppable               = "droppable"
	keyDropMessage             = "drop-message"
)

// ErrMissingMaterial is returned for entries without a material.
var ErrMissingMaterial = errors.New("missing material property")

// ErrAirMaterial is returned for entries whose material is air. An empty hand
// can never carry a custom item.
var ErrAirMaterial = errors.New("material cannot be air")

// Parser turns catalog documents into item definitions.
type Parser struct {
	validator *Validator
	logger    *zap.Logger
}

// NewParser creates a Parser. A nil validator skips schema validation.
func NewParser(validator *Validator, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{validator: validator, logger: logger}
}

// ParseDocument parses every entry of a catalog document. Entries that fail
// validation or parsing are logged and skipped. Only an unreadable document
// returns an error.
func (p *Parser) ParseDocument(namespace string, data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", namespace, err)
	}

	c := newCatalog(namespace)
	root := resolve(&doc)
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = resolve(root.Content[0])
	}
	if root.Kind != yaml.MappingNode {
		if root.Kind != 0 && root.Kind != yaml.DocumentNode && root.Tag != "!!null" {
			return nil, fmt.Errorf("parsing catalog %s: top level is not a mapping", namespace)
		}
		c.seal()
		return c, nil
	}

	pairs(root, func(id string, entry *yaml.Node) {
		if strings.HasPrefix(id, "#") || !isMapping(entry) {
			return
		}
		qualified := namespace + ":" + id

		if errs := p.validator.ValidateEntry(namespace+"."+id, entry); len(errs) > 0 {
			for _, e := range errs {
				p.logger.Warn("skipping invalid custom item",
					zap.String("item", qualified),
					zap.String("path", e.Path),
					zap.String("code", e.Code),
					zap.String("reason", e.Message),
				)
			}
			return
		}

		def, err := p.ParseEntry(namespace, id, entry)
		if err != nil {
			p.logger.Warn("failed to load custom item", zap.String("item", qualified), zap.Error(err))
			return
		}
		if !c.add(def) {
			p.logger.Warn("duplicate custom item identifier, keeping the first",
				zap.String("item", qualified))
			return
		}
		p.logger.Info("loaded custom item", zap.String("item", qualified))
	})

	c.seal()
	return c, nil
}

// ParseEntry builds one definition from its mapping node. Optional keys are
// applied only when present so absent keys keep the built-in defaults.
func (p *Parser) ParseEntry(namespace, id string, n *yaml.Node) (*model.ItemDefinition, error) {
	materialName, ok := stringValue(lookup(n, keyMaterial))
	if !ok {
		return nil, fmt.Errorf("custom item %s: %w", id, ErrMissingMaterial)
	}
	material, ok := model.MatchMaterial(materialName)
	if !ok {
		return nil, fmt.Errorf("invalid material for custom item %s: %s", id, materialName)
	}
	if material.IsAir() {
		return nil, fmt.Errorf("custom item %s: %w", id, ErrAirMaterial)
	}

	d := model.NewItemDefinition(namespace, id, material)
	qualified := d.QualifiedID()

	if v := lookup(n, keyName); v != nil {
		s, _ := stringValue(v)
		d.DisplayName = TranslateColors(s)
	}
	if v := lookup(n, keyLore); v != nil {
		for _, line := range stringList(v) {
			d.Lore = append(d.Lore, TranslateColors(line))
		}
	}
	if v := lookup(n, keyCustomModelData); v != nil {
		cmd := intValue(v)
		d.CustomModelData = &cmd
	}
	if v := lookup(n, keyUnbreakable); v != nil {
		d.Unbreakable = boolValue(v)
	}
	if v := lookup(n, keyHideAttributes); v != nil {
		d.HideAttributes = boolValue(v)
	}
	if v := lookup(n, keyGlowing); v != nil {
		d.Glowing = boolValue(v)
	}
	if v := lookup(n, keyEnchanted); v != nil {
		d.Enchanted = boolValue(v)
	}

	pairs(lookup(n, keyEnchantments), func(key string, level *yaml.Node) {
		e, ok := model.LookupEnchantment(key)
		if !ok {
			p.logger.Warn("unknown enchantment", zap.String("enchantment", key), zap.String("item", qualified))
			return
		}
		d.Enchantments[e] = intValue(level)
	})

	if v := lookup(n, keyItemFlags); v != nil {
		for _, name := range stringList(v) {
			f, ok := model.ParseItemFlag(name)
			if !ok {
				p.logger.Warn("unknown item flag", zap.String("flag", name), zap.String("item", qualified))
				continue
			}
			d.Flags = model.AppendFlag(d.Flags, f)
		}
	}

	if v := lookup(n, keyRightClick); v != nil {
		d.Primary = parseBinding(keyRightClick, v)
	}
	if v := lookup(n, keyLeftClick); v != nil {
		d.Secondary = parseBinding(keyLeftClick, v)
	}

	if v := lookup(n, keyCooldown); v != nil {
		d.Cooldown = millis(intValue(v))
	}
	if v := lookup(n, keyCooldownMessage); v != nil {
		s, _ := stringValue(v)
		d.CooldownMessage = TranslateColors(s)
	}
	if v := lookup(n, keyCooldownMessageInterval); v != nil {
		d.CooldownMessageInterval = intValue(v)
	}
	if v := lookup(n, keyShowItemCooldown); v != nil {
		d.ShowHostCooldown = boolValue(v)
	}
	if v := lookup(n, keyCancelRightClick); v != nil {
		d.CancelPrimary = boolValue(v)
	}
	if v := lookup(n, keyCancelLeftClick); v != nil {
		d.CancelSecondary = boolValue(v)
	}
	if v := lookup(n, keyDroppable); v != nil {
		d.Droppable = boolValue(v)
	}
	if v := lookup(n, keyDropMessage); v != nil {
		s, _ := stringValue(v)
		d.DropMessage = TranslateColors(s)
	}

	return d, nil
}

// parseBinding accepts both binding shapes: a scalar is the whole command,
// a mapping carries the command plus its cooldown overrides. Any other shape
// is rendered to text and used as the command.
func parseBinding(key string, n *yaml.Node) *model.ActionProperties {
	if n.Kind == yaml.ScalarNode {
		if n.Tag == "!!null" {
			return nil
		}
		return model.NewActionProperties(n.Value)
	}
	if n.Kind != yaml.MappingNode {
		return model.NewActionProperties(render(n))
	}

	command, ok := stringValue(lookup(n, keyCommand))
	if !ok {
		command = key
	}
	props := model.NewActionProperties(command)

	if v := lookup(n, keyCooldown); v != nil {
		props.Cooldown = millis(intValue(v))
	}
	if v := lookup(n, keyCooldownMessage); v != nil {
		s, _ := stringValue(v)
		props.CooldownMessage = TranslateColors(s)
	}
	if v := lookup(n, keyCooldownMessageInterval); v != nil {
		props.CooldownMessageInterval = intValue(v)
	}
	if v := lookup(n, keyShowItemCooldown); v != nil {
		props.ShowHostCooldown = boolValue(v)
	}
	return props
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
