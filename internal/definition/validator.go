package definition

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema/item.schema.json
var itemSchemaJSON []byte

const itemSchemaURL = "https://coreitems/schema/item.schema.json"

// VError describes a single validation error in a catalog entry.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks raw catalog entries against the embedded item schema
// before they are parsed.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded item schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(itemSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing item schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(itemSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("adding item schema: %w", err)
	}
	schema, err := c.Compile(itemSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling item schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustValidator is NewValidator for the embedded schema, which always compiles.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateEntry validates one entry node. prefix is the entry's path used in
// the reported errors, e.g. "arena.sword".
func (v *Validator) ValidateEntry(prefix string, node *yaml.Node) []VError {
	if v == nil || v.schema == nil {
		return nil
	}

	err := v.schema.Validate(plain(node))
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []VError{{Path: prefix, Code: "INVALID", Message: err.Error()}}
	}

	var errs []VError
	collectErrors(prefix, verr, &errs)
	if len(errs) == 0 {
		errs = append(errs, VError{Path: prefix, Code: "INVALID", Message: "entry does not match the item schema"})
	}
	return errs
}

// collectErrors walks the cause tree and reports its leaves.
func collectErrors(prefix string, err *jsonschema.ValidationError, out *[]VError) {
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			collectErrors(prefix, cause, out)
		}
		return
	}

	path := prefix
	if len(err.InstanceLocation) > 0 {
		path = prefix + "." + strings.Join(err.InstanceLocation, ".")
	}

	code := "INVALID"
	keyword := ""
	if err.ErrorKind != nil {
		if kp := err.ErrorKind.KeywordPath(); len(kp) > 0 {
			keyword = kp[len(kp)-1]
			code = strings.ToUpper(keyword)
		}
	}

	msg := "validation failed"
	if keyword != "" {
		msg = keyword + " validation failed"
	}
	*out = append(*out, VError{Path: path, Code: code, Message: msg})
}
