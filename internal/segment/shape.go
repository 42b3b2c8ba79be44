package segment

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/plos/internal/merkle"
	"github.com/roach88/plos/internal/value"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

const manifestSchemaURL = "https://plos.local/schemas/manifest.schema.json"

var (
	schemaOnce     sync.Once
	manifestSchema *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(manifestSchemaURL, bytes.NewReader(manifestSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load manifest schema: %w", err)
			return
		}
		manifestSchema, schemaErr = c.Compile(manifestSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile manifest schema: %w", schemaErr)
		}
	})
	return manifestSchema, schemaErr
}

// ValidateShape checks a manifest document against the rules of Version
// and returns one message per violation. An empty result means the shape is
// valid.
func ValidateShape(doc value.Object) []string {
	var errs []string

	if v := doc["version"]; !value.Same(v, value.String(Version)) {
		errs = append(errs, fmt.Sprintf("unsupported version: %s (expected %s)", show(v), Version))
	}

	if algo, ok := doc["algo"].(value.Object); !ok {
		errs = append(errs, "missing algo")
	} else {
		for _, check := range []struct{ field, want string }{
			{"canonical", SupportedAlgo.Canonical},
			{"hash", SupportedAlgo.Hash},
			{"merkle", SupportedAlgo.Merkle},
			{"sig", SupportedAlgo.Sig},
		} {
			if got := algo[check.field]; !value.Same(got, value.String(check.want)) {
				errs = append(errs, fmt.Sprintf("unsupported algo.%s: %s (expected %s)", check.field, show(got), check.want))
			}
		}
	}

	root, ok := doc["root"].(value.String)
	switch {
	case !ok || len(root) < len(merkle.RootPrefix) || string(root[:len(merkle.RootPrefix)]) != merkle.RootPrefix:
		errs = append(errs, fmt.Sprintf(`invalid root format: %s (expected "sha256:<hex>")`, show(doc["root"])))
	case !merkle.ValidRoot(string(root)):
		errs = append(errs, "root hex must be 64 lowercase hex chars")
	}

	if sig, ok := doc["signature"].(value.String); !ok || len(sig) < 10 {
		errs = append(errs, "missing/invalid signature")
	}

	if s, ok := doc["keyId"].(value.String); !ok || s == "" {
		errs = append(errs, "missing keyId (required in v"+Version+")")
	}
	if s, ok := doc["origin"].(value.String); !ok || s == "" {
		errs = append(errs, "missing origin (required in v"+Version+")")
	}

	if n, ok := doc["events"].(value.Number); !ok || n < 0 {
		errs = append(errs, "invalid events count")
	}

	return append(errs, schemaErrors(doc)...)
}

func schemaErrors(doc value.Object) []string {
	schema, err := compiledSchema()
	if err != nil {
		return []string{err.Error()}
	}

	err = schema.Validate(value.ToAny(doc))
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{"schema: " + err.Error()}
	}

	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("schema: %s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

func show(v value.Value) string {
	switch val := v.(type) {
	case nil:
		return "undefined"
	case value.String:
		return string(val)
	default:
		data, err := value.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
