package conformance

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario drives a set of replicas through a flow of operations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas lists the origins taking part. Each gets its own directory.
	Replicas []string `yaml:"replicas"`

	// SealThreshold overrides the automatic seal threshold. 0 disables
	// automatic sealing; explicit seal steps still work.
	SealThreshold int `yaml:"seal_threshold,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions are evaluated after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation on one replica.
type Step struct {
	Replica string         `yaml:"replica"`
	Op      string         `yaml:"op"`
	Args    map[string]any `yaml:"args,omitempty"`
}

// Step operations.
const (
	OpCreate   = "create"   // args: name
	OpUpdate   = "update"   // args: entity, field, value
	OpResolve  = "resolve"  // args: entity, field, chosen
	OpRelate   = "relate"   // args: entity, relation
	OpUnrelate = "unrelate" // args: entity, id
	OpMetric   = "metric"   // args: entity, metric
	OpSync     = "sync"     // args: from
	OpBundle   = "bundle"   // args: from
	OpSeal     = "seal"
	OpReset    = "reset"
)

var knownOps = []string{OpCreate, OpUpdate, OpResolve, OpRelate, OpUnrelate, OpMetric, OpSync, OpBundle, OpSeal, OpReset}

// Assertion validates the replicas after the flow.
type Assertion struct {
	// Type specifies the assertion type:
	// - "entity_field": entity's field equals Equals on Replica
	// - "entity_absent": entity does not exist on Replica
	// - "conflict_count": Replica has Count conflicts (Unresolved counts only open ones)
	// - "event_count": Replica holds Count distinct events
	// - "converged": every listed replica projects the same state
	// - "verify_ok": Replica's segment chain verifies
	Type string `yaml:"type"`

	Replica    string   `yaml:"replica,omitempty"`
	Replicas   []string `yaml:"replicas,omitempty"`
	Entity     string   `yaml:"entity,omitempty"`
	Field      string   `yaml:"field,omitempty"`
	Equals     any      `yaml:"equals,omitempty"`
	Count      int      `yaml:"count,omitempty"`
	Unresolved bool     `yaml:"unresolved,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityField   = "entity_field"
	AssertEntityAbsent  = "entity_absent"
	AssertConflictCount = "conflict_count"
	AssertEventCount    = "event_count"
	AssertConverged     = "converged"
	AssertVerifyOK      = "verify_ok"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("missing required field: name")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("missing required field: replicas")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("missing required field: flow")
	}
	if s.SealThreshold < 0 {
		return fmt.Errorf("seal_threshold must be >= 0")
	}

	known := func(name string) bool { return slices.Contains(s.Replicas, name) }
	for i, step := range s.Flow {
		if !known(step.Replica) {
			return fmt.Errorf("flow[%d]: unknown replica %q", i, step.Replica)
		}
		if !slices.Contains(knownOps, step.Op) {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Op == OpSync || step.Op == OpBundle {
			from, _ := step.Args["from"].(string)
			if !known(from) {
				return fmt.Errorf("flow[%d]: %s from unknown replica %q", i, step.Op, from)
			}
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertEntityField, AssertEntityAbsent, AssertConflictCount, AssertEventCount, AssertVerifyOK:
			if !known(a.Replica) {
				return fmt.Errorf("assertions[%d]: unknown replica %q", i, a.Replica)
			}
		case AssertConverged:
			for _, r := range a.Replicas {
				if !known(r) {
					return fmt.Errorf("assertions[%d]: unknown replica %q", i, r)
				}
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}
