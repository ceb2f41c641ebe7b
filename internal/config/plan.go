package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/avenalabs/regsub/internal/lifecycle"
	"github.com/avenalabs/regsub/internal/submission"
)

// PlanEntry is one leaf request in a plan file.
type PlanEntry struct {
	DocumentID int64  `yaml:"id"`
	Module     string `yaml:"module"`
	Operation  string `yaml:"operation"`
}

// Plan is the assembly plan file: the region a sequence targets and the
// leaves it carries.
type Plan struct {
	Region    string      `yaml:"region"`
	Documents []PlanEntry `yaml:"documents"`
}

// LoadPlan reads and validates a plan file, returning the target region
// and the lifecycle plan items.
func LoadPlan(path string) (submission.Region, []lifecycle.PlanItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read plan: %w", err)
	}

	var plan Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return "", nil, fmt.Errorf("plan %s: parse: %w", path, err)
	}

	region := submission.Region(plan.Region)
	if !submission.ValidRegions[region] {
		return "", nil, fmt.Errorf("plan %s: unknown region %q", path, plan.Region)
	}
	if len(plan.Documents) == 0 {
		return "", nil, fmt.Errorf("plan %s: documents list is required and must be non-empty", path)
	}

	items := make([]lifecycle.PlanItem, 0, len(plan.Documents))
	for i, e := range plan.Documents {
		if e.DocumentID == 0 {
			return "", nil, fmt.Errorf("plan %s: document %d: id is required", path, i)
		}
		if e.Module == "" {
			return "", nil, fmt.Errorf("plan %s: document %d: module is required", path, i)
		}
		op := submission.Operation(e.Operation)
		if e.Operation == "" {
			op = submission.OpNew
		}
		if !submission.ValidOperations[op] {
			return "", nil, fmt.Errorf("plan %s: document %d: unknown operation %q", path, i, e.Operation)
		}
		items = append(items, lifecycle.PlanItem{
			DocumentID: e.DocumentID,
			ModulePath: e.Module,
			Operation:  op,
		})
	}
	return region, items, nil
}
