package members

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanPolicy lists the health plans whose authorization end date blocks
// visits and hides members from assignment lists once passed.
type PlanPolicy struct {
	AuthExpiryPlans []string `yaml:"auth_expiry_enforced_plans"`
}

func DefaultPlanPolicy() *PlanPolicy {
	return &PlanPolicy{AuthExpiryPlans: []string{"Kaiser"}}
}

// LoadPlanPolicy reads a YAML policy file; an empty path gives the default.
func LoadPlanPolicy(path string) (*PlanPolicy, error) {
	if path == "" {
		return DefaultPlanPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan policy: %w", err)
	}
	var p PlanPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan policy %s: %w", path, err)
	}
	return &p, nil
}

// EnforcesAuthExpiry matches plan names case-insensitively by containment,
// so "Kaiser Permanente" is covered by "Kaiser".
func (p *PlanPolicy) EnforcesAuthExpiry(planType string) bool {
	if p == nil {
		return false
	}
	plan := strings.ToLower(strings.TrimSpace(planType))
	if plan == "" {
		return false
	}
	for _, enforced := range p.AuthExpiryPlans {
		e := strings.ToLower(strings.TrimSpace(enforced))
		if e != "" && strings.Contains(plan, e) {
			return true
		}
	}
	return false
}
