package capability

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/flagconsole/model"
)

// Console roles as issued by the platform's account service.
const (
	RoleViewer = "VIEWER"
	RoleEditor = "EDITOR"
	RoleAdmin  = "ADMIN"
	RoleOwner  = "OWNER"
)

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// DefaultPolicy is used when no policy file is configured. Viewers may only
// list, editors manage environment-scoped resources, admins and owners may do
// everything.
func DefaultPolicy() map[string][]string {
	return map[string][]string{
		RoleViewer: {
			"accounts:list", "apikeys:list", "auditlogs:list", "environments:list",
			"eventrates:list", "experiments:list", "features:list", "goals:list",
			"notifications:list", "projects:list", "pushes:list", "webhooks:list",
		},
		RoleEditor: {
			"accounts:list", "auditlogs:list", "environments:list", "projects:list",
			"apikeys:*", "eventrates:*", "experiments:*", "features:*", "goals:*",
			"notifications:*", "pushes:*", "webhooks:*",
		},
		RoleAdmin: {"*"},
		RoleOwner: {"*"},
	}
}

// StaticPolicyEvaluator resolves capabilities from a static role table,
// optionally loaded from a YAML file.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator creates an evaluator that loads policies from
// path. An empty path selects DefaultPolicy.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the union of capabilities for all roles in the
// request context.
func (e *StaticPolicyEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, role := range rctx.Roles {
		for _, cap := range e.policy.Roles[role] {
			caps[cap] = true
		}
	}
	return caps, nil
}

// Sync reloads the policy file from disk.
func (e *StaticPolicyEvaluator) Sync() error {
	if e.path == "" {
		e.mu.Lock()
		e.policy = policyFile{Roles: DefaultPolicy()}
		e.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", e.path, err)
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}
