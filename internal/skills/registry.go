// Package skills holds the augmentation tag registry: named content blocks
// injected into generation requests to steer the model toward animation
// techniques it would otherwise get wrong. Blocks already used earlier in a
// session are suppressed on later requests.
package skills

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Skill is one augmentation block.
type Skill struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Content string `yaml:"content" json:"-"`
}

type skillFile struct {
	Skills []Skill `yaml:"skills"`
}

// Registry manages the embedded skill catalog.
type Registry struct {
	skills []Skill
	byID   map[string]Skill
	mu     sync.RWMutex
}

// NewRegistry creates a registry and loads the embedded YAML catalog.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		byID: make(map[string]Skill),
	}

	if err := r.loadFile("skills"); err != nil {
		return nil, fmt.Errorf("failed to load skill catalog: %w", err)
	}

	return r, nil
}

func (r *Registry) loadFile(name string) error {
	filename := fmt.Sprintf("config/%s.yaml", name)
	data, err := configFiles.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var file skillFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range file.Skills {
		if _, dup := r.byID[s.ID]; dup {
			return fmt.Errorf("duplicate skill id %q in %s", s.ID, filename)
		}
		r.skills = append(r.skills, s)
		r.byID[s.ID] = s
	}

	return nil
}

// List returns all skills in catalog order.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Skill, len(r.skills))
	copy(out, r.skills)
	return out
}

// Get returns a skill by id.
func (r *Registry) Get(id string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	return s, ok
}

// Excluding returns all skills whose ids are not in used, in catalog order.
// Used to avoid re-sending augmentation content the session has already
// seen.
func (r *Registry) Excluding(used []string) []Skill {
	seen := make(map[string]bool, len(used))
	for _, id := range used {
		seen[id] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Skill
	for _, s := range r.skills {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
