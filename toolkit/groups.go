package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/agentscope-ai/agentscope-go/llm"
)

// MetaToolResetEquipped is the built-in tool through which the model itself
// chooses which tool groups are equipped for the rest of the conversation.
const MetaToolResetEquipped = "reset_equipped_tools"

// GroupManager tracks which tool groups are active. Groups spring into
// existence when the first tool names them and start out active; the default
// group stays active no matter what.
type GroupManager struct {
	mu     sync.RWMutex
	active map[string]bool
}

// NewGroupManager creates a manager with only the default group known.
func NewGroupManager() *GroupManager {
	return &GroupManager{active: map[string]bool{DefaultGroup: true}}
}

func (g *GroupManager) track(group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[group]; !ok {
		g.active[group] = true
	}
}

// IsActive reports whether a group is currently equipped. Unknown groups are
// inactive.
func (g *GroupManager) IsActive(group string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active[group]
}

// Activate equips a known group.
func (g *GroupManager) Activate(group string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[group]; !ok {
		return fmt.Errorf("unknown tool group %s", group)
	}
	g.active[group] = true
	return nil
}

// Deactivate unequips a group. The default group cannot be deactivated.
func (g *GroupManager) Deactivate(group string) error {
	if group == DefaultGroup {
		return fmt.Errorf("group %s cannot be deactivated", DefaultGroup)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[group]; !ok {
		return fmt.Errorf("unknown tool group %s", group)
	}
	g.active[group] = false
	return nil
}

// Reset equips exactly the named groups plus the default group; every other
// known group is unequipped. Unknown names are rejected before any change is
// applied.
func (g *GroupManager) Reset(groups []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, name := range groups {
		if _, ok := g.active[name]; !ok {
			return fmt.Errorf("unknown tool group %s", name)
		}
	}
	for name := range g.active {
		g.active[name] = name == DefaultGroup
	}
	for _, name := range groups {
		g.active[name] = true
	}
	return nil
}

// Names returns every known group, sorted.
func (g *GroupManager) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.active))
	for name := range g.active {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ActiveNames returns the currently equipped groups, sorted.
func (g *GroupManager) ActiveNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.active))
	for name, on := range g.active {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// registerMetaTools installs reset_equipped_tools so the model can toggle
// groups mid-conversation. The tool reports the resulting active set.
func (tk *Toolkit) registerMetaTools() {
	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"groups": map[string]any{
				"type":        "array",
				"description": "Names of the tool groups to equip. All other groups are unequipped.",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required": []string{"groups"},
	})

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Groups []string `json:"groups"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		if err := tk.groups.Reset(req.Groups); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"active_groups": tk.groups.ActiveNames(),
		})
	}

	_ = tk.Register(MetaToolResetEquipped, fn, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        MetaToolResetEquipped,
			Description: "Equip a new set of tool groups. Tools outside the equipped groups become unavailable.",
			Parameters:  params,
		},
	})
}
