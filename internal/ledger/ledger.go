package ledger

import (
	"fmt"
	"os"
	"sort"

	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DataError indicates a malformed inventory that must not be applied
type DataError struct {
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid inventory: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid inventory: %s", e.Reason)
}

func (e *DataError) Unwrap() error { return e.Err }

// Ledger is the canonical normalized resource inventory
type Ledger []types.ResourceGroup

// Initialize validates raw inventory groups and returns a ledger copy.
// Totals are fixed here for the life of the session.
func Initialize(groups []types.ResourceGroup) (Ledger, error) {
	if len(groups) == 0 {
		return nil, &DataError{Reason: "empty inventory"}
	}

	out := make(Ledger, 0, len(groups))
	for _, group := range groups {
		if group.Category == "" {
			return nil, &DataError{Reason: "group missing category"}
		}
		items := make([]types.ResourceItem, 0, len(group.Items))
		for _, item := range group.Items {
			if item.Name == "" {
				return nil, &DataError{Reason: fmt.Sprintf("item in %q missing name", group.Category)}
			}
			if item.Total == 0 && item.Available > 0 {
				item.Total = item.Available
			}
			if item.Available < 0 || item.Total < 0 || item.Available > item.Total {
				return nil, &DataError{Reason: fmt.Sprintf("item %q has available %d of total %d", item.Name, item.Available, item.Total)}
			}
			items = append(items, item)
		}
		out = append(out, types.ResourceGroup{Category: group.Category, Items: items})
	}

	return out, nil
}

// Validate checks the ledger invariant on every item
func Validate(l Ledger) error {
	for _, group := range l {
		if group.Category == "" {
			return &DataError{Reason: "group missing category"}
		}
		for _, item := range group.Items {
			if item.Available < 0 || item.Available > item.Total {
				return &DataError{Reason: fmt.Sprintf("item %q has available %d of total %d", item.Name, item.Available, item.Total)}
			}
		}
	}
	return nil
}

// FromWire converts the collaborator's nested quantity map into a ledger.
// Display order, icons and totals are carried over from the previous ledger;
// items the collaborator introduces get total = available. The previous
// ledger is never modified, so a validation failure leaves it intact.
func FromWire(wire map[string]map[string]int, prev Ledger) (Ledger, error) {
	if len(wire) == 0 {
		return nil, &DataError{Reason: "empty inventory"}
	}

	out := make(Ledger, 0, len(wire))
	seen := make(map[string]bool, len(wire))

	// Known categories first, in their existing order
	for _, group := range prev {
		quantities, ok := wire[group.Category]
		if !ok {
			continue
		}
		seen[group.Category] = true

		items := make([]types.ResourceItem, 0, len(quantities))
		used := make(map[string]bool, len(quantities))
		for _, item := range group.Items {
			available, ok := quantities[item.Name]
			if !ok {
				continue
			}
			used[item.Name] = true
			next := item
			next.Available = available
			if next.Available < 0 || next.Available > next.Total {
				return nil, &DataError{Reason: fmt.Sprintf("item %q has available %d of total %d", item.Name, available, item.Total)}
			}
			items = append(items, next)
		}
		for _, name := range sortedKeys(quantities) {
			if used[name] {
				continue
			}
			available := quantities[name]
			if available < 0 {
				return nil, &DataError{Reason: fmt.Sprintf("item %q has negative quantity %d", name, available)}
			}
			items = append(items, types.ResourceItem{Name: name, Available: available, Total: available})
		}
		out = append(out, types.ResourceGroup{Category: group.Category, Items: items})
	}

	// New categories, in stable order
	for _, category := range sortedGroupKeys(wire) {
		if seen[category] {
			continue
		}
		quantities := wire[category]
		items := make([]types.ResourceItem, 0, len(quantities))
		for _, name := range sortedKeys(quantities) {
			available := quantities[name]
			if available < 0 {
				return nil, &DataError{Reason: fmt.Sprintf("item %q has negative quantity %d", name, available)}
			}
			items = append(items, types.ResourceItem{Name: name, Available: available, Total: available})
		}
		out = append(out, types.ResourceGroup{Category: category, Items: items})
	}

	return out, nil
}

// ToWire converts the ledger into the collaborator's nested quantity map
func (l Ledger) ToWire() map[string]map[string]int {
	wire := make(map[string]map[string]int, len(l))
	for _, group := range l {
		quantities := make(map[string]int, len(group.Items))
		for _, item := range group.Items {
			quantities[item.Name] = item.Available
		}
		wire[group.Category] = quantities
	}
	return wire
}

// Clone returns a deep copy of the ledger
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for i, group := range l {
		items := make([]types.ResourceItem, len(group.Items))
		copy(items, group.Items)
		out[i] = types.ResourceGroup{Category: group.Category, Items: items}
	}
	return out
}

// Groups returns the ledger as plain resource groups
func (l Ledger) Groups() []types.ResourceGroup {
	return l.Clone()
}

type seedFile struct {
	Resources []seedGroup `yaml:"resources"`
}

type seedGroup struct {
	Category string     `yaml:"category"`
	Items    []seedItem `yaml:"items"`
}

type seedItem struct {
	Name  string `yaml:"name"`
	Icon  string `yaml:"icon"`
	Total int    `yaml:"total"`
}

// Seed loads the seed inventory from a YAML file, falling back to the
// compiled-in default when the file is missing or malformed
func Seed(path string, logger *zap.Logger) Ledger {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Seed inventory unavailable, using default",
			zap.String("path", path),
			zap.Error(err))
		return Default()
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Warn("Seed inventory malformed, using default",
			zap.String("path", path),
			zap.Error(err))
		return Default()
	}

	groups := make([]types.ResourceGroup, 0, len(file.Resources))
	for _, group := range file.Resources {
		items := make([]types.ResourceItem, 0, len(group.Items))
		for _, item := range group.Items {
			items = append(items, types.ResourceItem{
				Name:      item.Name,
				Icon:      item.Icon,
				Available: item.Total,
				Total:     item.Total,
			})
		}
		groups = append(groups, types.ResourceGroup{Category: group.Category, Items: items})
	}

	ledger, err := Initialize(groups)
	if err != nil {
		logger.Warn("Seed inventory invalid, using default", zap.Error(err))
		return Default()
	}

	return ledger
}

// Default returns the built-in starting inventory
func Default() Ledger {
	return Ledger{
		{
			Category: "Medical Resources",
			Items: []types.ResourceItem{
				{Name: "Ambulances", Icon: "🚑", Available: 10, Total: 10},
				{Name: "Doctors", Icon: "👨‍⚕️", Available: 25, Total: 25},
				{Name: "Nurses", Icon: "👩‍⚕️", Available: 40, Total: 40},
				{Name: "Medical Kits", Icon: "🧰", Available: 100, Total: 100},
				{Name: "Generators", Icon: "⚡", Available: 15, Total: 15},
			},
		},
		{
			Category: "Logistics & Support",
			Items: []types.ResourceItem{
				{Name: "Rescue Boats", Icon: "🚤", Available: 10, Total: 10},
				{Name: "Fuel Reserves", Icon: "⛽", Available: 100, Total: 100},
				{Name: "Comm Radios", Icon: "📻", Available: 25, Total: 25},
				{Name: "Water Units", Icon: "💧", Available: 50, Total: 50},
				{Name: "Shelter Tents", Icon: "⛺", Available: 20, Total: 20},
			},
		},
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedGroupKeys(m map[string]map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
