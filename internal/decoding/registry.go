package decoding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

// CounterpartyGas tags transaction fee events.
const CounterpartyGas = "gas"

// Registry holds the rules of every plugin loaded for one chain. Register and
// reload take the write lock; decoding only reads.
type Registry struct {
	chainID model.ChainID
	logger  *zap.Logger

	mu                  sync.RWMutex
	plugins             []Plugin
	pluginNames         map[string]struct{}
	counterparties      map[string]model.CounterpartyDetails
	addressRules        map[common.Address][]AddressRule
	genericRules        []GenericRule
	enricherRules       []EnricherRule
	postRules           map[string][]PostRule
	addressCounterparty map[common.Address]string
}

// NewRegistry returns an empty registry with the built-in gas counterparty.
func NewRegistry(chainID model.ChainID, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		chainID:     chainID,
		logger:      logger,
		pluginNames: make(map[string]struct{}),
		counterparties: map[string]model.CounterpartyDetails{
			CounterpartyGas: {Identifier: CounterpartyGas, Label: "Gas"},
		},
		addressRules:        make(map[common.Address][]AddressRule),
		postRules:           make(map[string][]PostRule),
		addressCounterparty: make(map[common.Address]string),
	}
}

// BuildRegistry constructs every plugin in order and registers it.
func BuildRegistry(chainID model.ChainID, constructors []PluginConstructor, deps PluginDeps) (*Registry, error) {
	deps.ChainID = chainID
	registry := NewRegistry(chainID, deps.Logger)
	for i, construct := range constructors {
		plugin, err := construct(deps)
		if err != nil {
			return nil, &ModuleLoadingError{Plugin: fmt.Sprintf("#%d", i), Reason: err.Error()}
		}
		if err := registry.Register(plugin); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// ChainID returns the chain the registry serves.
func (r *Registry) ChainID() model.ChainID {
	return r.chainID
}

// Register adds a plugin's rules. Counterparty identifiers and plugin names
// must be unique; nothing is registered when validation fails.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, ok := r.pluginNames[name]; ok {
		return &ModuleLoadingError{Plugin: name, Reason: "plugin registered twice"}
	}

	details := p.Counterparties()
	seen := make(map[string]struct{}, len(details))
	for _, cpt := range details {
		if cpt.Identifier == "" {
			return &ModuleLoadingError{Plugin: name, Reason: "empty counterparty identifier"}
		}
		if _, ok := r.counterparties[cpt.Identifier]; ok {
			return &ModuleLoadingError{Plugin: name, Reason: fmt.Sprintf("duplicate counterparty %q", cpt.Identifier)}
		}
		if _, ok := seen[cpt.Identifier]; ok {
			return &ModuleLoadingError{Plugin: name, Reason: fmt.Sprintf("duplicate counterparty %q", cpt.Identifier)}
		}
		seen[cpt.Identifier] = struct{}{}
	}

	r.pluginNames[name] = struct{}{}
	r.plugins = append(r.plugins, p)
	for _, cpt := range details {
		r.counterparties[cpt.Identifier] = cpt
	}
	for _, rule := range p.AddressRules() {
		r.addRule(rule)
	}
	if provider, ok := p.(GenericRuleProvider); ok {
		for _, rule := range provider.DecodingRules() {
			r.addRule(rule)
		}
	}
	if provider, ok := p.(EnricherProvider); ok {
		for _, rule := range provider.EnricherRules() {
			r.addRule(rule)
		}
	}
	if provider, ok := p.(PostDecodingProvider); ok {
		for _, rule := range provider.PostDecodingRules() {
			r.addRule(rule)
		}
	}
	if provider, ok := p.(CounterpartyAddressProvider); ok {
		for addr, cpt := range provider.AddressesToCounterparties() {
			r.addressCounterparty[addr] = cpt
		}
	}

	r.logger.Debug("plugin registered",
		zap.String("plugin", name),
		zap.Uint64("chain_id", uint64(r.chainID)),
		zap.Int("counterparties", len(details)),
	)
	return nil
}

func (r *Registry) addRule(rule Rule) {
	switch typed := rule.(type) {
	case AddressRule:
		r.addressRules[typed.Address] = append(r.addressRules[typed.Address], typed)
	case GenericRule:
		r.genericRules = append(r.genericRules, typed)
	case EnricherRule:
		r.enricherRules = append(r.enricherRules, typed)
	case PostRule:
		r.postRules[typed.Counterparty] = append(r.postRules[typed.Counterparty], typed)
	}
}

// Reload asks p for newly discovered addresses and merges them in. Existing
// address rules are left untouched. It returns the number of rules added.
func (r *Registry) Reload(ctx context.Context, p Reloadable) (int, error) {
	delta, err := p.Reload(ctx)
	if err != nil {
		return 0, fmt.Errorf("reload %s: %w", p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, rule := range delta {
		if r.hasAddressRule(rule.Address, rule.Name) {
			continue
		}
		r.addressRules[rule.Address] = append(r.addressRules[rule.Address], rule)
		added++
	}
	return added, nil
}

// ReloadAll reloads every reloadable plugin. Failures are logged and do not
// stop the others.
func (r *Registry) ReloadAll(ctx context.Context) int {
	total := 0
	for _, p := range r.Plugins() {
		reloadable, ok := p.(Reloadable)
		if !ok {
			continue
		}
		added, err := r.Reload(ctx, reloadable)
		if err != nil {
			r.logger.Warn("plugin reload failed", zap.String("plugin", p.Name()), zap.Error(err))
			continue
		}
		total += added
	}
	return total
}

func (r *Registry) hasAddressRule(address common.Address, name string) bool {
	for _, existing := range r.addressRules[address] {
		if existing.Name == name {
			return true
		}
	}
	return false
}

// Lookup returns the rules bound to address in registration order.
func (r *Registry) Lookup(address common.Address) []AddressRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := r.addressRules[address]
	if len(rules) == 0 {
		return nil
	}
	out := make([]AddressRule, len(rules))
	copy(out, rules)
	return out
}

// GenericRules returns the chain-wide decoding rules.
func (r *Registry) GenericRules() []GenericRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GenericRule, len(r.genericRules))
	copy(out, r.genericRules)
	return out
}

// EnricherRules returns the transfer enrichers.
func (r *Registry) EnricherRules() []EnricherRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EnricherRule, len(r.enricherRules))
	copy(out, r.enricherRules)
	return out
}

// PostRules returns the post-decoding rules for the given counterparties,
// ordered by priority then counterparty.
func (r *Registry) PostRules(counterparties []string) []PostRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PostRule
	for _, cpt := range counterparties {
		out = append(out, r.postRules[cpt]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Counterparty < out[j].Counterparty
	})
	return out
}

// CounterpartyForAddress returns the protocol that owns a contract.
func (r *Registry) CounterpartyForAddress(address common.Address) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cpt, ok := r.addressCounterparty[address]
	return cpt, ok
}

// Counterparties lists every registered counterparty sorted by identifier.
func (r *Registry) Counterparties() []model.CounterpartyDetails {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.CounterpartyDetails, 0, len(r.counterparties))
	for _, cpt := range r.counterparties {
		out = append(out, cpt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Plugins returns the plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}
