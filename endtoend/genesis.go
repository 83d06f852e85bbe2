package endtoend

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// GenesisDoc is a genesis document held as a generic TOML tree, so that
// tests can rewrite the parts they care about without the harness keeping a
// full schema of the chain's genesis format.
type GenesisDoc struct {
	root map[string]interface{}
}

// OpenGenesis reads a genesis TOML document.
func OpenGenesis(path string) (*GenesisDoc, error) {
	var root map[string]interface{}
	if _, err := toml.DecodeFile(path, &root); err != nil {
		return nil, errors.Wrapf(err, "could not open genesis file %s", path)
	}
	return &GenesisDoc{root: root}, nil
}

// Write stores the document at the given path.
func (g *GenesisDoc) Write(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(g.root); err != nil {
		return errors.Wrapf(err, "could not serialize genesis for %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "could not write genesis file %s", path)
	}
	return nil
}

// Validators returns the mutable validator table, keyed by alias.
func (g *GenesisDoc) Validators() map[string]map[string]interface{} {
	raw, ok := g.root["validator"].(map[string]interface{})
	if !ok {
		return nil
	}
	validators := make(map[string]map[string]interface{}, len(raw))
	for alias, entry := range raw {
		fields, err := cast.ToStringMapE(entry)
		if err != nil {
			continue
		}
		validators[alias] = fields
	}
	// Re-point the table at the casted maps so mutations stick.
	converted := make(map[string]interface{}, len(validators))
	for alias, fields := range validators {
		converted[alias] = fields
	}
	g.root["validator"] = converted
	return validators
}

// Validator returns a single validator entry by alias.
func (g *GenesisDoc) Validator(alias string) (map[string]interface{}, bool) {
	fields, ok := g.Validators()[alias]
	return fields, ok
}

// setValidator inserts or replaces a validator entry.
func (g *GenesisDoc) setValidator(alias string, fields map[string]interface{}) {
	validators, ok := g.root["validator"].(map[string]interface{})
	if !ok {
		validators = map[string]interface{}{}
		g.root["validator"] = validators
	}
	validators[alias] = fields
}

// AddValidators adds num validators to the genesis document by cloning the
// first validator's entry. The first validator becomes the intent gossip
// seed and loses its matchmaker triple, because a seed node does not
// participate in matchmaking. Each addition gets a 6 port stride on top of
// the template's net address.
//
// Do not call this more than once on the same document.
func AddValidators(num int, genesis *GenesisDoc) *GenesisDoc {
	validator0, ok := genesis.Validator("validator-0")
	if !ok {
		panic("genesis document has no validator-0 to clone")
	}
	// Clone the first validator before modifying it.
	template := copyTree(validator0)

	// The first validator is the bootstrap node for P2P connectivity.
	validator0["intent_gossip_seed"] = true
	delete(validator0, "matchmaker_account")
	delete(validator0, "matchmaker_code")
	delete(validator0, "matchmaker_tx")

	host, portStr, err := net.SplitHostPort(cast.ToString(validator0["net_address"]))
	if err != nil {
		panic(fmt.Sprintf("validator-0 net address is malformed: %v", err))
	}
	basePort, err := strconv.Atoi(portStr)
	if err != nil {
		panic(fmt.Sprintf("validator-0 net address port is malformed: %v", err))
	}

	for i := 1; i <= num; i++ {
		validator := copyTree(template)
		// Only the first validator is a bootstrap node.
		delete(validator, "intent_gossip_seed")
		// 6 ports reserved for each validator.
		validator["net_address"] = net.JoinHostPort(host, strconv.Itoa(basePort+6*i))
		genesis.setValidator(fmt.Sprintf("validator-%d", i), validator)
	}
	return genesis
}

func copyTree(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for key, value := range src {
		if nested, ok := value.(map[string]interface{}); ok {
			dst[key] = copyTree(nested)
			continue
		}
		if list, ok := value.([]interface{}); ok {
			dst[key] = append([]interface{}{}, list...)
			continue
		}
		dst[key] = value
	}
	return dst
}
