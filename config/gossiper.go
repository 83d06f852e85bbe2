package config

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Multiaddr wraps a multiaddress with text (un)marshalling so that it can
// live as a leaf in the config tree.
type Multiaddr struct {
	ma.Multiaddr
}

// NewMultiaddr parses a multiaddress such as "/ip4/0.0.0.0/tcp/26659".
func NewMultiaddr(s string) (Multiaddr, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return Multiaddr{}, err
	}
	return Multiaddr{addr}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Multiaddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Multiaddr) UnmarshalText(text []byte) error {
	addr, err := ma.NewMultiaddr(string(text))
	if err != nil {
		return err
	}
	a.Multiaddr = addr
	return nil
}

// PeerAddress is the identity of a bootstrap peer. Externally it is a
// single multiaddress with a trailing /p2p/<peer_id> segment.
type PeerAddress struct {
	Address Multiaddr
	PeerID  peer.ID
}

// ParsePeerAddress decodes a bootstrap peer multiaddress, popping the
// trailing /p2p/ segment into the peer identifier.
func ParsePeerAddress(s string) (PeerAddress, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return PeerAddress{}, &BadBootstrapPeerFormat{Text: s}
	}
	rest, last := ma.SplitLast(addr)
	if rest == nil || last == nil || last.Protocol().Code != ma.P_P2P {
		return PeerAddress{}, &BadBootstrapPeerFormat{Text: s}
	}
	id, err := peer.Decode(last.Value())
	if err != nil {
		return PeerAddress{}, &BadBootstrapPeerFormat{Text: s}
	}
	return PeerAddress{Address: Multiaddr{rest}, PeerID: id}, nil
}

func (p PeerAddress) String() string {
	return fmt.Sprintf("%s/p2p/%s", p.Address.String(), peer.Encode(p.PeerID))
}

// MarshalText implements encoding.TextMarshaler.
func (p PeerAddress) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PeerAddress) UnmarshalText(text []byte) error {
	parsed, err := ParsePeerAddress(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// SubscriptionFilter is an untagged variant: either a regex over topics or
// an explicit whitelist. Variant selection is structural, a TOML string
// reads as the regex variant and a list of strings as the whitelist.
type SubscriptionFilter struct {
	// RegexPattern is set for the regex variant. It is validated on
	// construction and on read.
	RegexPattern string
	// Whitelist is set for the whitelist variant.
	Whitelist []string
}

// RegexFilter returns the regex variant, validating the pattern.
func RegexFilter(pattern string) (SubscriptionFilter, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return SubscriptionFilter{}, err
	}
	return SubscriptionFilter{RegexPattern: pattern}, nil
}

// WhitelistFilter returns the whitelist variant.
func WhitelistFilter(topics []string) SubscriptionFilter {
	return SubscriptionFilter{Whitelist: topics}
}

// Regex compiles the regex variant's pattern.
func (f SubscriptionFilter) Regex() (*regexp.Regexp, error) {
	return regexp.Compile(f.RegexPattern)
}

// IsRegex reports whether the regex variant is selected.
func (f SubscriptionFilter) IsRegex() bool { return f.Whitelist == nil }

// MarshalTOML emits the canonical form of the selected variant.
func (f SubscriptionFilter) MarshalTOML() ([]byte, error) {
	if f.IsRegex() {
		return []byte(strconv.Quote(f.RegexPattern)), nil
	}
	quoted := make([]string, len(f.Whitelist))
	for i, topic := range f.Whitelist {
		quoted[i] = strconv.Quote(topic)
	}
	return []byte("[" + strings.Join(quoted, ", ") + "]"), nil
}

// UnmarshalTOML tries the variants in order: a string parses as a regex, a
// list of strings as a whitelist.
func (f *SubscriptionFilter) UnmarshalTOML(v interface{}) error {
	switch value := v.(type) {
	case string:
		filter, err := RegexFilter(value)
		if err != nil {
			return err
		}
		*f = filter
		return nil
	case []interface{}:
		topics := make([]string, 0, len(value))
		for _, t := range value {
			s, ok := t.(string)
			if !ok {
				return fmt.Errorf("subscription filter whitelist entry %v is not a string", t)
			}
			topics = append(topics, s)
		}
		*f = WhitelistFilter(topics)
		return nil
	default:
		return fmt.Errorf("subscription filter must be a regex string or a list of topics, got %T", v)
	}
}

// IntentGossiper holds the intent gossip overlay settings.
//
// The scalar fields must stay declared before the table-valued fields so
// that the serialized form keeps values ahead of tables.
type IntentGossiper struct {
	// Address is the overlay's own listen multiaddress.
	Address Multiaddr `toml:"address" mapstructure:"address"`
	Topics  []string  `toml:"topics" mapstructure:"topics"`
	// MatchmakersServerAddr is the server address to which matchmakers can
	// connect to receive intents.
	MatchmakersServerAddr netip.AddrPort `toml:"matchmakers_server_addr" mapstructure:"matchmakers_server_addr"`

	SubscriptionFilter SubscriptionFilter `toml:"subscription_filter" mapstructure:"subscription_filter"`
	SeedPeers          []PeerAddress      `toml:"seed_peers" mapstructure:"seed_peers"`
	RPC                *RPCServer         `toml:"rpc,omitempty" mapstructure:"rpc"`
	DiscoverPeer       *DiscoverPeer      `toml:"discover_peer,omitempty" mapstructure:"discover_peer"`
}

// DefaultIntentGossiper returns the default overlay settings.
func DefaultIntentGossiper() IntentGossiper {
	addr, err := NewMultiaddr("/ip4/0.0.0.0/tcp/26659")
	if err != nil {
		panic(err)
	}
	filter, err := RegexFilter(`asset_v\d{1,2}`)
	if err != nil {
		panic(err)
	}
	discover := DefaultDiscoverPeer()
	return IntentGossiper{
		Address:               addr,
		Topics:                []string{"asset_v0"},
		MatchmakersServerAddr: netip.MustParseAddrPort("127.0.0.1:26661"),
		SubscriptionFilter:    filter,
		SeedPeers:             []PeerAddress{},
		RPC:                   nil,
		DiscoverPeer:          &discover,
	}
}

// Update overrides the listen address and enables the RPC server when the
// respective argument is set.
func (g *IntentGossiper) Update(addr *Multiaddr, rpc *netip.AddrPort) {
	if addr != nil {
		g.Address = *addr
	}
	if rpc != nil {
		g.RPC = &RPCServer{Address: *rpc}
	}
}

// AddTopic inserts a topic into the gossiper's topic set.
func (g *IntentGossiper) AddTopic(topic string) {
	for _, t := range g.Topics {
		if t == topic {
			return
		}
	}
	g.Topics = append(g.Topics, topic)
}

// RPCServer holds the optional gossip RPC server settings.
type RPCServer struct {
	Address netip.AddrPort `toml:"address" mapstructure:"address"`
}

// DefaultRPCServer returns the default RPC server settings.
func DefaultRPCServer() RPCServer {
	return RPCServer{Address: netip.MustParseAddrPort("127.0.0.1:26660")}
}

// DiscoverPeer holds the peer discovery policy.
type DiscoverPeer struct {
	MaxDiscoveryPeers uint64 `toml:"max_discovery_peers" mapstructure:"max_discovery_peers"`
	// Kademlia toggles remote peer discovery, on by default.
	Kademlia bool `toml:"kademlia" mapstructure:"kademlia"`
	// MDNS toggles local network peer discovery, off by default.
	MDNS bool `toml:"mdns" mapstructure:"mdns"`
}

// DefaultDiscoverPeer returns the default discovery policy.
func DefaultDiscoverPeer() DiscoverPeer {
	return DiscoverPeer{
		MaxDiscoveryPeers: 16,
		Kademlia:          true,
		MDNS:              false,
	}
}

// Matchmaker holds the optional matchmaker worker paths. All-unset is
// legal.
type Matchmaker struct {
	MatchmakerPath string `toml:"matchmaker_path,omitempty" mapstructure:"matchmaker_path"`
	TxCodePath     string `toml:"tx_code_path,omitempty" mapstructure:"tx_code_path"`
}
