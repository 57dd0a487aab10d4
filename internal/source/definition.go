package source

import (
	"strconv"
	"strings"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
)

// kv is one key=value pair from a definition string, kept in parse order so
// Format can reproduce the exact input (spec §8: "parse(format(defn)) ==
// defn for every well-formed source definition").
type kv struct {
	key   string
	value string
}

// Definition is a parsed SourceDefinition (spec §3, §6.1): "<interface>[:k1=v1,k2=v2,...]".
// It is immutable after a Source opens with it.
type Definition struct {
	Raw       string
	Interface string
	pairs     []kv

	Type string // explicit driver type, from an optional "type=" key

	Name    string
	UUID    string
	Channel string
	Channels []string

	Hop         bool
	HopSet      bool
	HopRate     float64
	Offset      uint32
	Split       bool
	Shuffle     bool
	Retry       bool
	RetrySet    bool

	HTChannels   bool
	VHTChannels  bool
	DefaultHT20  bool
	ExpandHT20   bool

	// FilterMode and FilterValue hold whichever one of filter_mgmt,
	// truncate_data, filter_locals, filter_interface, filter_address was set
	// (spec §6.1: "mutually exclusive with each other").
	FilterMode  string
	FilterValue string

	Verbose    bool
	Statistics bool
}

// ParseDefinition parses a source definition string (spec §6.1).
func ParseDefinition(raw string) (*Definition, *kiserr.Error) {
	if raw == "" {
		return nil, kiserr.New(kiserr.KindBadDefinition, "empty source definition")
	}

	iface, rest, _ := strings.Cut(raw, ":")
	if iface == "" {
		return nil, kiserr.New(kiserr.KindBadDefinition, "source definition missing interface")
	}

	d := &Definition{Raw: raw, Interface: iface}

	filterKeys := map[string]bool{
		"filter_mgmt": true, "truncate_data": true, "filter_locals": true,
		"filter_interface": true, "filter_address": true,
	}
	var filtersSeen []string

	if rest != "" {
		for _, part := range strings.Split(rest, ",") {
			if part == "" {
				continue
			}
			key, val, hasVal := strings.Cut(part, "=")
			if !hasVal {
				val = "true"
			}
			d.pairs = append(d.pairs, kv{key: key, value: val})

			switch key {
			case "type":
				d.Type = val
			case "name":
				d.Name = val
			case "uuid":
				d.UUID = val
			case "channel":
				d.Channel = val
			case "channels":
				d.Channels = splitNonEmpty(val, ";")
			case "hop":
				d.Hop = parseBool(val)
				d.HopSet = true
			case "hop_rate":
				d.HopRate, _ = strconv.ParseFloat(val, 64)
			case "offset":
				n, _ := strconv.ParseUint(val, 10, 32)
				d.Offset = uint32(n)
			case "split":
				d.Split = parseBool(val)
			case "shuffle":
				d.Shuffle = parseBool(val)
			case "retry":
				d.Retry = parseBool(val)
				d.RetrySet = true
			case "ht_channels":
				d.HTChannels = parseBool(val)
			case "vht_channels":
				d.VHTChannels = parseBool(val)
			case "default_ht20":
				d.DefaultHT20 = parseBool(val)
			case "expand_ht20":
				d.ExpandHT20 = parseBool(val)
			case "verbose":
				d.Verbose = parseBool(val)
			case "statistics":
				d.Statistics = parseBool(val)
			default:
				if filterKeys[key] {
					filtersSeen = append(filtersSeen, key)
					d.FilterMode = key
					d.FilterValue = val
				}
				// Unrecognized keys are preserved verbatim for Format but are
				// otherwise ignored (spec §6.1: "drivers may accept more").
			}
		}
	}

	if len(filtersSeen) > 1 {
		return nil, kiserr.New(kiserr.KindBadDefinition, "mutually exclusive filter keys: "+strings.Join(filtersSeen, ", "))
	}

	return d, nil
}

// Format reproduces the definition's original text exactly, by replaying
// the parsed key=value pairs in their original order.
func (d *Definition) Format() string {
	if len(d.pairs) == 0 {
		return d.Interface
	}
	parts := make([]string, 0, len(d.pairs))
	for _, p := range d.pairs {
		parts = append(parts, p.key+"="+p.value)
	}
	return d.Interface + ":" + strings.Join(parts, ",")
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
