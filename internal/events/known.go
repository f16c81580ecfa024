package events

import "strings"

// DisplayInfo is the presentation data of a well-known address.
type DisplayInfo struct {
	Name     string `mapstructure:"name" json:"name,omitempty"`
	ImageURL string `mapstructure:"image_url" json:"imageUrl,omitempty"`
}

// KnownAddresses resolves display information for an address.
type KnownAddresses interface {
	GetDisplayInfoFor(address string) DisplayInfo
}

// KnownAddressMap is a static directory keyed by lower-cased address.
type KnownAddressMap map[string]DisplayInfo

// NewKnownAddressMap normalises keys of the given directory.
func NewKnownAddressMap(in map[string]DisplayInfo) KnownAddressMap {
	out := make(KnownAddressMap, len(in))
	for addr, info := range in {
		out[strings.ToLower(addr)] = info
	}
	return out
}

func (m KnownAddressMap) GetDisplayInfoFor(address string) DisplayInfo {
	return m[strings.ToLower(address)]
}
