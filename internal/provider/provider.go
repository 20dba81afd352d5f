/*

Provider identifies one backend lending market the vault can deploy capital into.
The set is closed: adding a backend means adding a constant here and an adapter in
the market package.

*/

package provider

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var ErrUnknownProvider = errors.New("unknown provider")

type Provider uint8

const (
	Solend Provider = iota
	Port
	Jet

	// Count is the number of providers. Ordinals are contiguous in [0, Count).
	Count = 3
)

var names = [Count]string{"solend", "port", "jet"}

func (p Provider) String() string {
	if !p.Valid() {
		return fmt.Sprintf("provider(%d)", uint8(p))
	}
	return names[p]
}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	return int(p) < Count
}

// Providers yields every provider in ordinal order.
func Providers() iter.Seq[Provider] {
	return func(yield func(Provider) bool) {
		for i := 0; i < Count; i++ {
			if !yield(Provider(i)) {
				return
			}
		}
	}
}

// ParseProvider resolves a provider from its name, case-insensitively.
func ParseProvider(name string) (Provider, error) {
	for p := range Providers() {
		if strings.EqualFold(names[p], name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

func (p Provider) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProvider, uint8(p))
	}
	return []byte(names[p]), nil
}

func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
