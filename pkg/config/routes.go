package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultCompID is the router's session identity when none is configured.
const DefaultCompID = "FIXROUTER"

// Routing is the route table plus the buy-side and sell-side sender sets.
//
//	comp_id: FIXROUTER
//	routes:
//	  EX1: EXCH1
//	buys: [BUY1]
//	sells: [EXCH1]
type Routing struct {
	CompID string            `yaml:"comp_id"`
	Routes map[string]string `yaml:"routes"`
	Buys   []string          `yaml:"buys"`
	Sells  []string          `yaml:"sells"`
}

// LoadRouting parses a YAML route file.
func LoadRouting(path string) (Routing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Routing{}, fmt.Errorf("read routes: %w", err)
	}
	return ParseRouting(data)
}

func ParseRouting(data []byte) (Routing, error) {
	var r Routing
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Routing{}, fmt.Errorf("parse routes: %w", err)
	}
	if r.CompID == "" {
		r.CompID = DefaultCompID
	}
	return r, nil
}

// Validate rejects an empty route table and senders listed on both sides.
func (r Routing) Validate() error {
	if len(r.Routes) == 0 {
		return errors.New("route table is empty")
	}
	for name, target := range r.Routes {
		if target == "" {
			return fmt.Errorf("route %q has no comp id", name)
		}
	}
	buys := make(map[string]struct{}, len(r.Buys))
	for _, b := range r.Buys {
		buys[b] = struct{}{}
	}
	for _, s := range r.Sells {
		if _, ok := buys[s]; ok {
			return fmt.Errorf("sender %q is both buy-side and sell-side", s)
		}
	}
	return nil
}

// Names returns route names in sorted order.
func (r Routing) Names() []string {
	out := make([]string, 0, len(r.Routes))
	for name := range r.Routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
