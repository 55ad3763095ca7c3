// Package inventory maps names and groups to endpoint hosts.
package inventory

import (
	"fmt"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// Host is one inventory entry. Zero-valued connection fields defer to the
// global connection settings at dial time.
type Host struct {
	Name     string `yaml:"-"`
	Addr     string `yaml:"addr"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	HTTPS    bool   `yaml:"https"`
	Insecure bool   `yaml:"insecure"`
}

// Address returns the dialable address, defaulting to the entry name.
func (h Host) Address() string {
	if h.Addr != "" {
		return h.Addr
	}
	return h.Name
}

// Inventory holds named hosts and named groups of hosts.
type Inventory struct {
	Hosts  map[string]Host     `yaml:"hosts"`
	Groups map[string][]string `yaml:"groups"`
}

// Load reads an inventory file. A missing file is an empty inventory, so
// commands that never touch the inventory do not require one.
func Load(file string) (*Inventory, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return &Inventory{}, nil
		}
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", file, err)
	}
	return inv, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}
	for name, h := range inv.Hosts {
		h.Name = name
		inv.Hosts[name] = h
	}
	if err := inv.validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv *Inventory) validate() error {
	for group, members := range inv.Groups {
		if _, clash := inv.Hosts[group]; clash {
			return fmt.Errorf("%q is both a host and a group", group)
		}
		for _, member := range members {
			if _, ok := inv.Hosts[member]; !ok {
				return fmt.Errorf("group %q references unknown host %q", group, member)
			}
		}
	}
	return nil
}

// Select resolves one target expression: a group name, a host name, or a
// glob over host names. "all" selects every host unless an entry claims the
// name. Results come back sorted by name.
func (inv *Inventory) Select(pattern string) ([]Host, error) {
	if members, ok := inv.Groups[pattern]; ok {
		hosts := make([]Host, 0, len(members))
		for _, name := range members {
			hosts = append(hosts, inv.Hosts[name])
		}
		sortHosts(hosts)
		return hosts, nil
	}
	if host, ok := inv.Hosts[pattern]; ok {
		return []Host{host}, nil
	}
	if pattern == "all" {
		return inv.All(), nil
	}

	var hosts []Host
	for name, host := range inv.Hosts {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("bad target pattern %q: %w", pattern, err)
		}
		if ok {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no inventory entry matches %q", pattern)
	}
	sortHosts(hosts)
	return hosts, nil
}

// SelectMany resolves several target expressions and deduplicates the union
// by host name.
func (inv *Inventory) SelectMany(patterns []string) ([]Host, error) {
	seen := make(map[string]bool)
	var hosts []Host
	for _, pattern := range patterns {
		matched, err := inv.Select(pattern)
		if err != nil {
			return nil, err
		}
		for _, host := range matched {
			if seen[host.Name] {
				continue
			}
			seen[host.Name] = true
			hosts = append(hosts, host)
		}
	}
	sortHosts(hosts)
	return hosts, nil
}

// All returns every host sorted by name.
func (inv *Inventory) All() []Host {
	hosts := make([]Host, 0, len(inv.Hosts))
	for _, host := range inv.Hosts {
		hosts = append(hosts, host)
	}
	sortHosts(hosts)
	return hosts
}

func sortHosts(hosts []Host) {
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
}
