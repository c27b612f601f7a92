// Copyright 2025 Certen Protocol
//
// Registry loads the static domain rosters (§4.8/§4.9) from YAML, defaulting
// to the embedded fixtures and falling back to an operator-supplied path —
// the same load-with-override shape as the teacher's
// pkg/config.LoadAnchorConfig.

package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a lookup finds no matching roster entry.
var ErrNotFound = fmt.Errorf("registry: not found")

// Registry holds every static roster needed by the executive pipeline.
type Registry struct {
	Portfolios  []Portfolio
	Dukes       []Duke
	Earls       []Earl
	EarlRouting EarlRouting
	Clusters    []Cluster
}

type portfoliosFile struct {
	Portfolios []Portfolio `yaml:"portfolios"`
}

type dukesFile struct {
	Dukes []Duke `yaml:"dukes"`
}

type earlsFile struct {
	Earls []Earl `yaml:"earls"`
}

type clustersFile struct {
	Clusters []Cluster `yaml:"clusters"`
}

// Load builds a Registry from the embedded default fixtures.
func Load() (*Registry, error) {
	return load(readEmbedded)
}

// LoadFromDir builds a Registry from YAML files in dir, using the same
// filenames as the embedded fixtures (portfolios.yaml, dukes.yaml,
// earls.yaml, earl_routing.yaml, clusters.yaml).
func LoadFromDir(dir string) (*Registry, error) {
	return load(func(name string) ([]byte, error) {
		return os.ReadFile(dir + "/" + baseName(name))
	})
}

func baseName(embeddedPath string) string {
	for i := len(embeddedPath) - 1; i >= 0; i-- {
		if embeddedPath[i] == '/' {
			return embeddedPath[i+1:]
		}
	}
	return embeddedPath
}

func readEmbedded(name string) ([]byte, error) {
	return defaultFixturesFS.ReadFile(name)
}

func load(read func(name string) ([]byte, error)) (*Registry, error) {
	var pf portfoliosFile
	if err := readYAML(read, defaultPortfoliosFile, &pf); err != nil {
		return nil, err
	}
	var df dukesFile
	if err := readYAML(read, defaultDukesFile, &df); err != nil {
		return nil, err
	}
	var ef earlsFile
	if err := readYAML(read, defaultEarlsFile, &ef); err != nil {
		return nil, err
	}
	var routing EarlRouting
	if err := readYAML(read, defaultEarlRoutesFile, &routing); err != nil {
		return nil, err
	}
	var cf clustersFile
	if err := readYAML(read, defaultClustersFile, &cf); err != nil {
		return nil, err
	}

	return &Registry{
		Portfolios:  pf.Portfolios,
		Dukes:       df.Dukes,
		Earls:       ef.Earls,
		EarlRouting: routing,
		Clusters:    cf.Clusters,
	}, nil
}

func readYAML(read func(name string) ([]byte, error), name string, out interface{}) error {
	data, err := read(name)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("registry: parse %s: %w", name, err)
	}
	return nil
}

// PortfolioByID looks up a portfolio by its id.
func (r *Registry) PortfolioByID(id string) (Portfolio, error) {
	for _, p := range r.Portfolios {
		if p.ID == id {
			return p, nil
		}
	}
	return Portfolio{}, ErrNotFound
}

// DukeByAbbr looks up a Duke by its counter-tag abbreviation.
func (r *Registry) DukeByAbbr(abbr string) (Duke, error) {
	for _, d := range r.Dukes {
		if d.Abbr == abbr {
			return d, nil
		}
	}
	return Duke{}, ErrNotFound
}

// EarlForDomain resolves the facilitating Earl for domain, falling back to
// the routing table's explicit default when no route matches (§4.8 Stage 4).
func (r *Registry) EarlForDomain(domain string) string {
	for _, route := range r.EarlRouting.Routes {
		if route.Domain == domain {
			return route.EarlID
		}
	}
	return r.EarlRouting.DefaultEarlID
}

// ClusterByID looks up a cluster by its id.
func (r *Registry) ClusterByID(id string) (Cluster, error) {
	for _, c := range r.Clusters {
		if c.ID == id {
			return c, nil
		}
	}
	return Cluster{}, ErrNotFound
}
