// Copyright 2025 Certen Protocol
//
// Default fixtures are embedded the way the teacher embeds its SQL
// migrations (pkg/database/client.go's //go:embed migrations/*.sql):
// shipped inside the binary, overridable by pointing Load* at an operator
// file on disk.

package registry

import "embed"

//go:embed fixtures/*.yaml
var defaultFixturesFS embed.FS

const (
	defaultPortfoliosFile = "fixtures/portfolios.yaml"
	defaultDukesFile      = "fixtures/dukes.yaml"
	defaultEarlsFile      = "fixtures/earls.yaml"
	defaultEarlRoutesFile = "fixtures/earl_routing.yaml"
	defaultClustersFile   = "fixtures/clusters.yaml"
)
