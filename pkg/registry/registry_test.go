// Copyright 2025 Certen Protocol

package registry

import "testing"

func TestLoadEmbeddedFixtures(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.Portfolios) != 11 {
		t.Fatalf("expected 11 portfolios, got %d", len(reg.Portfolios))
	}
	if len(reg.Dukes) != 23 {
		t.Fatalf("expected 23 dukes, got %d", len(reg.Dukes))
	}
	if len(reg.Earls) != 6 {
		t.Fatalf("expected 6 earls, got %d", len(reg.Earls))
	}
	if len(reg.Clusters) == 0 {
		t.Fatal("expected at least one cluster fixture")
	}
	if reg.EarlRouting.DefaultEarlID == "" {
		t.Fatal("expected a default earl fallback")
	}
}

func TestDukeAbbreviationsAreUnique(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	seen := map[string]bool{}
	for _, d := range reg.Dukes {
		if seen[d.Abbr] {
			t.Fatalf("duplicate duke abbreviation: %s", d.Abbr)
		}
		seen[d.Abbr] = true
	}
}

func TestEarlForDomainFallsBackToDefault(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reg.EarlForDomain("infrastructure"); got != "earl-01" {
		t.Fatalf("expected earl-01 for infrastructure, got %s", got)
	}
	if got := reg.EarlForDomain("nonexistent-domain"); got != reg.EarlRouting.DefaultEarlID {
		t.Fatalf("expected fallback to default earl, got %s", got)
	}
}

func TestClusterByIDAndConsentPolicy(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := reg.ClusterByID("cluster-alpha")
	if err != nil {
		t.Fatalf("ClusterByID: %v", err)
	}
	if !c.ConsentPolicy.RequiresExplicitAcceptance || !c.ConsentPolicy.RefusalIsPenaltyFree {
		t.Fatal("expected mandatory consent policy fields set")
	}
}

func TestPortfolioByIDNotFound(t *testing.T) {
	reg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := reg.PortfolioByID("does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
