// Package network detects multi-source funding and affiliation clusters.
package network

import (
	"sort"

	"github.com/civic-audit/harrier/internal/domain"
)

// Detector flags beneficiaries receiving money from many distinct funding
// bodies and merges explicitly affiliated beneficiaries into clusters.
// Affiliation identifiers are caller-supplied only; nothing is inferred from
// name similarity.
type Detector struct {
	minFunders       int
	clusterMinAmount float64
	clusterMinSize   int
}

// New creates a detector from the analysis configuration.
func New(cfg domain.AnalysisConfig) *Detector {
	return &Detector{
		minFunders:       cfg.MinFunders,
		clusterMinAmount: cfg.ClusterMinAmount,
		clusterMinSize:   cfg.ClusterMinSize,
	}
}

// FlagProfiles marks the cross-funder flag on each profile whose distinct
// funder count meets the threshold. Profiles are updated in place on the
// passed slice and returned for chaining.
func (d *Detector) FlagProfiles(profiles []domain.BeneficiaryProfile) []domain.BeneficiaryProfile {
	for i := range profiles {
		profiles[i].CrossFunderFlag = profiles[i].FunderCount() >= d.minFunders
	}
	return profiles
}

// Clusters merges beneficiaries sharing an affiliation identifier and flags
// clusters whose combined amount exceeds the configured threshold and whose
// member count meets the minimum size. Returned sorted by affiliation.
func (d *Detector) Clusters(profiles []domain.BeneficiaryProfile) []domain.FundingCluster {
	byAffiliation := make(map[string]*domain.FundingCluster)
	funders := make(map[string]map[string]struct{})

	for i := range profiles {
		aff := profiles[i].Affiliation
		if aff == "" {
			continue
		}

		c, ok := byAffiliation[aff]
		if !ok {
			c = &domain.FundingCluster{Affiliation: aff}
			byAffiliation[aff] = c
			funders[aff] = make(map[string]struct{})
		}

		c.Members = append(c.Members, profiles[i].Name)
		c.TotalAmount += profiles[i].TotalAmount
		for _, f := range profiles[i].Funders {
			funders[aff][f] = struct{}{}
		}
	}

	clusters := make([]domain.FundingCluster, 0, len(byAffiliation))
	for aff, c := range byAffiliation {
		sort.Strings(c.Members)
		c.DistinctFunders = len(funders[aff])
		c.Flagged = c.TotalAmount > d.clusterMinAmount && len(c.Members) >= d.clusterMinSize
		clusters = append(clusters, *c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].Affiliation < clusters[j].Affiliation
	})

	return clusters
}
