package domain

// BeneficiaryProfile is the per-beneficiary reduction of a dataset: what one
// recipient received, from whom, and which detector flags it picked up.
type BeneficiaryProfile struct {
	Name        string   `json:"name"`
	TotalAmount float64  `json:"totalAmount"`
	RecordCount int      `json:"recordCount"`
	Funders     []string `json:"funders"`
	RecordIDs   []string `json:"recordIds"`
	Affiliation string   `json:"affiliation,omitempty"`

	// Detector flags, filled in by the concentration and network stages.
	ConcentrationFlag Severity `json:"concentrationFlag,omitempty"`
	CrossFunderFlag   bool     `json:"crossFunderFlag,omitempty"`
	OutlierRecords    int      `json:"outlierRecords"`

	Risk RiskScore `json:"risk"`
}

// FunderCount returns the number of distinct funding bodies for the profile.
func (p *BeneficiaryProfile) FunderCount() int {
	return len(p.Funders)
}

// FundingCluster groups beneficiaries sharing an explicit affiliation
// identifier. Clusters are only built from caller-supplied identifiers.
type FundingCluster struct {
	Affiliation     string   `json:"affiliation"`
	Members         []string `json:"members"`
	TotalAmount     float64  `json:"totalAmount"`
	DistinctFunders int      `json:"distinctFunders"`
	Flagged         bool     `json:"flagged"`
}

// ConcentrationSummary is the dataset-wide concentration result.
type ConcentrationSummary struct {
	TopK             int      `json:"topK"`
	TopBeneficiaries []string `json:"topBeneficiaries"`
	TopAmount        float64  `json:"topAmount"`
	Ratio            float64  `json:"ratio"` // topAmount / dataset total
	Alerted          bool     `json:"alerted"`
}
