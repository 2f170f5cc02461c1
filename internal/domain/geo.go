package domain

// GeoLevel distinguishes the two administrative rollup granularities.
type GeoLevel string

const (
	GeoMunicipality GeoLevel = "municipality"
	GeoProvince     GeoLevel = "province"
)

// GeographicUnit is the per-administrative-unit aggregate. It carries exactly
// what a map-rendering consumer needs; no rendering happens here.
type GeographicUnit struct {
	Name             string    `json:"name"`
	Level            GeoLevel  `json:"level"`
	TotalAmount      float64   `json:"totalAmount"`
	RecordCount      int       `json:"recordCount"`
	BeneficiaryCount int       `json:"beneficiaryCount"`
	FunderCount      int       `json:"funderCount"`
	OutlierCount     int       `json:"outlierCount"`
	Risk             RiskScore `json:"risk"`
}
