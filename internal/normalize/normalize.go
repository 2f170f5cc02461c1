// Package normalize turns heterogeneous raw records into a uniform,
// validated dataset.
package normalize

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/civic-audit/harrier/internal/domain"
)

// SchemaMapping declares which source field names map to which canonical
// fields. Labels are tried in order, an exact field-name match beats a
// case-insensitive substring match, so one mapping covers several noisy
// source schemas without one field shadowing another.
type SchemaMapping struct {
	IDLabels           []string
	AmountLabels       []string
	BeneficiaryLabels  []string
	ConceptLabels      []string
	MunicipalityLabels []string
	ProvinceLabels     []string
	FunderLabels       []string
	DateLabels         []string
	AffiliationLabels  []string
}

// DefaultSchemaMapping covers the field labels seen across the known grant
// and gazette feeds, Spanish and English.
func DefaultSchemaMapping() SchemaMapping {
	return SchemaMapping{
		IDLabels:           []string{"id", "identificador", "expediente", "reference"},
		AmountLabels:       []string{"amount", "importe", "cuantia", "total", "euros"},
		BeneficiaryLabels:  []string{"beneficiary", "beneficiario", "recipient", "adjudicatario"},
		ConceptLabels:      []string{"concept", "concepto", "description", "descripcion", "objeto"},
		MunicipalityLabels: []string{"municipality", "municipio", "localidad", "city"},
		ProvinceLabels:     []string{"province", "provincia", "region"},
		FunderLabels:       []string{"funder", "ministerio", "organo", "convocante", "funding_body"},
		DateLabels:         []string{"date", "fecha"},
		AffiliationLabels:  []string{"affiliation", "grupo", "group_id", "matriz"},
	}
}

// LocaleProfile disambiguates thousands and decimal separators.
// The default profile matches Spanish-formatted feeds.
type LocaleProfile struct {
	ThousandsSep rune
	DecimalSep   rune
}

// Normalizer converts raw records into GrantRecords. It is a pure transform
// over one record at a time; a failure in one record never aborts the rest.
type Normalizer struct {
	mapping SchemaMapping
	locale  LocaleProfile
}

// New creates a normalizer from the analysis configuration.
func New(cfg domain.AnalysisConfig) *Normalizer {
	locale := LocaleProfile{ThousandsSep: cfg.ThousandsSep, DecimalSep: cfg.DecimalSep}
	if locale.ThousandsSep == 0 {
		locale.ThousandsSep = '.'
	}
	if locale.DecimalSep == 0 {
		locale.DecimalSep = ','
	}
	return &Normalizer{
		mapping: DefaultSchemaMapping(),
		locale:  locale,
	}
}

// WithMapping replaces the default schema mapping.
func (n *Normalizer) WithMapping(m SchemaMapping) *Normalizer {
	n.mapping = m
	return n
}

// Normalize converts a raw batch into a Dataset. Records without a usable
// identifier are dropped; records with unparsable amounts are kept with
// amount 0 and a degraded flag. Derived statistics are left zeroed here and
// filled in by the statistical analyzer.
func (n *Normalizer) Normalize(raw []domain.RawRecord) (domain.Dataset, int) {
	records := make([]domain.GrantRecord, 0, len(raw))
	dropped := 0

	for i, r := range raw {
		rec, ok := n.normalizeOne(r)
		if !ok {
			dropped++
			slog.Debug("record dropped, no usable identifier", "index", i)
			continue
		}
		records = append(records, rec)
	}

	return domain.Dataset{Records: records}, dropped
}

// normalizeOne maps a single raw record. Returns ok=false only when the
// record lacks an identifier.
func (n *Normalizer) normalizeOne(raw domain.RawRecord) (domain.GrantRecord, bool) {
	id := n.findString(raw, n.mapping.IDLabels)
	if id == "" {
		return domain.GrantRecord{}, false
	}

	rec := domain.GrantRecord{
		ID:           id,
		Beneficiary:  n.findStringDefault(raw, n.mapping.BeneficiaryLabels, domain.UnknownValue),
		Concept:      n.findStringDefault(raw, n.mapping.ConceptLabels, ""),
		Municipality: n.findStringDefault(raw, n.mapping.MunicipalityLabels, domain.UnknownValue),
		Province:     n.findStringDefault(raw, n.mapping.ProvinceLabels, domain.UnknownValue),
		Funder:       n.findStringDefault(raw, n.mapping.FunderLabels, domain.UnknownValue),
		Affiliation:  n.findStringDefault(raw, n.mapping.AffiliationLabels, ""),
		SourceRef:    n.findStringDefault(raw, []string{"link", "url", "source"}, ""),
	}

	if v := n.findValue(raw, n.mapping.DateLabels); v != nil {
		if s, ok := v.(string); ok {
			if t, err := parseDate(s); err == nil {
				rec.GrantDate = t
			}
		}
	}

	amount, err := n.findAmount(raw)
	if err != nil || amount < 0 {
		rec.Amount = 0
		rec.Degraded = true
	} else {
		rec.Amount = amount
	}

	return rec, true
}

// findAmount locates the amount field by allow-list match and parses it.
func (n *Normalizer) findAmount(raw domain.RawRecord) (float64, error) {
	v := n.findValue(raw, n.mapping.AmountLabels)
	if v == nil {
		return 0, fmt.Errorf("no amount field")
	}

	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		return ParseLocaleDecimal(val, n.locale)
	default:
		return 0, fmt.Errorf("unsupported amount type %T", v)
	}
}

// findValue resolves a canonical field against the raw record. Labels are
// tried in declared priority order, an exact field-name match beats a
// substring match, and field names are scanned in sorted order so the
// result never depends on map iteration.
func (n *Normalizer) findValue(raw domain.RawRecord, labels []string) any {
	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, label := range labels {
		for _, field := range fields {
			if strings.EqualFold(field, label) {
				return raw[field]
			}
		}
	}
	for _, label := range labels {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), label) {
				return raw[field]
			}
		}
	}
	return nil
}

func (n *Normalizer) findString(raw domain.RawRecord, labels []string) string {
	v := n.findValue(raw, labels)
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	return s
}

func (n *Normalizer) findStringDefault(raw domain.RawRecord, labels []string, def string) string {
	if s := n.findString(raw, labels); s != "" {
		return s
	}
	return def
}

// ParseLocaleDecimal parses a locale-formatted decimal string using the
// profile's separators, e.g. "1.234.567,89" with the default profile.
func ParseLocaleDecimal(s string, locale LocaleProfile) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "€")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	var b strings.Builder
	for _, r := range s {
		switch r {
		case locale.ThousandsSep:
			// drop grouping separator
		case locale.DecimalSep:
			b.WriteRune('.')
		case ' ':
			// tolerated as grouping in some feeds
		default:
			b.WriteRune(r)
		}
	}

	return strconv.ParseFloat(b.String(), 64)
}

// dateLayouts are the formats seen across the known feeds.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	time.RFC3339,
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
