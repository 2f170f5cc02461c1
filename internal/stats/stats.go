// Package stats computes dataset-wide numeric summaries and per-record
// outlier classification.
package stats

import (
	"math"
	"sync"

	"github.com/civic-audit/harrier/internal/domain"
)

// Analyzer performs the two-pass statistical analysis: one reduction pass for
// the dataset moments, then an independent per-record classification map.
type Analyzer struct {
	borderlineRatio float64
	outlierRatio    float64
	partitions      int
}

// New creates an analyzer from the analysis configuration.
func New(cfg domain.AnalysisConfig) *Analyzer {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	return &Analyzer{
		borderlineRatio: cfg.BorderlineRatio,
		outlierRatio:    cfg.OutlierRatio,
		partitions:      partitions,
	}
}

// Summarize computes count, total, mean, and standard deviation over valid
// records. Degraded records are counted but excluded from the moments.
func (a *Analyzer) Summarize(records []domain.GrantRecord) domain.DatasetStats {
	st := domain.DatasetStats{Count: len(records)}

	for i := range records {
		if !records[i].Valid() {
			st.DegradedCount++
			continue
		}
		st.ValidCount++
		st.Total += records[i].Amount
	}

	if st.ValidCount == 0 {
		return st
	}
	st.Mean = st.Total / float64(st.ValidCount)

	// Population variance; a single-record dataset has zero variance and
	// therefore flags nothing.
	var sumSq float64
	for i := range records {
		if !records[i].Valid() {
			continue
		}
		d := records[i].Amount - st.Mean
		sumSq += d * d
	}
	st.StdDev = math.Sqrt(sumSq / float64(st.ValidCount))

	return st
}

// Classify computes the outlier signal for every record given the dataset
// moments. With zero standard deviation no record is an outlier, regardless
// of magnitude. Records are classified independently, so the map runs across
// partitions in parallel.
func (a *Analyzer) Classify(records []domain.GrantRecord, st domain.DatasetStats) []domain.RecordSignal {
	signals := make([]domain.RecordSignal, len(records))
	if len(records) == 0 {
		return signals
	}

	chunk := (len(records) + a.partitions - 1) / a.partitions

	var wg sync.WaitGroup
	for start := 0; start < len(records); start += chunk {
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				signals[i] = a.classifyOne(&records[i], st)
			}
		}(start, end)
	}
	wg.Wait()

	return signals
}

func (a *Analyzer) classifyOne(rec *domain.GrantRecord, st domain.DatasetStats) domain.RecordSignal {
	sig := domain.RecordSignal{RecordID: rec.ID}

	if !rec.Valid() || st.StdDev == 0 {
		return sig
	}

	sig.Ratio = (rec.Amount - st.Mean) / st.StdDev
	sig.Borderline = sig.Ratio > a.borderlineRatio
	sig.Outlier = sig.Ratio > a.outlierRatio

	return sig
}

// Analyze runs both passes and returns the dataset with its statistics
// filled in, plus the per-record signals in record order.
func (a *Analyzer) Analyze(ds domain.Dataset) (domain.Dataset, []domain.RecordSignal) {
	ds.Stats = a.Summarize(ds.Records)
	signals := a.Classify(ds.Records, ds.Stats)
	return ds, signals
}
