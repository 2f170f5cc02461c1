package score

import (
	"testing"

	"github.com/civic-audit/harrier/internal/domain"
)

func TestScoreAdditiveWeights(t *testing.T) {
	s := New(domain.DefaultScoringPolicy())

	tests := []struct {
		name      string
		sig       Signals
		wantScore int
		wantLevel domain.RiskLevel
	}{
		{"clean", Signals{}, 0, domain.LevelLow},
		{"outlier only", Signals{Outlier: true}, 40, domain.LevelHigh},
		{"borderline only", Signals{Borderline: true}, 20, domain.LevelMedium},
		{"outlier wins over borderline", Signals{Outlier: true, Borderline: true}, 40, domain.LevelHigh},
		{"warning concentration", Signals{Concentration: domain.SeverityWarning}, 15, domain.LevelLow},
		{"critical concentration", Signals{Concentration: domain.SeverityCritical}, 30, domain.LevelMedium},
		{"cross funder", Signals{CrossFunder: true}, 30, domain.LevelMedium},
		{"outlier and critical concentration", Signals{Outlier: true, Concentration: domain.SeverityCritical}, 70, domain.LevelCritical},
		{
			"everything clamps to 100",
			Signals{Outlier: true, Concentration: domain.SeverityCritical, CrossFunder: true},
			100, domain.LevelCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := s.Score(tt.sig)
			if rs.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", rs.Score, tt.wantScore)
			}
			if rs.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", rs.Level, tt.wantLevel)
			}
		})
	}
}

func TestScoreBreakdownPreClamp(t *testing.T) {
	s := New(domain.DefaultScoringPolicy())

	rs := s.Score(Signals{Outlier: true, Concentration: domain.SeverityCritical, CrossFunder: true})

	// 40 + 30 + 30 sums to 100; the breakdown keeps the raw contributions.
	if rs.OutlierPoints != 40 || rs.ConcentrationPoints != 30 || rs.NetworkPoints != 30 {
		t.Errorf("breakdown = %+v", rs)
	}
}

func TestScoreClampUpperBound(t *testing.T) {
	policy := domain.DefaultScoringPolicy()
	policy.OutlierWeight = 90
	policy.CrossFunderWeight = 90
	s := New(policy)

	rs := s.Score(Signals{Outlier: true, CrossFunder: true})
	if rs.Score != 100 {
		t.Errorf("Score = %d, want clamped 100", rs.Score)
	}
}

func TestLevelCuts(t *testing.T) {
	policy := domain.DefaultScoringPolicy()

	tests := []struct {
		score int
		want  domain.RiskLevel
	}{
		{0, domain.LevelLow},
		{19, domain.LevelLow},
		{20, domain.LevelMedium},
		{39, domain.LevelMedium},
		{40, domain.LevelHigh},
		{69, domain.LevelHigh},
		{70, domain.LevelCritical},
		{100, domain.LevelCritical},
	}

	for _, tt := range tests {
		if got := policy.Level(tt.score); got != tt.want {
			t.Errorf("Level(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{130, 100},
	}
	for _, tt := range tests {
		if got := domain.Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScoreBeneficiary(t *testing.T) {
	s := New(domain.DefaultScoringPolicy())

	p := domain.BeneficiaryProfile{
		Name:              "Alpha SL",
		OutlierRecords:    2,
		ConcentrationFlag: domain.SeverityWarning,
		CrossFunderFlag:   true,
	}

	rs := s.ScoreBeneficiary(&p)
	if rs.Score != 85 { // 40 + 15 + 30
		t.Errorf("Score = %d, want 85", rs.Score)
	}
	if rs.Level != domain.LevelCritical {
		t.Errorf("Level = %q, want CRITICAL", rs.Level)
	}
}

func TestScoreRecordInheritsProfileFlags(t *testing.T) {
	s := New(domain.DefaultScoringPolicy())

	p := domain.BeneficiaryProfile{ConcentrationFlag: domain.SeverityCritical}
	sig := domain.RecordSignal{Borderline: true}

	rs := s.ScoreRecord(sig, &p)
	if rs.Score != 50 { // 20 borderline + 30 critical concentration
		t.Errorf("Score = %d, want 50", rs.Score)
	}

	rs = s.ScoreRecord(sig, nil)
	if rs.Score != 20 {
		t.Errorf("Score without profile = %d, want 20", rs.Score)
	}
}

func TestScoreProfilesInPlace(t *testing.T) {
	s := New(domain.DefaultScoringPolicy())

	profiles := []domain.BeneficiaryProfile{
		{Name: "Clean"},
		{Name: "Hot", OutlierRecords: 1},
	}

	s.ScoreProfiles(profiles)

	if profiles[0].Risk.Score != 0 || profiles[0].Risk.Level != domain.LevelLow {
		t.Errorf("clean profile risk = %+v", profiles[0].Risk)
	}
	if profiles[1].Risk.Score != 40 || profiles[1].Risk.Level != domain.LevelHigh {
		t.Errorf("hot profile risk = %+v", profiles[1].Risk)
	}
}
