package demo

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Risk buckets for predicted patient risk.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

var topFeatures = []string{"ALT", "AST", "HBsAg", "Age", "Platelets"}

// Patient is one row of the synthetic patient risk table. The hash stands in
// for an identifier; no real identity is ever generated.
type Patient struct {
	Hash        string  `json:"patient_hash"`
	Date        string  `json:"date"`
	Risk        string  `json:"predicted_risk"`
	Probability float64 `json:"probability"`
	TopFeature1 string  `json:"top_feature_1"`
	TopFeature2 string  `json:"top_feature_2"`
}

// Patients generates n synthetic patient records dated within the two weeks
// before now. Risk probabilities are drawn from a Beta(2, 5), skewing the
// cohort toward low risk.
func Patients(now time.Time, n int, seed int64) []Patient {
	if n <= 0 {
		return nil
	}

	src := rand.NewPCG(uint64(seed), uint64(seed)+1)
	rng := rand.New(src)
	beta := distuv.Beta{Alpha: 2, Beta: 5, Src: src}

	patients := make([]Patient, 0, n)
	for i := 0; i < n; i++ {
		date := now.AddDate(0, 0, -rng.IntN(14))
		prob := math.Round(beta.Rand()*100) / 100

		patients = append(patients, Patient{
			Hash:        fmt.Sprintf("sha256:%d", rng.IntN(100000000)),
			Date:        date.Format("2006-01-02"),
			Risk:        riskBucket(prob),
			Probability: prob,
			TopFeature1: topFeatures[rng.IntN(len(topFeatures))],
			TopFeature2: topFeatures[rng.IntN(len(topFeatures))],
		})
	}
	return patients
}

func riskBucket(prob float64) string {
	switch {
	case prob > 0.7:
		return RiskHigh
	case prob > 0.4:
		return RiskMedium
	default:
		return RiskLow
	}
}
