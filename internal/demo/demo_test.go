package demo

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecastDeterministic(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	a := Forecast(start, 30, 42)
	b := Forecast(start, 30, 42)
	require.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.Rows, b.Rows)

	c := Forecast(start, 30, 7)
	assert.NotEqual(t, a.Rows, c.Rows, "different seeds should produce different series")
}

func TestForecastShape(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	table := Forecast(start, 30, 42)

	require.Equal(t, 30, table.Len())
	require.NoError(t, table.Validate())

	expectedFirst := start.AddDate(0, 0, -30)
	assert.True(t, table.Rows[0].Date.Equal(expectedFirst))
	assert.True(t, table.Rows[29].Date.Equal(expectedFirst.AddDate(0, 0, 29)))

	for _, row := range table.Rows {
		assert.GreaterOrEqual(t, row.Actual, 0.0)
		assert.False(t, row.NestingViolated())
		assert.InDelta(t, 3.0, row.PI80High-row.PI80Low, 1e-9)
		assert.InDelta(t, 6.0, row.PI95High-row.PI95Low, 1e-9)
	}
}

func TestForecastEmpty(t *testing.T) {
	table := Forecast(time.Now(), 0, 42)
	assert.Equal(t, 0, table.Len())
}

func TestPatientsDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	a := Patients(now, 25, 1)
	b := Patients(now, 25, 1)
	assert.Equal(t, a, b)

	c := Patients(now, 25, 2)
	assert.NotEqual(t, a, c)
}

func TestPatientsShape(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	patients := Patients(now, 50, 1)
	require.Len(t, patients, 50)

	validFeatures := map[string]bool{"ALT": true, "AST": true, "HBsAg": true, "Age": true, "Platelets": true}
	for _, p := range patients {
		assert.True(t, strings.HasPrefix(p.Hash, "sha256:"))
		assert.GreaterOrEqual(t, p.Probability, 0.0)
		assert.LessOrEqual(t, p.Probability, 1.0)
		assert.Equal(t, riskBucket(p.Probability), p.Risk)
		assert.True(t, validFeatures[p.TopFeature1])
		assert.True(t, validFeatures[p.TopFeature2])

		date, err := time.Parse("2006-01-02", p.Date)
		require.NoError(t, err)
		assert.False(t, date.After(now))
		assert.False(t, date.Before(now.AddDate(0, 0, -14)))
	}
}

func TestRiskBucket(t *testing.T) {
	assert.Equal(t, RiskLow, riskBucket(0.0))
	assert.Equal(t, RiskLow, riskBucket(0.4))
	assert.Equal(t, RiskMedium, riskBucket(0.41))
	assert.Equal(t, RiskMedium, riskBucket(0.7))
	assert.Equal(t, RiskHigh, riskBucket(0.71))
}

func TestAnonymizePatientCSV(t *testing.T) {
	in := strings.Join([]string{
		"patient_id,name,email,risk_date,score",
		"p-001,Alice Example,alice@example.com,2025-06-01,0.82",
		"p-002,Bob Example,bob@example.com,2025-06-02,0.31",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, AnonymizePatientCSV(strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "patient_hash,name,email,risk_date,score", lines[0])

	first := strings.Split(lines[1], ",")
	assert.Equal(t, HashPatientID("p-001"), first[0])
	assert.Empty(t, first[1])
	assert.Empty(t, first[2])
	assert.Equal(t, "2025-06-01", first[3])
	assert.Equal(t, "0.82", first[4])

	assert.NotContains(t, out.String(), "Alice")
	assert.NotContains(t, out.String(), "alice@example.com")
	assert.NotContains(t, out.String(), "p-002")
}

func TestAnonymizePatientCSVEmptyInput(t *testing.T) {
	var out bytes.Buffer
	err := AnonymizePatientCSV(strings.NewReader(""), &out)
	assert.Error(t, err)
}

func TestHashPatientIDStable(t *testing.T) {
	assert.Equal(t, HashPatientID("p-001"), HashPatientID("p-001"))
	assert.NotEqual(t, HashPatientID("p-001"), HashPatientID("p-002"))
	assert.True(t, strings.HasPrefix(HashPatientID("x"), "sha256:"))
}
