package vald

import (
	"time"

	"github.com/google/uuid"
)

// TestType is a ForceDecks test kind.
type TestType string

const (
	TestTypeCMJ  TestType = "CMJ"
	TestTypeSJ   TestType = "SJ"
	TestTypeHJ   TestType = "HJ"
	TestTypePPU  TestType = "PPU"
	TestTypeIMTP TestType = "IMTP"

	// TestTypeForceProfile marks composite-score rows in the percentile
	// history; it is never a raw test.
	TestTypeForceProfile TestType = "FORCE_PROFILE"
)

func (t TestType) Valid() bool {
	switch t {
	case TestTypeCMJ, TestTypeSJ, TestTypeHJ, TestTypePPU, TestTypeIMTP:
		return true
	}
	return false
}

// AllTestTypes lists the raw test kinds that contribute to the composite
// force profile.
var AllTestTypes = []TestType{TestTypeCMJ, TestTypeSJ, TestTypeHJ, TestTypePPU, TestTypeIMTP}

// TestResult is a completed test as delivered by the ingestion pipeline.
// RawMetrics is keyed by the ForceDecks column name.
type TestResult struct {
	TestID     string
	TestType   TestType
	AthleteID  uuid.UUID
	RecordedAt time.Time
	RawMetrics map[string]float64
}
