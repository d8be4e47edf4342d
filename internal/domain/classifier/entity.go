package classifier

import "time"

// FeatureCount is the fixed length of every feature vector
const FeatureCount = 6

// Feature vector layout
const (
	FeatureTrendSign = iota
	FeatureGapSize
	FeatureTimeframeRank
	FeatureSpread
	FeatureSession
	FeatureRecentVolume
)

// FeatureVector is the ordered numeric summary of market context
type FeatureVector [FeatureCount]float64

// IsZero reports whether every component is zero (degraded input)
func (v FeatureVector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// State is the persisted logistic model
type State struct {
	Weights     [FeatureCount]float64 `json:"weights" db:"-"`
	Bias        float64               `json:"bias" db:"bias"`
	SampleCount int64                 `json:"sample_count" db:"sample_count"`
	UpdatedAt   time.Time             `json:"updated_at" db:"updated_at"`
}
