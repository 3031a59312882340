// Package emotion holds emotion classifier scores and maps them onto
// expression channels.
package emotion

import (
	"sort"
	"strings"

	"github.com/teslashibe/go-facerig/pkg/expression"
)

// Known emotion names as reported by the classifier.
const (
	Joy      = "joy"
	Sadness  = "sadness"
	Anger    = "anger"
	Surprise = "surprise"
	Fear     = "fear"
	Disgust  = "disgust"
	Contempt = "contempt"
	Neutral  = "neutral"
)

// Label is one classifier result on the wire.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Scores maps an emotion name to its probability. Missing names read as 0.
type Scores map[string]float64

// FromLabels builds scores from wire labels. Names are lower-cased and scores
// clamped to [0,1]; a repeated label keeps its highest score.
func FromLabels(labels []Label) Scores {
	s := make(Scores, len(labels))
	for _, l := range labels {
		name := strings.ToLower(strings.TrimSpace(l.Label))
		if name == "" {
			continue
		}
		v := expression.Clamp01(l.Score)
		if v >= s[name] {
			s[name] = v
		}
	}
	return s
}

// Get returns the score for name, or 0.
func (s Scores) Get(name string) float64 {
	return s[name]
}

// Dominant returns the highest-scoring emotion. Ties break alphabetically.
func (s Scores) Dominant() (string, float64) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	best, score := "", 0.0
	for _, name := range names {
		if s[name] > score {
			best, score = name, s[name]
		}
	}
	return best, score
}

// Clone returns an independent copy.
func (s Scores) Clone() Scores {
	if s == nil {
		return nil
	}
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Contribution is the weight one emotion adds to one channel.
type Contribution struct {
	Channel expression.Channel
	Weight  float64
}

// Mapping turns emotion scores into channel intensities.
type Mapping map[string][]Contribution

// DefaultMapping returns the built-in emotion to channel table.
func DefaultMapping() Mapping {
	both := func(l, r expression.Channel, w float64) []Contribution {
		return []Contribution{{l, w}, {r, w}}
	}
	join := func(parts ...[]Contribution) []Contribution {
		var out []Contribution
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}

	return Mapping{
		Joy: join(
			both(expression.MouthSmileLeft, expression.MouthSmileRight, 1.0),
			both(expression.CheekSquintLeft, expression.CheekSquintRight, 0.5),
		),
		Sadness: join(
			both(expression.MouthFrownLeft, expression.MouthFrownRight, 1.0),
			[]Contribution{{expression.BrowInnerUp, 0.6}},
		),
		Anger: join(
			both(expression.BrowDownLeft, expression.BrowDownRight, 0.8),
			both(expression.NoseSneerLeft, expression.NoseSneerRight, 0.5),
			[]Contribution{{expression.CheekPuff, 0.3}},
		),
		Disgust: join(
			both(expression.NoseSneerLeft, expression.NoseSneerRight, 1.0),
			both(expression.MouthUpperUpLeft, expression.MouthUpperUpRight, 0.5),
		),
		Contempt: {
			{expression.MouthSmileLeft, 0.4},
			{expression.NoseSneerLeft, 0.3},
		},
		Surprise: join(
			both(expression.EyeWideLeft, expression.EyeWideRight, 1.0),
			[]Contribution{{expression.BrowInnerUp, 0.8}, {expression.JawOpen, 0.3}},
		),
		Fear: join(
			both(expression.EyeWideLeft, expression.EyeWideRight, 0.7),
			both(expression.MouthStretchLeft, expression.MouthStretchRight, 0.4),
			[]Contribution{{expression.BrowInnerUp, 0.7}},
		),
	}
}

// Vector converts scores into channel intensities. When several emotions
// drive one channel the strongest contribution wins.
func (m Mapping) Vector(s Scores) expression.Vector {
	var v expression.Vector
	for name, score := range s {
		for _, c := range m[name] {
			if x := expression.Clamp01(score * c.Weight); x > v.Get(c.Channel) {
				v.Set(c.Channel, x)
			}
		}
	}
	return v
}
