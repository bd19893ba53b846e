// Package synth turns raw subtitle cues into one clean, ordered segment
// sequence per language: denylist cleaning, timeline merging to a fixed
// point, overlap-based bilingual alignment, and source labeling.
package synth
