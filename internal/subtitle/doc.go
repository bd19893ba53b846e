// Package subtitle defines the normalized segment model and renders it into
// the supported output encodings (SRT, WebVTT, ASS, JSON, plain text, LRC).
//
// Rendering is pure: inputs are never mutated and the same segments always
// produce the same bytes. Each encoder has a matching parser so round trips
// can be checked at the format's declared timestamp precision.
package subtitle
