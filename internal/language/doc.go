// Package language normalizes subtitle language tags.
//
// Platform track codes ("zh-CN", "ai-zh", "en-US"), recognizer hints ("zh"),
// and user-facing config values all pass through here so track selection and
// file labels agree on one BCP 47 spelling.
package language
