// Package acquire decides, per requested language, where a work item's
// subtitle text comes from: the platform's authored track when one exists,
// otherwise speech recognition over the video's audio when fallback is on.
//
// The platform and the recognition engine are reached only through the
// Platform and Recognizer interfaces; every call goes through a Gate so the
// caller controls pacing and retries.
package acquire
