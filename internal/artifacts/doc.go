// Package artifacts owns the on-disk result layout.
//
// Each task gets output_dir/<task id>/ holding one rendered file per
// requested format plus report.json with that task's statistics. Files are
// assembled in a staging directory under output_dir/.staging and renamed
// into place on commit, so a cancelled or failed task never leaves a partial
// result directory behind. A batch run also writes output_dir/report.json.
package artifacts
