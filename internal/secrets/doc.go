// Package secrets detects and redacts credentials before code-review
// content leaves the process: the context pack (repository diffs, file
// trees, and file contents) assembled for the judge, the candidate
// text under audit, and judge stderr surfaced in error responses all
// pass through a Scrubber first, since a committed or staged secret in
// any of those is otherwise handed verbatim to an external judge
// subprocess or back to the caller.
package secrets
