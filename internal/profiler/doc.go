// Package profiler defines the shared data model and the interfaces that tie
// the verification engine together: site rules, render outcomes, results,
// artifacts, archives, and the store/publisher contracts their persistence and
// notification flows run through.
package profiler
