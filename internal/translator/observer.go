package translator

import "log/slog"

// Observer receives best-effort progress notifications from a translation
// job. Implementations must not block for long and must not panic; the core
// treats every call as fire-and-forget, and a failing observer never fails
// the job.
type Observer interface {
	// Notify delivers a human-readable status message.
	Notify(message string)

	// ReportProgress reports that done of total slides have been processed.
	ReportProgress(done, total int)
}

// NopObserver is an Observer that discards everything.
type NopObserver struct{}

func (NopObserver) Notify(string)           {}
func (NopObserver) ReportProgress(int, int) {}

// SlogObserver logs notifications and progress through slog at info level.
type SlogObserver struct{}

func (SlogObserver) Notify(message string) {
	slog.Info("translation", "msg", message)
}

func (SlogObserver) ReportProgress(done, total int) {
	slog.Info("translation progress", "done", done, "total", total)
}

// notify invokes obs.Notify, swallowing panics so a broken observer cannot
// take the job down with it.
func notify(obs Observer, message string) {
	if obs == nil {
		return
	}
	defer func() { _ = recover() }()
	obs.Notify(message)
}

// reportProgress invokes obs.ReportProgress with the same protection.
func reportProgress(obs Observer, done, total int) {
	if obs == nil {
		return
	}
	defer func() { _ = recover() }()
	obs.ReportProgress(done, total)
}
