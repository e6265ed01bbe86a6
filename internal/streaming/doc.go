/*
Package streaming writes Server-Sent Event streams.

An [EventWriter] sets the text/event-stream headers, flushes after every
event and bounds each write with a per-connection deadline, so a stalled
client fails its stream instead of pinning a goroutine:

	ew, err := streaming.NewEventWriter(r.Context(), w, streaming.DefaultConfig())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for n := range updates {
		if err := ew.JSON("progress", n); err != nil {
			return
		}
	}

Write deadlines need a writer that exposes SetWriteDeadline through
http.ResponseController, directly or via Unwrap. Writers without one, such
as httptest.ResponseRecorder, stream without deadlines.

Errors map to [ErrClientGone] when the request context ends or the
connection fails and to [ErrWriteTimeout] when a write misses its deadline.
*/
package streaming
