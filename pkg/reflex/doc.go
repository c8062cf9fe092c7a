// Package reflex provides an embeddable reflex engine for laboratory
// instruments: it matches instrument error events against a library of
// standard operating procedures and returns the prescribed action within a
// hard deadline, failing safe to PAUSE when the deadline passes.
//
// Quick start:
//
//	a, err := reflex.New(reflex.WithDefaultLibrary())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	r, _ := a.Decide(ctx, reflex.Event{
//	    ID:      "evt-1",
//	    Level:   reflex.LevelError,
//	    Message: "Vacuum pressure drop in aspiration channel 1",
//	})
//	if r != nil {
//	    fmt.Println(r.Action) // RETRY
//	}
//
// An Agent is safe for concurrent use. Decisions run one at a time on a
// single worker; create one Agent per gateway and reuse it.
package reflex
