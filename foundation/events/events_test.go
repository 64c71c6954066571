package events_test

import (
	"testing"

	"github.com/ardanlabs/blocknode/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to fan out node events to viewers.")
	{
		evts := events.New()

		ch1 := evts.Acquire("one")
		ch2 := evts.Acquire("two")
		if evts.Acquire("one") != ch1 || evts.Len() != 2 {
			t.Fatalf("\t%s\tShould return the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould return the same channel for the same id.", success)

		evts.Send("p2p: BroadcastInv: announced")

		if <-ch1 != "p2p: BroadcastInv: announced" || <-ch2 != "p2p: BroadcastInv: announced" {
			t.Fatalf("\t%s\tShould deliver the event to every receiver.", failed)
		}
		t.Logf("\t%s\tShould deliver the event to every receiver.", success)

		for i := 0; i < 1000; i++ {
			evts.Send("flood")
		}
		t.Logf("\t%s\tShould not block on a full receiver.", success)

		dropped, err := evts.Release("one")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to release: %v", failed, err)
		}
		if dropped != 1000-100 {
			t.Fatalf("\t%s\tShould count the events a full receiver missed, got %d.", failed, dropped)
		}
		t.Logf("\t%s\tShould count the events a full receiver missed.", success)

		if _, err := evts.Release("one"); err == nil {
			t.Fatalf("\t%s\tShould not release an unknown id.", failed)
		}
		t.Logf("\t%s\tShould release a receiver once.", success)

		evts.Shutdown()
		if evts.Len() != 0 {
			t.Fatalf("\t%s\tShould remove every receiver on shutdown.", failed)
		}
		for range ch2 {
		}
		t.Logf("\t%s\tShould close every channel on shutdown.", success)
	}
}
