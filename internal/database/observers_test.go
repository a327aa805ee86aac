package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservers_SubscribeAndNotify(t *testing.T) {
	o := NewObservers()

	var got []Event
	o.Subscribe("books", func(ev Event) {
		got = append(got, ev)
	})

	o.Notify(Event{Table: "books", Origin: OriginLocal})
	o.Notify(Event{Table: "tags", Origin: OriginLocal})

	assert.Len(t, got, 1)
	assert.Equal(t, "books", got[0].Table)
	assert.Equal(t, OriginLocal, got[0].Origin)
}

func TestObservers_Wildcard(t *testing.T) {
	o := NewObservers()

	count := 0
	o.Subscribe("*", func(Event) { count++ })

	o.Notify(Event{Table: "books", Origin: OriginLocal})
	o.Notify(Event{Table: "tags", Origin: OriginSync})

	assert.Equal(t, 2, count)
}

func TestObservers_Cancel(t *testing.T) {
	o := NewObservers()

	count := 0
	cancel := o.Subscribe("books", func(Event) { count++ })

	o.Notify(Event{Table: "books", Origin: OriginLocal})
	cancel()
	cancel() // cancelling twice is safe
	o.Notify(Event{Table: "books", Origin: OriginLocal})

	assert.Equal(t, 1, count)
}

func TestObservers_OriginPreserved(t *testing.T) {
	o := NewObservers()

	var origins []Origin
	o.Subscribe("books", func(ev Event) { origins = append(origins, ev.Origin) })

	o.Notify(Event{Table: "books", Origin: OriginLocal})
	o.Notify(Event{Table: "books", Origin: OriginSync})

	assert.Equal(t, []Origin{OriginLocal, OriginSync}, origins)
}
