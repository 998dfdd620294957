package event_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosgo/planner/internal/core/event"
)

func TestFlushDeliversQueuedEvents(t *testing.T) {
	bus := event.NewBus()
	var got []int
	event.Subscribe(bus, func(e event.SolutionImproved) { got = append(got, e.FinishFrame) })

	event.Emit(bus, event.SolutionImproved{FinishFrame: 900})
	event.Emit(bus, event.SolutionImproved{FinishFrame: 800})
	assert.Empty(t, got, "nothing is delivered before a flush")

	bus.Flush()
	assert.Equal(t, []int{900, 800}, got)

	bus.Flush()
	assert.Equal(t, []int{900, 800}, got, "events are delivered once")
}

func TestHandlersOnlySeeTheirType(t *testing.T) {
	bus := event.NewBus()
	improved, finished := 0, 0
	event.Subscribe(bus, func(event.SolutionImproved) { improved++ })
	event.Subscribe(bus, func(event.SearchFinished) { finished++ })

	event.Emit(bus, event.SearchFinished{Outcome: event.OutcomeSolved})
	bus.Flush()

	assert.Equal(t, 0, improved)
	assert.Equal(t, 1, finished)
}

func TestEventsEmittedDuringDispatchWaitForNextFlush(t *testing.T) {
	bus := event.NewBus()
	finished := 0
	event.Subscribe(bus, func(e event.SolutionImproved) {
		event.Emit(bus, event.SearchFinished{FinishFrame: e.FinishFrame})
	})
	event.Subscribe(bus, func(event.SearchFinished) { finished++ })

	event.Emit(bus, event.SolutionImproved{FinishFrame: 1})
	bus.Flush()
	assert.Equal(t, 0, finished)

	bus.Flush()
	assert.Equal(t, 1, finished)
}

func TestConcurrentEmit(t *testing.T) {
	bus := event.NewBus()
	n := 0
	event.Subscribe(bus, func(event.SolutionImproved) { n++ })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				event.Emit(bus, event.SolutionImproved{})
			}
		}()
	}
	wg.Wait()
	bus.Flush()

	assert.Equal(t, 800, n)
}

func TestNilBusIsSilent(t *testing.T) {
	var bus *event.Bus
	assert.NotPanics(t, func() {
		event.Emit(bus, event.SolutionImproved{})
		bus.Flush()
	})
}

func TestFlushKeepsEmissionOrderAcrossTypes(t *testing.T) {
	bus := event.NewBus()
	var order []string
	event.Subscribe(bus, func(event.SolutionImproved) { order = append(order, "improved") })
	event.Subscribe(bus, func(event.SearchFinished) { order = append(order, "finished") })

	event.Emit(bus, event.SolutionImproved{})
	event.Emit(bus, event.SearchFinished{})
	event.Emit(bus, event.SolutionImproved{})
	assert.Equal(t, 3, bus.Pending())

	bus.Flush()

	assert.Equal(t, []string{"improved", "finished", "improved"}, order)
	assert.Zero(t, bus.Pending())
}
