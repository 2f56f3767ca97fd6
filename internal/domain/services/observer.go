package services

import "github.com/ersonp/kgraph/internal/domain/ports"

// nopObserver discards all events.
type nopObserver struct{}

func (nopObserver) Info(string, ports.Fields)         {}
func (nopObserver) Error(string, error, ports.Fields) {}

func observerOrNop(o ports.Observer) ports.Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
