package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMustRegister_SucceedsOnceAndPanicsOnReRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	MustRegister(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a second MustRegister against the same registry to panic")
		}
	}()
	MustRegister(reg)
}
