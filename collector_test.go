package emskit

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorDescribe(t *testing.T) {
	collector := NewCollector(&EmsKit{})

	descCh := make(chan *prometheus.Desc, 10)
	go func() {
		collector.Describe(descCh)
		close(descCh)
	}()

	count := 0
	for range descCh {
		count++
	}
	if count != 3 {
		t.Errorf("got %d descriptors, want 3", count)
	}
}

func TestCollectorNoData(t *testing.T) {
	collector := NewCollector(&EmsKit{})

	metricCh := make(chan prometheus.Metric, 10)
	go func() {
		collector.Collect(metricCh)
		close(metricCh)
	}()

	count := 0
	for range metricCh {
		count++
	}
	if count != 1 {
		t.Errorf("without a snapshot only emskit_data_available should be emitted, got %d metrics", count)
	}
}

func TestCollectorWithSnapshot(t *testing.T) {
	kit := &EmsKit{}
	data := testSnapshot()
	data.Schedule.Count = 5
	kit.latest = data

	collector := NewCollector(kit)

	expected := `
# HELP emskit_data_available Whether a snapshot from a successful poll cycle is present (1=yes, 0=no)
# TYPE emskit_data_available gauge
emskit_data_available 1
# HELP emskit_schedule_count Number of schedules reported by the sched_list header
# TYPE emskit_schedule_count gauge
emskit_schedule_count 5
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"emskit_data_available", "emskit_schedule_count")
	if err != nil {
		t.Error(err)
	}
}

func TestCollectorReadings(t *testing.T) {
	kit := &EmsKit{latest: testSnapshot()}
	collector := NewCollector(kit)

	metricCh := make(chan prometheus.Metric, 50)
	go func() {
		collector.Collect(metricCh)
		close(metricCh)
	}()

	count := 0
	for range metricCh {
		count++
	}

	// available + schedule count, 4 aggregated readings, 4 for the single
	// unit and 3 each for the grid and solar sensors; the load role is
	// absent from the snapshot so its readings are not emitted
	want := 2 + 4 + 4 + 3 + 3
	if count != want {
		t.Errorf("got %d metrics, want %d", count, want)
	}
}
