// Package promtest provides helpers for extracting prometheus metrics in
// tests. Collectors register on a plain registry and the gathered families
// are searched directly; no scrape endpoint is involved.
package promtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MustGather gathers from g, failing the test on error.
func MustGather(tb testing.TB, g prometheus.Gatherer) []*dto.MetricFamily {
	tb.Helper()

	mfs, err := g.Gather()
	if err != nil {
		tb.Fatalf("gathering metrics: %v", err)
	}
	return mfs
}

// MustFindMetric returns the metric in family name whose label set equals
// labels; nil labels matches a metric carrying none. When nothing matches it
// fails the test, logging what was actually gathered.
func MustFindMetric(tb testing.TB, mfs []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	tb.Helper()

	fam := findFamily(mfs, name)
	if fam == nil {
		names := make([]string, len(mfs))
		for i, mf := range mfs {
			names[i] = mf.GetName()
		}
		tb.Fatalf("no metric family named %q; gathered: %s", name, strings.Join(names, ", "))
		return nil
	}

	for _, m := range fam.Metric {
		if labelsEqual(m.Label, labels) {
			return m
		}
	}

	have := make([]string, len(fam.Metric))
	for i, m := range fam.Metric {
		pairs := make([]string, len(m.Label))
		for j, l := range m.Label {
			pairs[j] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
		}
		have[i] = "{" + strings.Join(pairs, ",") + "}"
	}
	tb.Fatalf("family %q has no metric with labels %v; present label sets: %s",
		name, labels, strings.Join(have, " "))
	return nil
}

func findFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// labelsEqual reports whether got carries exactly the pairs in want.
// Assumes well-formed labels: no duplicate names, no empty values.
func labelsEqual(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, l := range got {
		if want[l.GetName()] != l.GetValue() {
			return false
		}
	}
	return true
}
