package metrics

import (
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-bluescale/collector"
  "github.com/robertof/go-bluescale/collector/model"
  "github.com/robertof/go-bluescale/scale"
)

var (
  descAttempts = prometheus.NewDesc(
    "bluescale_probe_attempts_total",
    "Query attempts made against scales, by result. kind=\"Success\" counts successful queries.",
    []string{"kind"},
    nil,
  )

  descOutcomes = prometheus.NewDesc(
    "bluescale_probe_outcomes_total",
    "Finished probes, by outcome.",
    []string{"outcome"},
    nil,
  )

  descLastSuccess = prometheus.NewDesc(
    "bluescale_last_success_timestamp_seconds",
    "Unix time of the last stored measurement, 0 if none.",
    nil,
    nil,
  )
)

type StatsFunc func() collector.Stats

type statsCollector struct {
  StatsFunc
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
  stats := c.StatsFunc()

  var failed uint64

  for _, kind := range scale.AllKinds() {
    n := stats.Failures[kind]
    failed += n

    ch <- prometheus.MustNewConstMetric(descAttempts, prometheus.CounterValue, float64(n), kind.String())
  }

  ch <- prometheus.MustNewConstMetric(
    descAttempts,
    prometheus.CounterValue,
    float64(stats.Attempts - failed),
    "Success",
  )

  for _, status := range model.AllStatuses() {
    ch <- prometheus.MustNewConstMetric(
      descOutcomes,
      prometheus.CounterValue,
      float64(stats.Outcomes[status]),
      status.String(),
    )
  }

  var last float64

  if !stats.LastSuccess.IsZero() {
    last = float64(stats.LastSuccess.UnixNano()) / 1e9
  }

  ch <- prometheus.MustNewConstMetric(descLastSuccess, prometheus.GaugeValue, last)
}

func RegisterCollector(f StatsFunc, reg prometheus.Registerer) {
  c := &statsCollector{f}

  reg.MustRegister(c)
}
