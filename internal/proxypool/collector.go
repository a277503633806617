package proxypool

import "github.com/prometheus/client_golang/prometheus"

type poolCollector struct {
	store       *HealthStore
	total       *prometheus.Desc
	fast        *prometheus.Desc
	blacklisted *prometheus.Desc
}

// NewCollector exposes the pool size and its fast/blacklisted subsets as
// gauges read on every scrape.
func NewCollector(store *HealthStore) prometheus.Collector {
	return &poolCollector{
		store:       store,
		total:       prometheus.NewDesc("railwatch_proxy_pool_size", "Number of proxies in the pool.", nil, nil),
		fast:        prometheus.NewDesc("railwatch_proxy_pool_fast", "Number of proxies in the fast subset.", nil, nil),
		blacklisted: prometheus.NewDesc("railwatch_proxy_pool_blacklisted", "Number of blacklisted proxies.", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.fast
	ch <- c.blacklisted
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stats.Total))
	ch <- prometheus.MustNewConstMetric(c.fast, prometheus.GaugeValue, float64(stats.Fast))
	ch <- prometheus.MustNewConstMetric(c.blacklisted, prometheus.GaugeValue, float64(stats.Blacklisted))
}
