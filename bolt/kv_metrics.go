package bolt

import (
	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"
)

var _ prometheus.Collector = (*KVStore)(nil)

var (
	kvWritesDesc = prometheus.NewDesc(
		"boltdb_writes_total",
		"Total number of boltdb writes",
		nil, nil)

	kvReadsDesc = prometheus.NewDesc(
		"boltdb_reads_total",
		"Total number of boltdb reads",
		nil, nil)

	kvKeysDesc = prometheus.NewDesc(
		"boltdb_keys_total",
		"Number of keys held in the boltdb key value store",
		nil, nil)
)

// Describe returns all descriptions of the collector.
func (s *KVStore) Describe(ch chan<- *prometheus.Desc) {
	ch <- kvWritesDesc
	ch <- kvReadsDesc
	ch <- kvKeysDesc
}

// Collect returns the current state of all metrics of the collector.
func (s *KVStore) Collect(ch chan<- prometheus.Metric) {
	stats := s.db.Stats()
	writes := stats.TxStats.Write
	reads := stats.TxN

	ch <- prometheus.MustNewConstMetric(
		kvReadsDesc,
		prometheus.CounterValue,
		float64(reads),
	)

	ch <- prometheus.MustNewConstMetric(
		kvWritesDesc,
		prometheus.CounterValue,
		float64(writes),
	)

	_ = s.db.View(func(tx *bolt.Tx) error {
		keyNum := 0
		if b := tx.Bucket(kvBucket); b != nil {
			keyNum = b.Stats().KeyN
		}

		ch <- prometheus.MustNewConstMetric(
			kvKeysDesc,
			prometheus.GaugeValue,
			float64(keyNum),
		)
		return nil
	})
}
