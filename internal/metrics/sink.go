package metrics

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
	"k8s.io/klog/v2"
)

// Record is one logged value.
type Record struct {
	Epoch int     `json:"epoch"`
	Step  int     `json:"step"`
	Seq   int     `json:"seq"` // Position in the aggregator's log, unique per record
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Sink receives every record the Aggregator logs.
type Sink interface {
	Write(records []Record) error
}

// KlogSink writes records to the structured log at verbosity 2.
type KlogSink struct{}

// Write logs each record.
func (KlogSink) Write(records []Record) error {
	for _, r := range records {
		klog.V(2).InfoS("Metric", "epoch", r.Epoch, "step", r.Step, "name", r.Name, "value", r.Value)
	}
	return nil
}

// BoltSink stores the metric history of one run in a bbolt database.
//
// Each run gets its own bucket; keys are "epoch/step/seq/name" with zero
// padded numbers so that a cursor walks them in logging order. Seq keeps
// records that share a step (every validation batch of an epoch) apart.
type BoltSink struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBoltSink opens (or creates) the database at path and the bucket for run.
func OpenBoltSink(path, run string) (*BoltSink, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	bucket := []byte(run)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %q: %w", run, err)
	}

	return &BoltSink{db: db, bucket: bucket}, nil
}

func recordKey(r Record) []byte {
	return fmt.Appendf(nil, "%06d/%09d/%012d/%s", r.Epoch, r.Step, r.Seq, r.Name)
}

// Write stores records in one transaction.
func (s *BoltSink) Write(records []Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			if err := b.Put(recordKey(r), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// History returns every stored record named name, in logging order.
func (s *BoltSink) History(name string) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			if !strings.HasSuffix(string(k), "/"+name) {
				return nil
			}
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// Close closes the underlying database.
func (s *BoltSink) Close() error {
	return s.db.Close()
}
