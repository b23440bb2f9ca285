// Package storage provides persistent storage for completed prediction
// records using BoltDB, so past classifications can be reviewed and
// audited.
//
// Records are stored per model with timestamp-ordered keys for
// efficient time-range queries.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const predictionsBucket = "predictions"

// PredictionRecord is one completed prediction.
type PredictionRecord struct {
	Model                string    `json:"model"`
	Timestamp            time.Time `json:"timestamp"`
	Prediction           int       `json:"prediction"`
	PredictionLabel      string    `json:"prediction_label"`
	ProbabilityMalignant float64   `json:"probability_malignant"`
	Confidence           float64   `json:"confidence"`
	Consensus            bool      `json:"consensus"`
}

// Store persists prediction records to a BoltDB file.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the prediction database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "predictions.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create predictions bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StorePrediction appends a prediction record. The key format is
// "model_timestamp" for efficient per-model range scans.
func (s *Store) StorePrediction(rec PredictionRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}

		key := fmt.Sprintf("%s_%d", rec.Model, rec.Timestamp.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// GetPredictionsInRange returns a model's records within a time range,
// inclusive, in timestamp order. Malformed records are skipped.
func (s *Store) GetPredictionsInRange(model string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		prefix := []byte(model + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", model, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", model, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}

			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}

		return nil
	})

	return records, err
}
