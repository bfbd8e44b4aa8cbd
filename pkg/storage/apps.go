package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	bolt "go.etcd.io/bbolt"
)

var (
	appsBucket   = []byte("apps")
	stampsBucket = []byte("stamps")
)

// AppRecord remembers a tool lingle installed
type AppRecord struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Path        string    `json:"path"`
	Sha256      string    `json:"sha256"`
	InstalledAt time.Time `json:"installedAt"`
}

func (s *Store) RecordApp(ctx context.Context, app AppRecord) error {
	if app.Name == "" {
		return eris.New("App record without name")
	}

	encoded, err := json.Marshal(app)
	if err != nil {
		return eris.Wrap(err, "Failed to encode app record")
	}

	return s.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(appsBucket).Put([]byte(app.Name), encoded)
	})
}

// GetApp returns the record for name or nil if the app was never installed
func (s *Store) GetApp(ctx context.Context, name string) (*AppRecord, error) {
	var app *AppRecord
	err := s.view(ctx, func(tx *bolt.Tx) error {
		item := tx.Bucket(appsBucket).Get([]byte(name))
		if item == nil {
			return nil
		}

		app = new(AppRecord)
		return json.Unmarshal(item, app)
	})
	return app, err
}

func (s *Store) ListApps(ctx context.Context) ([]AppRecord, error) {
	apps := make([]AppRecord, 0)
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(appsBucket).ForEach(func(k, v []byte) error {
			var app AppRecord
			err := json.Unmarshal(v, &app)
			if err != nil {
				return eris.Wrapf(err, "Failed to decode app record %s", k)
			}

			apps = append(apps, app)
			return nil
		})
	})

	sort.Slice(apps, func(i, j int) bool {
		return apps[i].Name < apps[j].Name
	})
	return apps, err
}

// GetStamp returns the download stamp (URL#sha256) stored for name
func (s *Store) GetStamp(ctx context.Context, name string) (string, error) {
	stamp := ""
	err := s.view(ctx, func(tx *bolt.Tx) error {
		stamp = string(tx.Bucket(stampsBucket).Get([]byte(name)))
		return nil
	})
	return stamp, err
}

func (s *Store) SetStamp(ctx context.Context, name, stamp string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(stampsBucket).Put([]byte(name), []byte(stamp))
	})
}
