package fragcache

import (
	"context"
	"time"
)

type nullStore struct{}

func newNullStore() Store { return &nullStore{} }

func (s *nullStore) Driver() Driver { return DriverNull }

func (s *nullStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *nullStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *nullStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (s *nullStore) Delete(context.Context, string) error { return nil }

func (s *nullStore) DeleteMany(context.Context, ...string) error { return nil }

func (s *nullStore) Flush(context.Context) error { return nil }

func (s *nullStore) KeysWithPrefix(context.Context, string) ([]string, error) { return nil, nil }
