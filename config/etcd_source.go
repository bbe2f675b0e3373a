package config

import (
	"context"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix is where override parameters live in etcd:
//
//	/chan-rpc/config/{service}/{key} = value
//
// e.g. /chan-rpc/config/demo.Notifier/Notify.timeout = 500
const DefaultPrefix = "/chan-rpc/config/"

// EtcdSource loads per-service parameter overrides from etcd. Overrides are read once,
// when a channel's Config is built, and never watched.
type EtcdSource struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdSource connects to the given etcd endpoints.
func NewEtcdSource(endpoints []string) (*EtcdSource, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdSource{client: c, prefix: DefaultPrefix}, nil
}

// Load returns every override stored for service.
func (s *EtcdSource) Load(ctx context.Context, service string) (map[string]string, error) {
	prefix := s.prefix + service + "/"
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	params := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := strings.TrimPrefix(string(kv.Key), prefix)
		if key == "" || strings.Contains(key, "/") {
			continue // Skip nested or malformed entries
		}
		params[key] = string(kv.Value)
	}
	return params, nil
}

// Put stores one override. Used by operators and tests.
func (s *EtcdSource) Put(ctx context.Context, service, key, value string) error {
	_, err := s.client.Put(ctx, s.prefix+service+"/"+key, value)
	return err
}

// Delete removes one override.
func (s *EtcdSource) Delete(ctx context.Context, service, key string) error {
	_, err := s.client.Delete(ctx, s.prefix+service+"/"+key)
	return err
}

func (s *EtcdSource) Close() error {
	return s.client.Close()
}
