package offer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdKeyPrefix is the key-space used for offers. Each offer lives at
// <prefix>/<transfer_id>.
const DefaultEtcdKeyPrefix = "/securesend/v1/offers"

// EtcdDirectory stores offers as JSON values attached to a lease that expires
// at ValidUntil, so etcd deletes them without a sweeper.
type EtcdDirectory struct {
	client *clientv3.Client
	prefix string
	clock  Clock
}

type etcdOffer struct {
	ConnectionHandle string `json:"connection_handle"`
	ValidUntil       int64  `json:"valid_until"`
}

// NewEtcdClient dials the etcd cluster at endpoints. The caller must Close it.
func NewEtcdClient(endpoints []string) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd dial: %w", err)
	}
	return client, nil
}

func NewEtcdDirectory(client *clientv3.Client, prefix string, clock Clock) *EtcdDirectory {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultEtcdKeyPrefix
	}
	return &EtcdDirectory{
		client: client,
		prefix: prefix,
		clock:  clockOrReal(clock),
	}
}

func (d *EtcdDirectory) key(transferID string) string {
	return d.prefix + "/" + transferID
}

func (d *EtcdDirectory) Put(ctx context.Context, o Offer) error {
	if err := o.validate(); err != nil {
		return err
	}
	ttl := leaseSeconds(o.ValidUntil.Sub(d.clock.Now()))
	if ttl <= 0 {
		return fmt.Errorf("%w: already expired", ErrInvalidOffer)
	}

	data, err := json.Marshal(etcdOffer{
		ConnectionHandle: o.ConnectionHandle,
		ValidUntil:       o.ValidUntil.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}

	lease, err := d.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("etcd grant: %w", err)
	}
	k := d.key(o.TransferID)
	if _, err := d.client.Put(ctx, k, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("etcd put %q: %w", k, err)
	}
	return nil
}

func (d *EtcdDirectory) Get(ctx context.Context, transferID string) (Offer, error) {
	k := d.key(transferID)
	resp, err := d.client.Get(ctx, k)
	if err != nil {
		return Offer{}, fmt.Errorf("etcd get %q: %w", k, err)
	}
	if len(resp.Kvs) == 0 {
		return Offer{}, ErrNotFound
	}

	var rec etcdOffer
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return Offer{}, fmt.Errorf("unmarshal %q: %w", k, err)
	}
	return live(Offer{
		TransferID:       transferID,
		ConnectionHandle: rec.ConnectionHandle,
		ValidUntil:       time.Unix(rec.ValidUntil, 0),
	}, d.clock.Now())
}

// leaseSeconds rounds d up to whole seconds, the granularity of etcd leases.
func leaseSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
