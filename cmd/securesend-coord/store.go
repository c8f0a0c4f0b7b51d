package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/securesend/coord/internal/config"
	"github.com/securesend/coord/internal/metrics"
	"github.com/securesend/coord/internal/offer"
)

// readinessProbeID is looked up by /readyz. A miss proves the store answers.
const readinessProbeID = "__readiness_probe__"

type offerStore struct {
	dir    offer.Directory
	sql    *offer.SQLDirectory
	closer func() error
}

func openOfferStore(cfg config.Config) (*offerStore, error) {
	switch cfg.OfferStore {
	case config.OfferStoreMemory:
		return &offerStore{dir: offer.NewMemoryDirectory(cfg.OfferStoreMaxOffers, cfg.OfferTTL, nil)}, nil

	case config.OfferStoreDynamoDB:
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.AWSRegion),
		})
		if err != nil {
			return nil, fmt.Errorf("aws session: %w", err)
		}
		client := offer.NewDynamoDBClient(sess, cfg.DynamoDBEndpoint)
		return &offerStore{dir: offer.NewDynamoDBDirectory(client, cfg.OffersTable, nil)}, nil

	case config.OfferStoreEtcd:
		client, err := offer.NewEtcdClient(cfg.EtcdEndpoints)
		if err != nil {
			return nil, err
		}
		return &offerStore{
			dir:    offer.NewEtcdDirectory(client, cfg.EtcdKeyPrefix, nil),
			closer: client.Close,
		}, nil

	case config.OfferStoreSQLite:
		db, err := offer.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		dir := offer.NewSQLDirectory(db, nil)
		return &offerStore{dir: dir, sql: dir, closer: sqlDB.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported offer store %q", cfg.OfferStore)
	}
}

// Ready reports whether the store can serve a lookup.
func (s *offerStore) Ready(ctx context.Context) error {
	_, err := s.dir.Get(ctx, readinessProbeID)
	if err == nil || errors.Is(err, offer.ErrNotFound) {
		return nil
	}
	return err
}

func (s *offerStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// runPurgeLoop deletes expired SQL rows every interval until ctx is done.
func runPurgeLoop(ctx context.Context, dir *offer.SQLDirectory, interval time.Duration, log *slog.Logger, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := dir.Purge(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("purging expired offers failed", "err", err)
				}
				continue
			}
			m.OffersPurged(n)
			if n > 0 {
				log.Debug("purged expired offers", "count", n)
			}
		}
	}
}
