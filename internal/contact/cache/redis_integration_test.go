//go:build integration

package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reconciler/internal/contact/cache"
	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	"reconciler/internal/platform/config"
	platformredis "reconciler/internal/platform/redis"
	id "reconciler/pkg/domain"
	"reconciler/pkg/platform/circuit"
	"reconciler/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	client  *platformredis.Client
	service *service.Service
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())

	client, err := platformredis.New(context.Background(), config.RedisConfig{URL: s.redis.URL, PoolSize: 4})
	s.Require().NoError(err)
	s.Require().NotNil(client)
	s.client = client
}

func (s *RedisCacheSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	views := cache.NewGuarded(
		cache.NewRedisViewCache(s.client, time.Minute),
		circuit.New("view-cache"),
		logger,
	)
	svc, err := service.New(
		service.NewShardedTx(store.NewInMemory(), time.Second),
		service.WithViewCache(views),
		service.WithLogger(logger),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *RedisCacheSuite) exists(primaryID id.ContactID) bool {
	n, err := s.client.Exists(context.Background(), "identity:view:"+primaryID.String()).Result()
	s.Require().NoError(err)
	return n == 1
}

func (s *RedisCacheSuite) TestLookupFillsCache() {
	ctx := context.Background()
	created, err := s.service.Identify(ctx, models.Observation{Email: "lorraine@hillvalley.edu", Phone: "123456"})
	s.Require().NoError(err)
	primaryID := created.View.PrimaryID
	s.False(s.exists(primaryID))

	view, err := s.service.Lookup(ctx, primaryID)
	s.Require().NoError(err)
	s.True(s.exists(primaryID))

	again, err := s.service.Lookup(ctx, primaryID)
	s.Require().NoError(err)
	s.Equal(view, again)
}

func (s *RedisCacheSuite) TestMergeInvalidatesBothGroups() {
	ctx := context.Background()
	first, err := s.service.Identify(ctx, models.Observation{Email: "george@hillvalley.edu", Phone: "919191"})
	s.Require().NoError(err)
	second, err := s.service.Identify(ctx, models.Observation{Email: "biffsucks@hillvalley.edu", Phone: "717171"})
	s.Require().NoError(err)

	_, err = s.service.Lookup(ctx, first.View.PrimaryID)
	s.Require().NoError(err)
	_, err = s.service.Lookup(ctx, second.View.PrimaryID)
	s.Require().NoError(err)
	s.Require().True(s.exists(first.View.PrimaryID))
	s.Require().True(s.exists(second.View.PrimaryID))

	merged, err := s.service.Identify(ctx, models.Observation{Email: "george@hillvalley.edu", Phone: "717171"})
	s.Require().NoError(err)
	s.Equal(models.OutcomeMerge, merged.Outcome)
	s.False(s.exists(first.View.PrimaryID))
	s.False(s.exists(second.View.PrimaryID))

	view, err := s.service.Lookup(ctx, second.View.PrimaryID)
	s.Require().NoError(err)
	s.Equal(first.View.PrimaryID, view.PrimaryID)
	s.Equal([]id.ContactID{second.View.PrimaryID}, view.SecondaryIDs)
}
