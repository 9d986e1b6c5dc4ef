package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMaxFrames = 10

// Store keeps the most recent snapshots per camera in a sorted set scored
// by capture time in milliseconds.
type Store struct {
	redis     *redis.Client
	frameTTL  time.Duration
	maxFrames int64
}

func NewStore(redisClient *redis.Client, frameTTL time.Duration) *Store {
	if frameTTL == 0 {
		frameTTL = 60 * time.Second
	}
	return &Store{
		redis:     redisClient,
		frameTTL:  frameTTL,
		maxFrames: defaultMaxFrames,
	}
}

func frameKey(cameraID string) string {
	return fmt.Sprintf("camera:%s:frames", cameraID)
}

func (s *Store) StoreFrame(ctx context.Context, frame *Frame) error {
	key := frameKey(frame.CameraID)
	member := redis.Z{
		Score:  float64(frame.Timestamp),
		Member: frame.Data,
	}

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.ZRemRangeByRank(ctx, key, 0, -(s.maxFrames + 1))
	pipe.Expire(ctx, key, s.frameTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Put satisfies the monitor frame sink.
func (s *Store) Put(ctx context.Context, cameraID string, at time.Time, data []byte) error {
	return s.StoreFrame(ctx, &Frame{CameraID: cameraID, Timestamp: at.UnixMilli(), Data: data})
}

// GetLatestFrame returns nil without error when nothing is cached.
func (s *Store) GetLatestFrame(ctx context.Context, cameraID string) (*Frame, error) {
	results, err := s.redis.ZRevRangeWithScores(ctx, frameKey(cameraID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	data, ok := results[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("invalid frame data type")
	}

	return &Frame{
		CameraID:  cameraID,
		Timestamp: int64(results[0].Score),
		Data:      []byte(data),
	}, nil
}

func (s *Store) CountFrames(ctx context.Context, cameraID string) (int64, error) {
	return s.redis.ZCard(ctx, frameKey(cameraID)).Result()
}

func (s *Store) DeleteFrames(ctx context.Context, cameraID string) error {
	return s.redis.Del(ctx, frameKey(cameraID)).Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
