package counter

import (
	"context"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	ingestCountersKey = "ingest:counters"
)

// Recorder accumulates pipeline outcome counters in a Redis hash.
type Recorder struct {
	client *redis.Client
	key    string
}

// NewRecorder returns a recorder writing to the shared counters hash.
func NewRecorder(client *redis.Client) *Recorder {
	return &Recorder{client: client, key: ingestCountersKey}
}

// Add increments field by delta. Counters are best-effort: failures are logged and dropped.
func (r *Recorder) Add(ctx context.Context, field string, delta int64) {
	if r == nil || r.client == nil || delta == 0 {
		return
	}
	if err := r.client.HIncrBy(ctx, r.key, field, delta).Err(); err != nil {
		log.Debugf("[Counter] HINCRBY %s %s failed: %v", r.key, field, err)
	}
}

// Snapshot returns all counters.
func (r *Recorder) Snapshot(ctx context.Context) (map[string]int64, error) {
	if r == nil || r.client == nil {
		return map[string]int64{}, nil
	}
	data, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Fields returns the counter names in stable order.
func Fields(snapshot map[string]int64) []string {
	fields := make([]string, 0, len(snapshot))
	for k := range snapshot {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Reset clears all counters.
func (r *Recorder) Reset(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.key).Err()
}
