package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/apimachinery/pkg/util/wait"
)

// RedisBackend keeps each queue in a handful of keys under prefix:
//
//	{prefix}:{queue}:jobs       hash id -> job json
//	{prefix}:{queue}:waiting    list of ids, FIFO
//	{prefix}:{queue}:delayed    zset id scored by due time (ms)
//	{prefix}:{queue}:active     zset id scored by lease expiry (ms)
//	{prefix}:{queue}:completed  list of finished job json, newest first
//	{prefix}:{queue}:dead       list of dead job json, newest first
//
// Every state transition is a single Lua script so it is atomic on the server.
type RedisBackend struct {
	client *redis.Client
	prefix string
	opts   BackendOptions
}

func NewRedisBackend(ctx context.Context, client *redis.Client, prefix string, opts BackendOptions) (*RedisBackend, error) {
	opts.SetDefaults()
	if prefix == "" {
		prefix = "gateway"
	}

	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, 500*time.Millisecond, 5*time.Second, true, func(ctx context.Context) (bool, error) {
		if lastErr = client.Ping(ctx).Err(); lastErr != nil {
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, &BackendOperationError{Operation: "Connect", Err: lastErr}
	}

	return &RedisBackend{
		client: client,
		prefix: prefix,
		opts:   opts,
	}, nil
}

func (r *RedisBackend) key(queue, part string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, queue, part)
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

var enqueueCmd = redis.NewScript(`
	local jobs = KEYS[1]
	local waiting = KEYS[2]
	local delayed = KEYS[3]

	redis.call("HSET", jobs, ARGV[1], ARGV[2])
	if tonumber(ARGV[3]) > 0 then
		redis.call("ZADD", delayed, ARGV[3], ARGV[1])
	else
		redis.call("RPUSH", waiting, ARGV[1])
	end
	return 1
`)

func (r *RedisBackend) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return &BackendOperationError{Operation: "Enqueue", Err: err}
	}

	var dueAt int64
	if job.ScheduledFor.After(r.opts.Now()) {
		dueAt = millis(job.ScheduledFor)
	}

	keys := []string{r.key(job.Queue, "jobs"), r.key(job.Queue, "waiting"), r.key(job.Queue, "delayed")}
	if err := enqueueCmd.Run(ctx, r.client, keys, job.ID, data, dueAt).Err(); err != nil {
		return &BackendOperationError{Operation: "Enqueue", Err: err}
	}
	return nil
}

// claimCmd first requeues jobs whose lease expired, then promotes due delayed
// jobs, then pops the head of the waiting list.
var claimCmd = redis.NewScript(`
	local jobs = KEYS[1]
	local waiting = KEYS[2]
	local delayed = KEYS[3]
	local active = KEYS[4]
	local now = ARGV[1]

	local expired = redis.call("ZRANGEBYSCORE", active, "-inf", now, "LIMIT", 0, 100)
	for _, id in ipairs(expired) do
		redis.call("ZREM", active, id)
		redis.call("RPUSH", waiting, id)
	end

	local due = redis.call("ZRANGEBYSCORE", delayed, "-inf", now, "LIMIT", 0, 100)
	for _, id in ipairs(due) do
		redis.call("ZREM", delayed, id)
		redis.call("RPUSH", waiting, id)
	end

	while true do
		local id = redis.call("LPOP", waiting)
		if not id then
			return false
		end
		local data = redis.call("HGET", jobs, id)
		if data then
			redis.call("ZADD", active, ARGV[2], id)
			return data
		end
	end
`)

func (r *RedisBackend) Claim(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	now := r.opts.Now()
	keys := []string{r.key(queue, "jobs"), r.key(queue, "waiting"), r.key(queue, "delayed"), r.key(queue, "active")}

	res, err := claimCmd.Run(ctx, r.client, keys, millis(now), millis(now.Add(lease))).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &BackendOperationError{Operation: "Claim", Err: err}
	}

	var job Job
	if err := json.Unmarshal([]byte(res), &job); err != nil {
		return nil, &BackendOperationError{Operation: "Claim", Err: err}
	}
	job.State = StateActive
	return &job, nil
}

var ackCmd = redis.NewScript(`
	local jobs = KEYS[1]
	local active = KEYS[2]
	local completed = KEYS[3]

	if redis.call("ZREM", active, ARGV[1]) == 0 then
		return 0
	end
	redis.call("HDEL", jobs, ARGV[1])
	redis.call("LPUSH", completed, ARGV[2])
	redis.call("LTRIM", completed, 0, tonumber(ARGV[3]) - 1)
	return 1
`)

func (r *RedisBackend) Ack(ctx context.Context, job *Job) error {
	finished := r.opts.Now()
	job.State = StateCompleted
	job.FinishedAt = &finished
	data, err := json.Marshal(job)
	if err != nil {
		return &BackendOperationError{Operation: "Ack", Err: err}
	}

	keys := []string{r.key(job.Queue, "jobs"), r.key(job.Queue, "active"), r.key(job.Queue, "completed")}
	n, err := ackCmd.Run(ctx, r.client, keys, job.ID, data, r.opts.KeepCompleted).Int()
	if err != nil {
		return &BackendOperationError{Operation: "Ack", Err: err}
	}
	if n == 0 {
		return &JobNotFoundError{JobID: job.ID}
	}
	return nil
}

var failCmd = redis.NewScript(`
	local jobs = KEYS[1]
	local active = KEYS[2]
	local delayed = KEYS[3]
	local dead = KEYS[4]

	if redis.call("ZREM", active, ARGV[1]) == 0 then
		return 0
	end
	if ARGV[3] ~= "" then
		redis.call("HSET", jobs, ARGV[1], ARGV[2])
		redis.call("ZADD", delayed, ARGV[3], ARGV[1])
	else
		redis.call("HDEL", jobs, ARGV[1])
		redis.call("LPUSH", dead, ARGV[2])
		redis.call("LTRIM", dead, 0, tonumber(ARGV[4]) - 1)
	end
	return 1
`)

func (r *RedisBackend) Fail(ctx context.Context, job *Job, retryAt *time.Time) error {
	var due string
	if retryAt != nil {
		job.State = StateDelayed
		job.ScheduledFor = *retryAt
		due = strconv.FormatInt(millis(*retryAt), 10)
	} else {
		finished := r.opts.Now()
		job.State = StateDead
		job.FinishedAt = &finished
	}

	data, err := json.Marshal(job)
	if err != nil {
		return &BackendOperationError{Operation: "Fail", Err: err}
	}

	keys := []string{r.key(job.Queue, "jobs"), r.key(job.Queue, "active"), r.key(job.Queue, "delayed"), r.key(job.Queue, "dead")}
	n, err := failCmd.Run(ctx, r.client, keys, job.ID, data, due, r.opts.KeepFailed).Int()
	if err != nil {
		return &BackendOperationError{Operation: "Fail", Err: err}
	}
	if n == 0 {
		return &JobNotFoundError{JobID: job.ID}
	}
	return nil
}

func (r *RedisBackend) Stats(ctx context.Context, queue string) (*Stats, error) {
	pipe := r.client.Pipeline()
	waiting := pipe.LLen(ctx, r.key(queue, "waiting"))
	active := pipe.ZCard(ctx, r.key(queue, "active"))
	delayed := pipe.ZCard(ctx, r.key(queue, "delayed"))
	completed := pipe.LLen(ctx, r.key(queue, "completed"))
	dead := pipe.LLen(ctx, r.key(queue, "dead"))

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, &BackendOperationError{Operation: "Stats", Err: err}
	}

	return &Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Dead:      dead.Val(),
	}, nil
}

// RetryDead moves every dead job back to waiting with its attempts reset. The dead
// list is watched so a job dying concurrently is not lost.
func (r *RedisBackend) RetryDead(ctx context.Context, queue string) (int64, error) {
	deadKey := r.key(queue, "dead")
	jobsKey := r.key(queue, "jobs")
	waitingKey := r.key(queue, "waiting")

	var moved int64
	txf := func(tx *redis.Tx) error {
		entries, err := tx.LRange(ctx, deadKey, 0, -1).Result()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			moved = 0
			return nil
		}

		now := r.opts.Now()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i := len(entries) - 1; i >= 0; i-- {
				var job Job
				if err := json.Unmarshal([]byte(entries[i]), &job); err != nil {
					return err
				}
				resetForRetry(&job, now)
				data, err := json.Marshal(&job)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, jobsKey, job.ID, data)
				pipe.RPush(ctx, waitingKey, job.ID)
			}
			pipe.Del(ctx, deadKey)
			return nil
		})
		moved = int64(len(entries))
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txf, deadKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, &BackendOperationError{Operation: "RetryDead", Err: err}
		}
		return moved, nil
	}
	return 0, &BackendOperationError{Operation: "RetryDead", Err: redis.TxFailedErr}
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
