// Package scheduler is a durable delayed-job facility on Redis.
//
// Each job has a key; scheduling a key again replaces its pending job, so at
// most one job per key is due at any time. Due jobs are claimed atomically into
// an in-flight set with a lease. Acknowledged jobs are removed, failed jobs are
// retried later, and jobs whose lease expires (crashed worker) are requeued.
// State lives entirely in Redis, so jobs survive process restarts.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/daffodil/internal/apperr"
	"github.com/rafaeljc/daffodil/internal/validation"
)

// ErrNoJob is returned by Pending when no job is scheduled for the key.
var ErrNoJob = errors.New("no pending job")

// Job is a unit of deferred work.
type Job struct {
	Key     string
	RunAt   time.Time
	Payload []byte
}

// envelope is the stored form of a job.
type envelope struct {
	RunAtMs int64           `json:"run_at_ms"`
	Payload json.RawMessage `json:"payload"`
}

type keys struct {
	due             string
	payload         string
	inflight        string
	inflightPayload string
}

// Scheduler writes and inspects jobs.
type Scheduler struct {
	client redis.UniversalClient
	keys   keys
}

// New creates a scheduler whose keys live under prefix. The braces keep all
// keys in one cluster slot so the scripts can touch them together.
func New(client redis.UniversalClient, prefix string) *Scheduler {
	validation.AssertDependency(client, "scheduler: redis client")
	base := "{" + prefix + "}"
	return &Scheduler{
		client: client,
		keys: keys{
			due:             base + ":due",
			payload:         base + ":payload",
			inflight:        base + ":inflight",
			inflightPayload: base + ":inflight_payload",
		},
	}
}

// Schedule registers a job for key at runAt, replacing any pending job for key.
// payload must be valid JSON.
func (s *Scheduler) Schedule(ctx context.Context, key string, runAt time.Time, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("job %s: payload is not valid JSON", key)
	}
	env, err := json.Marshal(envelope{RunAtMs: runAt.UnixMilli(), Payload: payload})
	if err != nil {
		return fmt.Errorf("job %s: %w", key, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.payload, key, env)
		pipe.ZAdd(ctx, s.keys.due, redis.Z{Score: float64(runAt.UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		return apperr.Unavailable("scheduler", fmt.Errorf("failed to schedule %s: %w", key, err))
	}
	return nil
}

// Pending returns the job currently due for key, or ErrNoJob.
func (s *Scheduler) Pending(ctx context.Context, key string) (*Job, error) {
	raw, err := s.client.HGet(ctx, s.keys.payload, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, apperr.Unavailable("scheduler", err)
	}
	return decodeJob(key, raw)
}

// Depth returns the number of jobs waiting to run.
func (s *Scheduler) Depth(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.keys.due).Result()
	if err != nil {
		return 0, apperr.Unavailable("scheduler", err)
	}
	return n, nil
}

func decodeJob(key string, raw []byte) (*Job, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("job %s: corrupt envelope: %w", key, err)
	}
	return &Job{Key: key, RunAt: time.UnixMilli(env.RunAtMs).UTC(), Payload: env.Payload}, nil
}

// claimed is a job together with the lease it was claimed under.
type claimed struct {
	job   *Job
	lease int64
}

// claim moves up to limit due jobs into the in-flight set, leased until leaseUntil.
func (s *Scheduler) claim(ctx context.Context, now, leaseUntil time.Time, limit int) ([]claimed, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{s.keys.due, s.keys.payload, s.keys.inflight, s.keys.inflightPayload},
		now.UnixMilli(), leaseUntil.UnixMilli(), limit,
	).StringSlice()
	if err != nil {
		return nil, apperr.Unavailable("scheduler", fmt.Errorf("claim failed: %w", err))
	}

	out := make([]claimed, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		key, raw := res[i], res[i+1]
		job, err := decodeJob(key, []byte(raw))
		if err != nil {
			// A zero RunAt makes the runner drop it as a misfire.
			job = &Job{Key: key}
		}
		out = append(out, claimed{job: job, lease: leaseUntil.UnixMilli()})
	}
	return out, nil
}

// ack removes a claimed job. It is a no-op if the lease was lost.
func (s *Scheduler) ack(ctx context.Context, c claimed) error {
	err := ackScript.Run(ctx, s.client,
		[]string{s.keys.inflight, s.keys.inflightPayload},
		c.job.Key, c.lease,
	).Err()
	if err != nil {
		return apperr.Unavailable("scheduler", fmt.Errorf("ack %s failed: %w", c.job.Key, err))
	}
	return nil
}

// retryOutcome mirrors the return codes of retryScript.
type retryOutcome int

const (
	retryLeaseLost retryOutcome = iota
	retryScheduled
	retrySuperseded
)

// retry puts a claimed job back on the due set at retryAt unless the key was
// rescheduled in the meantime or the lease no longer belongs to this claim.
func (s *Scheduler) retry(ctx context.Context, c claimed, retryAt time.Time) (retryOutcome, error) {
	n, err := retryScript.Run(ctx, s.client,
		[]string{s.keys.due, s.keys.payload, s.keys.inflight, s.keys.inflightPayload},
		c.job.Key, c.lease, retryAt.UnixMilli(),
	).Int()
	if err != nil {
		return retryLeaseLost, apperr.Unavailable("scheduler", fmt.Errorf("retry %s failed: %w", c.job.Key, err))
	}
	switch retryOutcome(n) {
	case retryScheduled, retrySuperseded:
		return retryOutcome(n), nil
	default:
		return retryLeaseLost, nil
	}
}

// requeueExpired returns jobs whose lease ended before now to the due set.
func (s *Scheduler) requeueExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	n, err := requeueScript.Run(ctx, s.client,
		[]string{s.keys.due, s.keys.payload, s.keys.inflight, s.keys.inflightPayload},
		now.UnixMilli(), limit,
	).Int()
	if err != nil {
		return 0, apperr.Unavailable("scheduler", fmt.Errorf("requeue failed: %w", err))
	}
	return n, nil
}
