package taskstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/you-humble/imagepipe/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// updateStatusScript is a compare-and-set over the task hash. The transition
// check runs inside Redis so two consumers racing on the same task cannot
// regress its status or leave a terminal state.
//
// Returns 1 on success, 0 when the transition is rejected, -1 when the task
// does not exist.
var updateStatusScript = redis.NewScript(`
local rank = {INIT=0, QUEUED=1, PROCESSING=2, DONE=3, FAILED=3}
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
if cur == 'DONE' or cur == 'FAILED' then
  return 0
end
local from = rank[cur]
local to = rank[ARGV[1]]
if from == nil or to == nil or to <= from then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[2])
if ARGV[1] == 'FAILED' then
  redis.call('HSET', KEYS[1], 'failure_reason', ARGV[3])
end
if ARGV[1] == 'DONE' then
  redis.call('HSET', KEYS[1], 'output_url', ARGV[4])
end
return 1
`)

type redisTaskStore struct {
	rdb redis.Cmdable
}

func NewRedisTaskStore(rdb redis.Cmdable) *redisTaskStore {
	return &redisTaskStore{rdb: rdb}
}

func (s *redisTaskStore) Create(ctx context.Context, p domain.CreateTaskParams) (domain.Task, error) {
	if p.OriginURL == "" {
		return domain.Task{}, fmt.Errorf("empty origin url")
	}
	if !p.TaskType.Valid() {
		return domain.Task{}, fmt.Errorf("unknown task type %q", p.TaskType)
	}

	now := time.Now()
	t := domain.Task{
		ID:               uuid.NewString(),
		Status:           domain.StatusInit,
		OriginURL:        p.OriginURL,
		TaskType:         p.TaskType,
		OriginalFilename: p.OriginalFilename,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.rdb.HSet(ctx, taskKey(t.ID), map[string]interface{}{
		"id":                t.ID,
		"status":            string(t.Status),
		"failure_reason":    "",
		"origin_url":        t.OriginURL,
		"output_url":        "",
		"task_type":         string(t.TaskType),
		"original_filename": t.OriginalFilename,
		"created_at":        t.CreatedAt.UnixNano(),
		"updated_at":        t.UpdatedAt.UnixNano(),
	}).Err()
	if err != nil {
		return domain.Task{}, fmt.Errorf("redis create task: %w", err)
	}

	return t, nil
}

func (s *redisTaskStore) Get(ctx context.Context, id string) (domain.Task, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return domain.Task{}, fmt.Errorf("redis get task: %w", err)
	}
	if len(res) == 0 {
		return domain.Task{}, domain.ErrTaskNotFound
	}

	t := domain.Task{
		ID:               id,
		Status:           domain.TaskStatus(res["status"]),
		FailureReason:    res["failure_reason"],
		OriginURL:        res["origin_url"],
		OutputURL:        res["output_url"],
		TaskType:         domain.TaskType(res["task_type"]),
		OriginalFilename: res["original_filename"],
	}

	t.CreatedAt = parseUnixNano(res["created_at"])
	t.UpdatedAt = parseUnixNano(res["updated_at"])

	return t, nil
}

// UpdateStatus durably advances a task's status. failureReason is only
// accepted with FAILED, outputURL only with DONE; any backward, repeated or
// out-of-terminal transition returns ErrInvalidTransition.
func (s *redisTaskStore) UpdateStatus(
	ctx context.Context,
	id string,
	newStatus domain.TaskStatus,
	failureReason, outputURL string,
) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, newStatus)
	}
	if failureReason != "" && newStatus != domain.StatusFailed {
		return fmt.Errorf("failure reason only allowed with %s", domain.StatusFailed)
	}
	if outputURL != "" && newStatus != domain.StatusDone {
		return fmt.Errorf("output url only allowed with %s", domain.StatusDone)
	}

	now := time.Now().UnixNano()
	res, err := updateStatusScript.Run(ctx, s.rdb,
		[]string{taskKey(id)},
		string(newStatus), now, failureReason, outputURL,
	).Int()
	if err != nil {
		return fmt.Errorf("redis update status: %w", err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return domain.ErrTaskNotFound
	default:
		return fmt.Errorf("%s -> %s: %w", id, newStatus, domain.ErrInvalidTransition)
	}
}

func parseUnixNano(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func taskKey(id string) string {
	return "task:" + id
}
