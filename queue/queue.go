// Package queue is a small at-least-once work queue on the shared store.
//
// Topics are lists at "mq:topic:im:<topic>" (LPUSH to publish, RPOP to
// consume, so delivery is FIFO). Delayed topics are sorted sets at
// "mq:topic:delay:<topic>" scored by due time in unix milliseconds. Equal
// payloads on a delayed topic collapse into one message.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/easycache"
	"github.com/unkn0wn-root/easycache/internal/util"
	"github.com/unkn0wn-root/easycache/store"
)

const defaultBatch = 10

// Handler processes one message. A non-nil error puts the message back.
type Handler func(ctx context.Context, msg []byte) error

type Options struct {
	// BatchSize caps messages handled per Poll / PollDelayed call. 0 => 10.
	BatchSize int
	Logger    easycache.Logger
	// Now is the clock for delayed topics. nil => time.Now.
	Now func() time.Time
}

type Queue struct {
	c     store.Client
	batch int
	log   easycache.Logger
	now   func() time.Time
}

func New(c store.Client, opts Options) (*Queue, error) {
	if c == nil {
		return nil, easycache.ErrNilClient
	}
	q := &Queue{c: c, batch: opts.BatchSize, log: opts.Logger, now: opts.Now}
	if q.batch <= 0 {
		q.batch = defaultBatch
	}
	if q.log == nil {
		q.log = easycache.NopLogger{}
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q, nil
}

func (q *Queue) Push(ctx context.Context, topic string, msg []byte) error {
	key := util.QueueKey(topic)
	if _, err := q.c.LPush(ctx, key, msg); err != nil {
		return &easycache.StoreError{Op: "lpush", Key: key, Err: err}
	}
	return nil
}

// Poll pops up to BatchSize messages and hands each to fn. Failed messages are
// pushed back to the producing end of the list. It returns how many messages
// fn accepted; it stops early on an empty topic.
func (q *Queue) Poll(ctx context.Context, topic string, fn Handler) (int, error) {
	key := util.QueueKey(topic)
	done := 0
	for i := 0; i < q.batch; i++ {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		msg, ok, err := q.c.RPop(ctx, key)
		if err != nil {
			return done, &easycache.StoreError{Op: "rpop", Key: key, Err: err}
		}
		if !ok {
			break
		}
		if herr := fn(ctx, msg); herr != nil {
			q.log.Error("queue message failed; requeued", easycache.Fields{"topic": key, "err": herr})
			if _, err := q.c.LPush(ctx, key, msg); err != nil {
				return done, errors.Join(herr, &easycache.StoreError{Op: "lpush", Key: key, Err: err})
			}
			continue
		}
		done++
	}
	return done, nil
}

// PushDelayed schedules msg to become visible after delay.
func (q *Queue) PushDelayed(ctx context.Context, topic string, msg []byte, delay time.Duration) error {
	key := util.DelayQueueKey(topic)
	due := q.now().Add(delay).UnixMilli()
	if err := q.c.ZAdd(ctx, key, float64(due), msg); err != nil {
		return &easycache.StoreError{Op: "zadd", Key: key, Err: err}
	}
	q.log.Debug("delayed message scheduled", easycache.Fields{"topic": key, "due": time.UnixMilli(due)})
	return nil
}

// PollDelayed hands up to BatchSize due messages to fn, oldest first. Accepted
// messages are removed; failed ones are rescheduled for now.
func (q *Queue) PollDelayed(ctx context.Context, topic string, fn Handler) (int, error) {
	key := util.DelayQueueKey(topic)
	now := q.now().UnixMilli()
	due, err := q.c.ZRangeByScore(ctx, key, 0, float64(now))
	if err != nil {
		return 0, &easycache.StoreError{Op: "zrangebyscore", Key: key, Err: err}
	}
	if len(due) > q.batch {
		due = due[:q.batch]
	}

	done := 0
	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if herr := fn(ctx, msg); herr != nil {
			q.log.Error("delayed message failed; rescheduled", easycache.Fields{"topic": key, "err": herr})
			if err := q.c.ZAdd(ctx, key, float64(now), msg); err != nil {
				return done, errors.Join(herr, &easycache.StoreError{Op: "zadd", Key: key, Err: err})
			}
			continue
		}
		if _, err := q.c.ZRem(ctx, key, msg); err != nil {
			return done, &easycache.StoreError{Op: "zrem", Key: key, Err: err}
		}
		done++
	}
	return done, nil
}
