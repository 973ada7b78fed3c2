package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codequest/internal/app/service"
)

// EvalWorker drains the evaluation queue and drives each submission to a
// terminal state through the session service. It runs in the same process
// as the API so completed results can be handed straight back to waiting
// HTTP callers.
type EvalWorker struct {
	rdb       *redis.Client
	queueName string
	sessions  *service.SessionService
	log       *zap.Logger
}

func NewEvalWorker(rdb *redis.Client, queueName string, sessions *service.SessionService, log *zap.Logger) *EvalWorker {
	return &EvalWorker{
		rdb:       rdb,
		queueName: queueName,
		sessions:  sessions,
		log:       log,
	}
}

func (w *EvalWorker) Start(ctx context.Context) {
	w.log.Info("evaluation worker started", zap.String("queue", w.queueName))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("evaluation worker stopping")
			return
		default:
		}

		result, err := w.rdb.BRPop(ctx, 5*time.Second, w.queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			w.log.Error("failed to pop from evaluation queue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		submissionID := result[1]
		if err := w.sessions.ProcessSubmission(ctx, submissionID); err != nil {
			w.log.Error("failed to process submission",
				zap.String("submission_id", submissionID), zap.Error(err))
		}
	}
}
