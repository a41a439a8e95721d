package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// KnowledgeReindexJob refreshes the knowledge-base collection from disk so
// edits to the docs directory show up without a restart.
type KnowledgeReindexJob struct {
	store reindexer
}

func NewKnowledgeReindexJob(store reindexer) *KnowledgeReindexJob {
	return &KnowledgeReindexJob{store: store}
}

func (j *KnowledgeReindexJob) Name() string {
	return "knowledge_reindex"
}

func (j *KnowledgeReindexJob) Run(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	chunks, err := j.store.Reindex(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("knowledge base reindexed", zap.Int("chunks", chunks))
	return nil
}
