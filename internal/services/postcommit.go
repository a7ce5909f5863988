package services

import (
	"context"
	"log/slog"
)

// postCommit collects best-effort side effects (event appends, alert
// raising, notifications) to run after the primary outcome of an operation
// is decided. Task failures are logged and never change the outcome.
type postCommit struct {
	logger *slog.Logger
	tasks  []postCommitTask
}

type postCommitTask struct {
	name string
	run  func(ctx context.Context) error
}

func newPostCommit(logger *slog.Logger) *postCommit {
	return &postCommit{logger: logger}
}

func (p *postCommit) add(name string, run func(ctx context.Context) error) {
	p.tasks = append(p.tasks, postCommitTask{name: name, run: run})
}

func (p *postCommit) runAll(ctx context.Context) {
	for _, task := range p.tasks {
		if err := task.run(ctx); err != nil {
			p.logger.Error("post-commit task failed",
				slog.String("task", task.name),
				slog.Any("error", err))
		}
	}
	p.tasks = nil
}
