package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"studylm/internal/quiz"
	"studylm/pkg/ai"
	"studylm/pkg/domain"
)

// Quiz job statuses.
const (
	JobGenerating = "generating"
	JobComplete   = "complete"
	JobError      = "error"
	JobCanceled   = "canceled"
)

// Retention after a job leaves the generating state. Canceled jobs go
// quickly; finished ones stay long enough for the client to poll and
// retry a fetch.
const (
	canceledJobTTL = time.Minute
	finishedJobTTL = 5 * time.Minute
)

// JobState is a poll snapshot of one quiz job.
type JobState struct {
	Status    string
	Questions []domain.Question
	Message   string
}

type quizJob struct {
	status    string
	questions []domain.Question
	message   string
	cancel    context.CancelFunc
}

// QuizJobs runs quiz generations in the background with bounded
// concurrency. Cancel aborts the in-flight backend call through the
// job's context rather than only flipping the status.
type QuizJobs struct {
	mu     sync.Mutex
	gen    *quiz.Generator
	sem    *semaphore.Weighted
	logger *slog.Logger
	jobs   map[string]*quizJob
}

func NewQuizJobs(gen *quiz.Generator, concurrency int, logger *slog.Logger) *QuizJobs {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizJobs{
		gen:    gen,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger,
		jobs:   make(map[string]*quizJob),
	}
}

// Start registers a job and launches its generation. The returned id is
// immediately pollable.
func (j *QuizJobs) Start(ctx context.Context, files []ai.FileRef, questionCount int, model string) string {
	id := uuid.NewString()
	jobCtx, cancel := context.WithCancel(ctx)

	j.mu.Lock()
	j.jobs[id] = &quizJob{status: JobGenerating, cancel: cancel}
	j.mu.Unlock()

	go j.run(jobCtx, id, files, questionCount, model)
	return id
}

func (j *QuizJobs) run(ctx context.Context, id string, files []ai.FileRef, questionCount int, model string) {
	if err := j.sem.Acquire(ctx, 1); err != nil {
		// Canceled while queued.
		j.logger.Info("quiz job canceled before start", "job_id", id)
		return
	}
	defer j.sem.Release(1)

	questions, err := j.gen.Generate(ctx, quiz.Request{
		Files:        files,
		NumQuestions: questionCount,
		Model:        model,
	})

	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok || job.status != JobGenerating {
		return
	}
	switch {
	case err != nil:
		j.logger.Error("quiz generation failed", "job_id", id, "error", err)
		job.status = JobError
		job.message = err.Error()
	case len(questions) == 0:
		job.status = JobError
		job.message = "Failed to generate quiz questions"
	default:
		job.status = JobComplete
		job.questions = questions
	}
	j.scheduleRemoval(id, finishedJobTTL)
}

// Cancel aborts a generating job. It reports false when the id is
// unknown or the job already finished.
func (j *QuizJobs) Cancel(id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok || job.status != JobGenerating {
		return false
	}
	job.cancel()
	job.status = JobCanceled
	job.message = "Quiz generation was canceled by the user"
	j.scheduleRemoval(id, canceledJobTTL)
	return true
}

// Status returns the job snapshot or ErrNotFound. Jobs are registered
// before their id is handed out, so an unknown id is genuinely gone.
func (j *QuizJobs) Status(id string) (JobState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return JobState{}, ErrNotFound
	}
	state := JobState{Status: job.status, Message: job.message}
	state.Questions = append(state.Questions, job.questions...)
	return state, nil
}

// scheduleRemoval must be called with the lock held.
func (j *QuizJobs) scheduleRemoval(id string, ttl time.Duration) {
	time.AfterFunc(ttl, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		delete(j.jobs, id)
	})
}
