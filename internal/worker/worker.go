package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brightclass/backend/internal/recordings"
	"github.com/brightclass/backend/internal/zoom"
	"github.com/brightclass/backend/pkg/queue"
	"github.com/brightclass/backend/pkg/storage"
)

// ArchiveProcessor processes recording archive jobs: download the MP4
// from Zoom, stream-upload to S3, mark the artifact processed. A failed
// download is retried and eventually dead-lettered; playback keeps
// working through the provider URL in the meantime.
type ArchiveProcessor struct {
	artifacts *recordings.Repository
	tokens    *zoom.TokenManager
	s3        *storage.S3
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewArchiveProcessor creates a recording archive processor.
func NewArchiveProcessor(artifacts *recordings.Repository, tokens *zoom.TokenManager, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{artifacts: artifacts, tokens: tokens, s3: s3, queue: q, logger: logger}
}

// Process executes one archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RecordingArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	art, err := p.artifacts.GetByID(ctx, payload.ArtifactID)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	if art == nil {
		return fmt.Errorf("artifact not found: %s", payload.ArtifactID)
	}
	if art.IsProcessed {
		p.logger.Info("artifact already archived", zap.String("artifact_id", art.ID.String()))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// Zoom download URLs require the same bearer credential as the API.
	if token, err := p.tokens.GetToken(ctx); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.RecordingKey(payload.SessionID.String(), payload.ArtifactID.String())

	s3URL, err := p.s3.Upload(ctx, key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.artifacts.MarkArchived(ctx, payload.ArtifactID, key, s3URL); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}

	p.logger.Info("recording archived",
		zap.String("artifact_id", payload.ArtifactID.String()),
		zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
