package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/storage"
	"github.com/Roland735/rentbot/internal/utils"
)

// Task types.
const (
	TypeImageProcess    = "image:process"
	TypeNotification    = "notify:send"
	TypePaymentSimulate = "payment:simulate"
	TypeSessionSweep    = "session:sweep"
)

// Queues, by priority.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
)

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

type NotificationPayload struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

type PaymentSimulationPayload struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type ImageTaskPayload struct {
	ListingID string `json:"listing_id"`
	Owner     string `json:"owner"`
	MediaURL  string `json:"media_url"`
}

func newTask(typ string, payload interface{}, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return asynq.NewTask(typ, data, opts...), nil
}

func NewNotificationTask(phone, body string) (*asynq.Task, error) {
	return newTask(TypeNotification, NotificationPayload{Phone: phone, Body: body},
		asynq.Queue(QueueCritical), asynq.MaxRetry(10))
}

func NewPaymentSimulationTask(reference, status string) (*asynq.Task, error) {
	return newTask(TypePaymentSimulate, PaymentSimulationPayload{Reference: reference, Status: status},
		asynq.Queue(QueueCritical), asynq.MaxRetry(3))
}

func NewImageProcessTask(listingID utils.SixID, owner, mediaURL string) (*asynq.Task, error) {
	return newTask(TypeImageProcess, ImageTaskPayload{ListingID: listingID.String(), Owner: owner, MediaURL: mediaURL},
		asynq.Queue(QueueImages), asynq.MaxRetry(5), asynq.Timeout(2*time.Minute))
}

// Queue implements services.IJobQueue on an asynq client.
type Queue struct {
	client *asynq.Client
}

var _ services.IJobQueue = (*Queue)(nil)

func NewQueue(client *asynq.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, err error, opts ...asynq.Option) error {
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func (q *Queue) EnqueueNotification(ctx context.Context, phone, body string) error {
	task, err := NewNotificationTask(phone, body)
	return q.enqueue(ctx, task, err)
}

func (q *Queue) EnqueuePaymentSimulation(ctx context.Context, reference, status string, delay time.Duration) error {
	task, err := NewPaymentSimulationTask(reference, status)
	return q.enqueue(ctx, task, err, asynq.ProcessIn(delay))
}

func (q *Queue) EnqueueImageProcess(ctx context.Context, listingID utils.SixID, owner, mediaURL string) error {
	task, err := NewImageProcessTask(listingID, owner, mediaURL)
	return q.enqueue(ctx, task, err)
}

// --- Task Server (Processing tasks) ---

// ProcessorConfig holds the knobs the handlers need.
type ProcessorConfig struct {
	ImageMaxDimension int
	ImageMaxSizeMB    int
	// Media URLs on the provider's host need the account credentials to fetch.
	MediaUsername string
	MediaPassword string
	SessionTTL    time.Duration
}

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg        ProcessorConfig
	sender     messaging.Sender
	storage    storage.IS3Storage
	listings   services.IListingService
	payments   services.IPaymentService
	sessions   services.ISessionStore
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewTaskProcessor(
	cfg ProcessorConfig,
	sender messaging.Sender,
	storageService storage.IS3Storage,
	listingService services.IListingService,
	paymentService services.IPaymentService,
	sessionStore services.ISessionStore,
	httpClient *http.Client,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TaskProcessor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TaskProcessor{
		cfg:        cfg,
		sender:     sender,
		storage:    storageService,
		listings:   listingService,
		payments:   paymentService,
		sessions:   sessionStore,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewServer configures an asynq server. Call Start with Mux, and Shutdown on exit.
func NewServer(rdb *redis.Client, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueImages:   3,
				QueueDefault:  1,
			},
			Logger: logger.Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", zap.String("type", task.Type()), zap.Error(err))
			}),
		},
	)
}

// Mux routes task types to the processor's handlers.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotification, p.instrument(TypeNotification, p.HandleNotificationTask))
	mux.HandleFunc(TypePaymentSimulate, p.instrument(TypePaymentSimulate, p.HandlePaymentSimulationTask))
	mux.HandleFunc(TypeImageProcess, p.instrument(TypeImageProcess, p.HandleImageProcessTask))
	mux.HandleFunc(TypeSessionSweep, p.instrument(TypeSessionSweep, p.HandleSessionSweepTask))
	return mux
}

func (p *TaskProcessor) instrument(typ string, h func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		err := h(ctx, t)
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.metrics.Tasks.WithLabelValues(typ, result).Inc()
		return err
	}
}

// NewScheduler registers the periodic session sweep on spec (cron or "@every 15m").
func NewScheduler(rdb *redis.Client, spec string, logger *zap.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(rdb), &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if _, err := scheduler.Register(spec, asynq.NewTask(TypeSessionSweep, nil, asynq.Queue(QueueDefault))); err != nil {
		return nil, fmt.Errorf("failed to register session sweep %q: %w", spec, err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleNotificationTask(ctx context.Context, t *asynq.Task) error {
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal notification payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Phone == "" {
		return fmt.Errorf("notification has no phone: %w", asynq.SkipRetry)
	}
	if _, err := p.sender.Send(ctx, messaging.Message{To: payload.Phone, Body: payload.Body}); err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	return nil
}

// HandlePaymentSimulationTask plays the part of the payment provider in test mode.
func (p *TaskProcessor) HandlePaymentSimulationTask(ctx context.Context, t *asynq.Task) error {
	var payload PaymentSimulationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payment simulation payload: %v: %w", err, asynq.SkipRetry)
	}
	outcome, err := p.payments.HandleResult(ctx, &payments.Result{
		Reference: payload.Reference,
		Status:    payload.Status,
		PollURL:   "TEST-" + payload.Reference,
	})
	if err != nil {
		return fmt.Errorf("simulated payment %s: %w", payload.Reference, err)
	}
	p.logger.Info("Simulated payment result applied",
		zap.String("reference", payload.Reference),
		zap.String("status", payload.Status),
		zap.Stringer("outcome", outcome))
	return nil
}

func (p *TaskProcessor) HandleSessionSweepTask(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-p.cfg.SessionTTL)
	n, err := p.sessions.SweepExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("Expired sessions cleared", zap.Int64("count", n))
	}
	return nil
}

func (p *TaskProcessor) notifyOwner(ctx context.Context, owner, body string) {
	if owner == "" {
		return
	}
	if _, err := p.sender.Send(ctx, messaging.Message{To: owner, Body: body}); err != nil {
		p.logger.Warn("Failed to notify listing owner", observability.Phone(owner), zap.Error(err))
	}
}

// HandleImageProcessTask fetches an inbound photo, downsizes it, stores it and
// attaches it to the listing.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	listingID, err := utils.ParseSixID(payload.ListingID)
	if err != nil {
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}

	imgData, err := p.fetch(ctx, payload.MediaURL)
	if err != nil {
		return err
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		p.notifyOwner(ctx, payload.Owner, "Sorry, that photo could not be read. Please send a JPEG or PNG image.")
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	if maxDim > 0 && (uint(img.Bounds().Dx()) > maxDim || uint(img.Bounds().Dy()) > maxDim) {
		img = resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	url, err := p.storage.PutImage(ctx, storage.ImageKey(payload.ListingID), buf.Bytes(), "image/jpeg")
	if err != nil {
		return err
	}

	if err := p.listings.AddImage(ctx, listingID, url); err != nil {
		if errors.Is(err, services.ErrListingFull) {
			p.notifyOwner(ctx, payload.Owner, fmt.Sprintf("Listing %s already has %d photos.", payload.ListingID, models.MaxListingImages))
			return fmt.Errorf("listing %s is full: %w", payload.ListingID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to attach image to listing %s: %w", payload.ListingID, err)
	}

	p.logger.Info("Listing photo stored",
		zap.String("listing_id", payload.ListingID),
		zap.String("source_format", format),
		zap.Int("bytes", buf.Len()))
	p.notifyOwner(ctx, payload.Owner, fmt.Sprintf("📷 Photo added to listing %s.", payload.ListingID))
	return nil
}

// fetch downloads url, refusing bodies over the configured size.
func (p *TaskProcessor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("bad media URL %q: %v: %w", url, err, asynq.SkipRetry)
	}
	if p.cfg.MediaUsername != "" {
		req.SetBasicAuth(p.cfg.MediaUsername, p.cfg.MediaPassword)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("media not found: %w", asynq.SkipRetry)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	maxBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", maxBytes, asynq.SkipRetry)
	}
	return data, nil
}
