package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/buildforge/buildforge/pkg/protocol"
)

var (
	ErrQueueNameRequired = errors.New("queue name is required")
	ErrWorkflowIDMissing = errors.New("queue message has no workflow_id")
)

const defaultRedisAddr = "localhost:6379"

// queueMessage is the envelope remote callers push onto the list.
type queueMessage struct {
	WorkflowID string         `json:"workflow_id"`
	Data       map[string]any `json:"data,omitempty"`
}

// QueueSource consumes run requests from a redis list with BLPOP and
// hands each one to the trigger callback. It lets external systems
// start workflow runs without talking to the HTTP API.
type QueueSource struct {
	queue  string
	client *redis.Client
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type QueueSourceFactory struct{}

func NewQueueSourceFactory() *QueueSourceFactory {
	return &QueueSourceFactory{}
}

func (f *QueueSourceFactory) ID() string {
	return "queue"
}

func (f *QueueSourceFactory) Create(config map[string]any, logger *slog.Logger) (protocol.RunSource, error) {
	queue, _ := config["queue"].(string)
	if queue == "" {
		return nil, ErrQueueNameRequired
	}

	source := &QueueSource{
		queue:  queue,
		logger: logger.With("module", "trigger", "source", "queue", "queue_name", queue),
		stopCh: make(chan struct{}),
	}

	connection, _ := config["connection"].(map[string]any)
	source.client = newRedisClient(connection)

	return source, nil
}

func newRedisClient(connection map[string]any) *redis.Client {
	opts := &redis.Options{Addr: defaultRedisAddr}

	if addr, ok := connection["addr"].(string); ok && addr != "" {
		opts.Addr = addr
	}

	if password, ok := connection["password"].(string); ok {
		opts.Password = password
	}

	switch db := connection["db"].(type) {
	case int:
		opts.DB = db
	case float64:
		opts.DB = int(db)
	}

	return redis.NewClient(opts)
}

// Start verifies connectivity and begins consuming. It returns after
// the consumer goroutine is running.
func (s *QueueSource) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	s.logger.Info("Queue source started")

	s.wg.Add(1)

	go s.consume(ctx, callback)

	return nil
}

// Stop shuts down the consumer and closes the connection.
func (s *QueueSource) Stop(ctx context.Context) error {
	close(s.stopCh)

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.client.Close()
}

func (s *QueueSource) consume(ctx context.Context, callback protocol.TriggerCallback) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			s.pop(ctx, callback)
		}
	}
}

func (s *QueueSource) pop(ctx context.Context, callback protocol.TriggerCallback) {
	// Short block so stop requests are noticed promptly.
	result, err := s.client.BLPop(ctx, 1*time.Second, s.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.Warn("Queue read failed", "error", err)
		}

		return
	}

	if len(result) < 2 {
		return
	}

	msg, err := decodeQueueMessage(result[1])
	if err != nil {
		s.logger.Warn("Dropping malformed queue message", "error", err)

		return
	}

	data := msg.Data
	if data == nil {
		data = map[string]any{}
	}

	data["source"] = "queue"
	data["queue_name"] = s.queue

	if err := callback(ctx, msg.WorkflowID, data); err != nil {
		s.logger.Warn("Queue run request rejected",
			"workflow_id", msg.WorkflowID, "error", err)
	}
}

func decodeQueueMessage(raw string) (*queueMessage, error) {
	var msg queueMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if msg.WorkflowID == "" {
		return nil, ErrWorkflowIDMissing
	}

	return &msg, nil
}
