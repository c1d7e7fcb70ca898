package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// Service routes triggered notifications to their delivery channel. Slow
// channels (webhook, email) are handed to a bounded worker pool so a stuck
// destination cannot block the evaluation loop.
type Service struct {
	hub      *Hub
	webhooks *WebhookSender
	mailer   Mailer

	tasks   chan deliveryTask
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

type deliveryTask struct {
	alert        *models.Alert
	notification *models.AlertNotification
}

// ServiceConfig holds configuration for the delivery service
type ServiceConfig struct {
	Hub            *Hub
	WebhookTimeout time.Duration
	Mailer         Mailer // defaults to the logging stub
	Workers        int    // dispatch workers (default: 4)
	QueueDepth     int    // pending dispatches before Deliver reports false (default: 64)
}

// NewService creates a new delivery service
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}

	mailer := cfg.Mailer
	if mailer == nil {
		mailer = NewLogMailer()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 64
	}

	return &Service{
		hub:      cfg.Hub,
		webhooks: NewWebhookSender(cfg.WebhookTimeout),
		mailer:   mailer,
		tasks:    make(chan deliveryTask, queueDepth),
		workers:  workers,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the dispatch workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("delivery service already started")
	}
	s.running = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	log.Printf("[Notify] Started %d dispatch workers", s.workers)
	return nil
}

// Stop drains in-flight dispatches and stops the workers
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("delivery service not started")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	log.Printf("[Notify] Stopped")
	return nil
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case task := <-s.tasks:
			s.dispatch(ctx, task.alert, task.notification)
		}
	}
}

// Deliver hands the notification to the dispatch pool. Returns false when
// the pool is saturated; the notification row exists regardless, so a
// dropped dispatch loses only the push, not the record.
func (s *Service) Deliver(ctx context.Context, alert *models.Alert, n *models.AlertNotification) bool {
	select {
	case s.tasks <- deliveryTask{alert: alert, notification: n}:
		return true
	default:
		log.Printf("[Notify] Dispatch queue full, dropping push for notification %s", n.ID)
		return false
	}
}

// dispatch performs the channel-specific delivery. Failures are logged,
// never raised.
func (s *Service) dispatch(ctx context.Context, alert *models.Alert, n *models.AlertNotification) bool {
	switch alert.Method {
	case types.MethodUI:
		return s.hub.Push(ctx, alert.UserID, n)

	case types.MethodWebhook:
		return s.webhooks.Send(ctx, alert.WebhookURL, n)

	case types.MethodEmail:
		if err := s.mailer.SendNotification(ctx, alert.Email, n); err != nil {
			log.Printf("[Notify] Email dispatch for notification %s failed: %v", n.ID, err)
			return false
		}
		return true
	}

	log.Printf("[Notify] Unknown delivery method %q on alert %s", alert.Method, alert.ID)
	return false
}
