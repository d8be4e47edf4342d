package telegram

import (
	"context"

	"gapsentry/internal/domain/decision"
	"gapsentry/internal/reporting"
	"gapsentry/pkg/logger"
)

// NotifierConfig selects chats and which events are worth a message
type NotifierConfig struct {
	ChatIDs           []int64
	ReportNoSignal    bool // include skipped and no_signal cycles
	ReportPersistence bool // include successful saves; failures are always sent
	QueueSize         int  // Default: 256
}

// Compile-time check
var _ reporting.Reporter = (*Notifier)(nil)

// Notifier is a Reporter that queues lines for Telegram. Report calls never
// wait on the network: when the queue is full the line is dropped.
type Notifier struct {
	sender Sender
	cfg    NotifierConfig
	queue  chan string
	log    *logger.Logger
	done   chan struct{}
}

// NewNotifier creates a notifier; call Run to start delivery
func NewNotifier(sender Sender, cfg NotifierConfig) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Notifier{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueSize),
		done:   make(chan struct{}),
		log:    logger.Get().With("component", "telegram_notifier"),
	}
}

// Run delivers queued lines until ctx is cancelled, then drains what is left
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)

	for {
		select {
		case <-ctx.Done():
			n.drain()
			return
		case text := <-n.queue:
			n.deliver(ctx, text)
		}
	}
}

// Wait blocks until Run has returned
func (n *Notifier) Wait() {
	<-n.done
}

func (n *Notifier) drain() {
	// best effort with a fresh context; the parent is already cancelled
	ctx := context.Background()
	for {
		select {
		case text := <-n.queue:
			n.deliver(ctx, text)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, text string) {
	for _, chatID := range n.cfg.ChatIDs {
		if err := n.sender.SendMessage(ctx, chatID, text); err != nil {
			n.log.Warnw("Telegram delivery failed", "chat_id", chatID, "error", err)
		}
	}
}

func (n *Notifier) enqueue(text string) {
	select {
	case n.queue <- text:
	default:
		n.log.Warnw("Telegram queue full, dropping line", "queue_size", n.cfg.QueueSize)
	}
}

func (n *Notifier) ReportDecision(_ context.Context, d decision.Decision) {
	if !n.cfg.ReportNoSignal && (d.Status == decision.StatusSkipped || d.Status == decision.StatusNoSignal) {
		return
	}
	n.enqueue(reporting.FormatDecision(d))
}

func (n *Notifier) ReportPersistence(_ context.Context, e decision.PersistenceEvent) {
	if e.OK() && !n.cfg.ReportPersistence {
		return
	}
	n.enqueue(reporting.FormatPersistence(e))
}
