package kafka

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrBreakerOpen — публикация пропущена, пока брокер считается недоступным.
var ErrBreakerOpen = errors.New("kafka circuit breaker is open")

// BreakerState — состояние circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerPublisher оборачивает EventPublisher: после maxFailures подряд ошибок
// публикации отбрасываются до истечения resetTimeout, чтобы оформление не ждало таймаутов Kafka.
type BreakerPublisher struct {
	next         EventPublisher
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       BreakerState
}

// NewBreakerPublisher создаёт обёртку с circuit breaker.
func NewBreakerPublisher(next EventPublisher, maxFailures int, resetTimeout time.Duration, logger *log.Entry) *BreakerPublisher {
	if logger == nil {
		logger = log.WithField("component", "kafka-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &BreakerPublisher{
		next:         next,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
		state:        BreakerClosed,
	}
}

// PublishEvent публикует событие, если breaker не открыт.
func (b *BreakerPublisher) PublishEvent(topic string, key string, event any) error {
	if !b.allow(topic) {
		return ErrBreakerOpen
	}
	err := b.next.PublishEvent(topic, key, event)
	b.observe(topic, err)
	return err
}

// State возвращает текущее состояние.
func (b *BreakerPublisher) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerPublisher) allow(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return true
	}
	if b.now().Sub(b.lastFailure) <= b.resetTimeout {
		return false
	}
	b.state = BreakerHalfOpen
	b.logger.WithField("topic", topic).Info("kafka breaker half-open")
	return true
}

func (b *BreakerPublisher) observe(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
			b.state = BreakerOpen
			b.logger.WithError(err).WithFields(log.Fields{
				"topic":    topic,
				"failures": b.failures,
			}).Warn("kafka breaker opened")
		}
		return
	}

	if b.state == BreakerHalfOpen {
		b.logger.WithField("topic", topic).Info("kafka breaker closed")
	}
	b.state = BreakerClosed
	b.failures = 0
}

var _ EventPublisher = (*BreakerPublisher)(nil)
