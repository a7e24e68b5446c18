// Package webhook receives inbound WhatsApp messages from the gateway,
// deduplicates them, and drives the conversation: classify, dispatch to the
// scheduling core, reply.
package webhook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"estatebot_backend/internal/events"
	"estatebot_backend/internal/intent"
	"estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/scheduling"
	"estatebot_backend/internal/whatsapp"
	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"
	"estatebot_backend/platform/phone"
)

const (
	dedupeKeyPrefix = "wa:msg:"
	dedupeTTL       = 24 * time.Hour

	// workerIdleTimeout is how long a per-conversation worker lingers
	// after its last message before exiting.
	workerIdleTimeout = 5 * time.Minute

	// workerQueueSize bounds the per-conversation backlog.
	workerQueueSize = 32
)

const (
	replyTryAgain  = "Sorry, something went wrong on our side. Please try again in a moment."
	replyInfoSaved = "Thanks, I've saved that! Is there anything else I can help you with, or shall we plan a viewing?"
	replyFallback  = "Thanks for your message! I can help you book, move, or cancel a property viewing. Just tell me a day and time that suits you."
)

// LeadStore is the slice of the leads repository the webhook flow needs.
type LeadStore interface {
	GetByPhone(ctx context.Context, phone string) (repository.Lead, error)
	Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error)
	Update(ctx context.Context, id uuid.UUID, params repository.UpdateLeadParams) (repository.Lead, error)
}

// Dispatcher is the scheduling core's entry point.
type Dispatcher interface {
	HandleSchedulingAction(ctx context.Context, leadID uuid.UUID, action scheduling.Action, rawMessage string) (scheduling.Outcome, error)
	DescribeBookingStatus(ctx context.Context, leadID uuid.UUID) (string, error)
}

// Service processes inbound messages. Messages from the same conversation
// are handled strictly in arrival order by a dedicated worker goroutine, so
// a lead's scheduling state is never mutated concurrently in-process.
type Service struct {
	leads      LeadStore
	dispatcher Dispatcher
	classifier intent.Classifier
	sender     whatsapp.Sender
	redis      *redis.Client
	bus        events.Bus
	timeout    time.Duration
	log        *logger.Logger

	mu       sync.Mutex
	workers  map[string]chan InboundMessage
	draining bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

func NewService(leads LeadStore, dispatcher Dispatcher, classifier intent.Classifier, sender whatsapp.Sender, redisClient *redis.Client, bus events.Bus, cfg config.WebhookConfig, log *logger.Logger) *Service {
	return &Service{
		leads:      leads,
		dispatcher: dispatcher,
		classifier: classifier,
		sender:     sender,
		redis:      redisClient,
		bus:        bus,
		timeout:    cfg.GetDispatchTimeout(),
		log:        log,
		workers:    make(map[string]chan InboundMessage),
		quit:       make(chan struct{}),
	}
}

// Enqueue accepts one inbound message for asynchronous processing. Duplicate
// gateway deliveries (same message id) are dropped here.
func (s *Service) Enqueue(ctx context.Context, msg InboundMessage) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		// Refused before the dedupe mark, so the gateway's retry after
		// the restart is not treated as a duplicate.
		s.log.Warn("inbound message refused, service draining", "messageId", msg.MessageID)
		return nil
	}
	s.mu.Unlock()

	fresh, err := s.markSeen(ctx, msg.MessageID)
	if err != nil {
		// Redis being down must not drop messages; process anyway.
		s.log.Error("webhook dedupe check failed, processing anyway", "error", err, "messageId", msg.MessageID)
	} else if !fresh {
		s.log.Debug("duplicate webhook delivery dropped", "messageId", msg.MessageID)
		return nil
	}

	normalized := phone.NormalizeE164(msg.SenderPhone())

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		s.log.Warn("inbound message refused, service draining", "messageId", msg.MessageID)
		return nil
	}
	ch := s.workerFor(normalized)
	s.mu.Unlock()

	ch <- msg
	return nil
}

func (s *Service) markSeen(ctx context.Context, messageID string) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	return s.redis.SetNX(ctx, dedupeKeyPrefix+messageID, 1, dedupeTTL).Result()
}

// workerFor returns the conversation's queue, starting a worker if needed.
// Callers must hold mu; that ordering guarantees no worker starts after Wait
// has flipped draining.
func (s *Service) workerFor(normalizedPhone string) chan InboundMessage {
	if ch, ok := s.workers[normalizedPhone]; ok {
		return ch
	}

	ch := make(chan InboundMessage, workerQueueSize)
	s.workers[normalizedPhone] = ch
	s.wg.Add(1)
	go s.runWorker(normalizedPhone, ch)
	return ch
}

func (s *Service) runWorker(normalizedPhone string, ch chan InboundMessage) {
	defer s.wg.Done()
	idle := time.NewTimer(workerIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-ch:
			s.process(msg, normalizedPhone)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(workerIdleTimeout)
		case <-s.quit:
			// Flush whatever is already queued, then exit.
			for {
				select {
				case msg := <-ch:
					s.process(msg, normalizedPhone)
				default:
					return
				}
			}
		case <-idle.C:
			s.mu.Lock()
			// A racing Enqueue may have queued into this channel
			// after the timer fired; keep running in that case.
			if len(ch) > 0 {
				s.mu.Unlock()
				idle.Reset(workerIdleTimeout)
				continue
			}
			delete(s.workers, normalizedPhone)
			s.mu.Unlock()
			return
		}
	}
}

// Wait stops intake and blocks until every conversation worker has flushed
// its queue. Safe to call more than once; call after the HTTP listener has
// stopped accepting requests.
func (s *Service) Wait() {
	s.mu.Lock()
	alreadyDraining := s.draining
	s.draining = true
	s.mu.Unlock()

	if !alreadyDraining {
		close(s.quit)
	}
	s.wg.Wait()
}

// process handles one message under the outer dispatch deadline.
func (s *Service) process(msg InboundMessage, normalizedPhone string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	lead, err := s.findOrCreateLead(ctx, normalizedPhone, msg.PushName)
	if err != nil {
		s.log.Error("failed to resolve lead for inbound message", "error", err, "phone", normalizedPhone)
		s.reply(normalizedPhone, replyTryAgain)
		return
	}

	log := s.log.WithLeadID(lead.ID.String())

	bookingContext, err := s.dispatcher.DescribeBookingStatus(ctx, lead.ID)
	if err != nil {
		log.Error("failed to describe booking status", "error", err)
		bookingContext = "unknown"
	}

	result, err := s.classifier.Classify(ctx, msg.Text, bookingContext)
	if err != nil {
		log.Error("intent classification failed", "error", err)
		s.reply(normalizedPhone, replyTryAgain)
		return
	}

	s.applyFieldUpdates(ctx, lead.ID, result.FieldUpdates, log)

	reply := s.route(ctx, lead.ID, result, log)
	s.reply(normalizedPhone, reply)
}

func (s *Service) route(ctx context.Context, leadID uuid.UUID, result intent.Result, log *logger.Logger) string {
	switch result.Action {
	case intent.ActionInitiateBooking, intent.ActionRescheduleAppointment,
		intent.ActionCancelAppointment, intent.ActionSelectAlternative,
		intent.ActionTentativeBooking:
		outcome, err := s.dispatcher.HandleSchedulingAction(ctx, leadID, scheduling.Action(result.Action), result.NormalizedMessage)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("scheduling action exceeded dispatch deadline", "action", string(result.Action))
			} else {
				log.Error("scheduling action failed", "error", err, "action", string(result.Action))
			}
			return replyTryAgain
		}
		log.Info("scheduling action handled", "action", string(result.Action), "success", outcome.Success)
		return outcome.UserMessage

	case intent.ActionProvideInfo:
		return replyInfoSaved

	default:
		if result.Reply != "" {
			return result.Reply
		}
		return replyFallback
	}
}

// findOrCreateLead looks the lead up by phone, creating one on first contact.
func (s *Service) findOrCreateLead(ctx context.Context, normalizedPhone, pushName string) (repository.Lead, error) {
	lead, err := s.leads.GetByPhone(ctx, normalizedPhone)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, err
	}

	firstName, lastName := splitName(pushName)
	lead, err = s.leads.Create(ctx, repository.CreateLeadParams{
		Phone:     normalizedPhone,
		FirstName: firstName,
		LastName:  lastName,
		Timezone:  "UTC",
	})
	if err != nil {
		return repository.Lead{}, err
	}

	s.log.Info("lead created from first inbound message", "leadId", lead.ID.String())
	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Phone:     normalizedPhone,
	})
	return lead, nil
}

func (s *Service) applyFieldUpdates(ctx context.Context, leadID uuid.UUID, updates map[string]string, log *logger.Logger) {
	if len(updates) == 0 {
		return
	}

	params := repository.UpdateLeadParams{}
	changed := false
	if v, ok := nonEmpty(updates, "firstName"); ok {
		params.FirstName = &v
		changed = true
	}
	if v, ok := nonEmpty(updates, "lastName"); ok {
		params.LastName = &v
		changed = true
	}
	if v, ok := nonEmpty(updates, "email"); ok {
		params.Email = &v
		changed = true
	}
	if !changed {
		return
	}

	if _, err := s.leads.Update(ctx, leadID, params); err != nil {
		log.Error("failed to apply classifier field updates", "error", err)
	}
}

func (s *Service) reply(normalizedPhone, message string) {
	if message == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.sender.SendMessage(ctx, normalizedPhone, message); err != nil {
		s.log.Error("failed to send whatsapp reply", "error", err, "phone", normalizedPhone)
	}
}

func nonEmpty(updates map[string]string, key string) (string, bool) {
	v := strings.TrimSpace(updates[key])
	return v, v != ""
}

func splitName(pushName string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(pushName))
	switch len(parts) {
	case 0:
		return "WhatsApp", "Lead"
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
