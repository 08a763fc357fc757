package emergency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/searchandrescuegg/medilocator/internal/dragonfly"
	"github.com/searchandrescuegg/medilocator/internal/ml"
	"github.com/searchandrescuegg/medilocator/internal/pulsar"
	"github.com/searchandrescuegg/medilocator/internal/s3"
	"github.com/searchandrescuegg/medilocator/internal/slack"
	"github.com/searchandrescuegg/medilocator/internal/telemetry"
	"github.com/sourcegraph/conc/pool"
)

const (
	dispatchKeyPrefix    = "dispatch:%s:%d"
	slackThreadKeyPrefix = "slack_thread:%s"
)

const (
	DefaultDedupeTTL       = 30 * time.Minute
	DefaultThreadTTL       = 30 * time.Minute
	DefaultSinkConcurrency = 3
	DefaultSinkTimeout     = 30 * time.Second

	closeTimeout = 30 * time.Second
)

// ErrPersistence wraps every failed write to the conversation or emergency log.
var ErrPersistence = errors.New("failed to persist record")

type Store interface {
	AppendConversation(ctx context.Context, entry *dragonfly.ConversationLog) error
	AppendEmergency(ctx context.Context, entry *dragonfly.EmergencyLog) error
	ListEmergencies(ctx context.Context, userID string) ([]dragonfly.EmergencyLog, error)
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration, value interface{}) error
	Get(ctx context.Context, key string) (string, error)
}

type Publisher interface {
	PublishDispatch(ctx context.Context, event *pulsar.DispatchEvent) error
}

type Notifier interface {
	NotifyDispatch(ctx context.Context, in *slack.DispatchAlertBlocksInput) (string, error)
	PostFollowUp(ctx context.Context, threadTS string, in *slack.FollowUpBlocksInput) error
	PostIncidentClosed(ctx context.Context, threadTS string, in *slack.IncidentClosedBlocksInput) error
}

type Archiver interface {
	ArchiveTranscript(ctx context.Context, transcript *s3.Transcript) (string, error)
}

// Exchange is one processed chat message and the outcome returned to the user.
type Exchange struct {
	UserID  string
	Message string
	History []ml.ChatTurn
	Outcome ml.ChatOutcome
}

type Recorder struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	archiver  Archiver
	metrics   *telemetry.Metrics

	dedupeTTL       time.Duration
	threadTTL       time.Duration
	sinkConcurrency int
	sinkTimeout     time.Duration

	deliveries sync.WaitGroup

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer
}

type Option func(*Recorder)

func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

func WithArchiver(a Archiver) Option {
	return func(r *Recorder) { r.archiver = a }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithDedupeTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		if ttl > 0 {
			r.dedupeTTL = ttl
		}
	}
}

func WithThreadTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		if ttl > 0 {
			r.threadTTL = ttl
		}
	}
}

func WithSinkConcurrency(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.sinkConcurrency = n
		}
	}
}

// WithSinkTimeout bounds the background delivery of one exchange to Slack, Pulsar and S3.
func WithSinkTimeout(timeout time.Duration) Option {
	return func(r *Recorder) {
		if timeout > 0 {
			r.sinkTimeout = timeout
		}
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:           store,
		dedupeTTL:       DefaultDedupeTTL,
		threadTTL:       DefaultThreadTTL,
		sinkConcurrency: DefaultSinkConcurrency,
		sinkTimeout:     DefaultSinkTimeout,
		now:             time.Now,
		afterFunc:       time.AfterFunc,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fingerprint identifies a dispatch by its normalized details so the same emergency
// reported twice in a row maps to the same value.
func Fingerprint(d ml.EmergencyDetails) uint64 {
	fields := []string{d.Location, d.Incident, d.VictimCount, d.UserReportedStatus}
	for i, f := range fields {
		fields[i] = strings.Join(strings.Fields(strings.ToLower(f)), " ")
	}
	return xxhash.Sum64String(strings.Join(fields, "\x1f"))
}

// Record writes the conversation log and, for a new dispatch, the emergency log, then hands
// the exchange to the enabled sinks in the background. Failures are logged and counted; the
// caller's reply is never affected or delayed by a sink.
func (r *Recorder) Record(ctx context.Context, ex Exchange) {
	// detached from request cancellation so a disconnect after the reply still records
	ctx = context.WithoutCancel(ctx)
	now := r.now().UTC()

	err := r.store.AppendConversation(ctx, &dragonfly.ConversationLog{
		ID:                uuid.NewString(),
		UserID:            ex.UserID,
		UserMessage:       ex.Message,
		AssistantReply:    ex.Outcome.Reply,
		DispatchTriggered: ex.Outcome.DispatchTriggered,
		CreatedAt:         now,
	})
	if err != nil {
		r.persistenceFailure(ctx, "conversation", fmt.Errorf("%w: %s", ErrPersistence, err.Error()), slog.String("user_id", ex.UserID))
	}

	entry := r.recordEmergency(ctx, ex, now)

	if r.notifier == nil && (entry == nil || !r.hasSinks()) {
		return
	}

	r.deliveries.Add(1)
	go func() {
		defer r.deliveries.Done()

		deliverCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
		defer cancel()

		r.postFollowUp(deliverCtx, ex, now)
		if entry != nil {
			r.fanOut(deliverCtx, ex, entry, *ex.Outcome.EmergencyDetails)
		}
	}()
}

// Wait blocks until every background delivery started by Record has finished.
func (r *Recorder) Wait() {
	r.deliveries.Wait()
}

// recordEmergency returns the stored emergency for a new dispatch, or nil for a normal
// reply or a duplicate dispatch.
func (r *Recorder) recordEmergency(ctx context.Context, ex Exchange, now time.Time) *dragonfly.EmergencyLog {
	if !ex.Outcome.DispatchTriggered || ex.Outcome.EmergencyDetails == nil {
		return nil
	}

	details := *ex.Outcome.EmergencyDetails
	fingerprint := Fingerprint(details)

	claimed, err := r.store.Claim(ctx, fmt.Sprintf(dispatchKeyPrefix, ex.UserID, fingerprint), r.dedupeTTL)
	if err != nil {
		// dedupe store unavailable: record anyway
		r.persistenceFailure(ctx, "dedupe", err, slog.String("user_id", ex.UserID))
		claimed = true
	}
	if !claimed {
		slog.Info("duplicate dispatch detected, skipping", slog.String("user_id", ex.UserID), slog.Uint64("fingerprint", fingerprint))
		return nil
	}

	entry := &dragonfly.EmergencyLog{
		ID:                 uuid.NewString(),
		UserID:             ex.UserID,
		Location:           details.Location,
		Incident:           details.Incident,
		VictimCount:        details.VictimCount,
		UserReportedStatus: details.UserReportedStatus,
		Status:             dragonfly.EmergencyStatusDispatched,
		CreatedAt:          now,
	}

	if err := r.store.AppendEmergency(ctx, entry); err != nil {
		r.persistenceFailure(ctx, "emergency", fmt.Errorf("%w: %s", ErrPersistence, err.Error()),
			slog.String("user_id", ex.UserID), slog.String("emergency_id", entry.ID))
	}

	r.metrics.Dispatched(ctx)
	slog.Info("emergency recorded", slog.String("user_id", ex.UserID), slog.String("emergency_id", entry.ID), slog.Uint64("fingerprint", fingerprint))

	return entry
}

func (r *Recorder) hasSinks() bool {
	return r.publisher != nil || r.notifier != nil || r.archiver != nil
}

// ListEmergencies returns the user's emergencies newest first; a store failure yields an empty list.
func (r *Recorder) ListEmergencies(ctx context.Context, userID string) []dragonfly.EmergencyLog {
	emergencies, err := r.store.ListEmergencies(ctx, userID)
	if err != nil {
		slog.Error("failed to list emergencies", slog.String("error", err.Error()), slog.String("user_id", userID))
		return []dragonfly.EmergencyLog{}
	}
	if emergencies == nil {
		return []dragonfly.EmergencyLog{}
	}
	return emergencies
}

func (r *Recorder) fanOut(ctx context.Context, ex Exchange, entry *dragonfly.EmergencyLog, details ml.EmergencyDetails) {
	sinks := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(r.sinkConcurrency)

	if r.publisher != nil {
		sinks.Go(func(ctx context.Context) error {
			return r.publisher.PublishDispatch(ctx, &pulsar.DispatchEvent{
				EmergencyID:      entry.ID,
				UserID:           entry.UserID,
				EmergencyDetails: details,
				Confirmation:     ex.Outcome.Reply,
				CreatedAt:        entry.CreatedAt,
			})
		})
	}

	if r.notifier != nil {
		sinks.Go(func(ctx context.Context) error {
			return r.alert(ctx, ex, entry, details)
		})
	}

	if r.archiver != nil {
		sinks.Go(func(ctx context.Context) error {
			turns := make([]ml.ChatTurn, 0, len(ex.History)+2)
			turns = append(turns, ex.History...)
			turns = append(turns,
				ml.ChatTurn{Role: ml.RoleUser, Content: ex.Message},
				ml.ChatTurn{Role: ml.RoleAssistant, Content: ex.Outcome.Reply},
			)

			key, err := r.archiver.ArchiveTranscript(ctx, &s3.Transcript{
				EmergencyID:      entry.ID,
				UserID:           entry.UserID,
				EmergencyDetails: details,
				Turns:            turns,
				DispatchedAt:     entry.CreatedAt,
			})
			if err != nil {
				return err
			}
			slog.Debug("archived transcript", slog.String("emergency_id", entry.ID), slog.String("key", key))
			return nil
		})
	}

	if err := sinks.Wait(); err != nil {
		slog.Error("failed to deliver dispatch to one or more sinks", slog.String("error", err.Error()),
			slog.String("user_id", entry.UserID), slog.String("emergency_id", entry.ID))
	}
}

func (r *Recorder) alert(ctx context.Context, ex Exchange, entry *dragonfly.EmergencyLog, details ml.EmergencyDetails) error {
	expiresAt := entry.CreatedAt.Add(r.threadTTL).Local()

	threadTS, err := r.notifier.NotifyDispatch(ctx, &slack.DispatchAlertBlocksInput{
		EmergencyID:  entry.ID,
		Details:      details,
		Confirmation: ex.Outcome.Reply,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return err
	}

	slog.Debug("posted dispatch alert to slack", slog.String("emergency_id", entry.ID), slog.String("thread_id", threadTS))

	err = r.store.Set(ctx, fmt.Sprintf(slackThreadKeyPrefix, entry.UserID), r.threadTTL, threadTS)
	if err != nil {
		r.persistenceFailure(ctx, "thread", err, slog.String("user_id", entry.UserID), slog.String("emergency_id", entry.ID))
	}

	r.afterFunc(r.threadTTL, func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
		defer closeCancel()

		err := r.notifier.PostIncidentClosed(closeCtx, threadTS, &slack.IncidentClosedBlocksInput{
			EmergencyID: entry.ID,
			ClosedAt:    r.now().Local(),
		})
		if err != nil {
			slog.Error("failed to post incident closed message", slog.String("error", err.Error()), slog.String("emergency_id", entry.ID))
			return
		}

		slog.Debug("posted incident closed message", slog.String("emergency_id", entry.ID), slog.String("thread_id", threadTS))
	})

	return nil
}

func (r *Recorder) postFollowUp(ctx context.Context, ex Exchange, at time.Time) {
	if r.notifier == nil {
		return
	}

	threadTS, err := r.store.Get(ctx, fmt.Sprintf(slackThreadKeyPrefix, ex.UserID))
	if err != nil {
		slog.Warn("failed to look up incident thread", slog.String("error", err.Error()), slog.String("user_id", ex.UserID))
		return
	}
	if threadTS == "" {
		return
	}

	err = r.notifier.PostFollowUp(ctx, threadTS, &slack.FollowUpBlocksInput{
		UserMessage:    ex.Message,
		AssistantReply: ex.Outcome.Reply,
		TS:             at.Local(),
	})
	if err != nil {
		slog.Error("failed to post follow-up to incident thread", slog.String("error", err.Error()),
			slog.String("user_id", ex.UserID), slog.String("thread_id", threadTS))
	}
}

func (r *Recorder) persistenceFailure(ctx context.Context, operation string, err error, attrs ...any) {
	attrs = append([]any{slog.String("error", err.Error()), slog.String("operation", operation)}, attrs...)
	slog.Error("persistence failure", attrs...)
	r.metrics.PersistenceFailure(ctx, operation)
}
