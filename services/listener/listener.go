package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
	"github.com/release-engineering/greenwave-sub000/services/cache"
	"github.com/release-engineering/greenwave-sub000/services/decision"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/services/resources"
	"github.com/release-engineering/greenwave-sub000/services/subjects"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Decider makes the decisions compared by the listener
type Decider interface {
	MakeDecision(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error)
	ApplicablePairs(ctx context.Context, attrs policy.MatchAttributes) []policy.Pair
}

// ProductVersionGuesser finds the product versions of a subject
type ProductVersionGuesser interface {
	ProductVersions(ctx context.Context, subject *models.Subject, taskID int64) ([]string, error)
}

// Config holds the listener options
type Config struct {
	Destination        string
	OutcomesIncomplete []string
}

// Outcome reports what handling a message did
type Outcome struct {
	Processed bool `json:"processed"`
	Published int  `json:"published"`
}

// Listener turns ResultsDB and WaiverDB announcements into decision update
// messages. For every decision context and product version the announced
// test case is gated at, the decision right before the announcement is
// compared with the current one and a message is published when they
// differ.
type Listener struct {
	decider     Decider
	registry    *subjects.Registry
	guesser     ProductVersionGuesser
	store       cache.Store
	publisher   Publisher
	destination string
	incomplete  map[string]bool
	uid         string
	logger      *zap.Logger
}

// New creates a listener
func New(cfg Config, decider Decider, registry *subjects.Registry, guesser ProductVersionGuesser, store cache.Store, publisher Publisher, logger *zap.Logger) *Listener {
	if store == nil {
		store = cache.NoopStore{}
	}
	incomplete := make(map[string]bool, len(cfg.OutcomesIncomplete))
	for _, o := range cfg.OutcomesIncomplete {
		incomplete[o] = true
	}
	uid := "greenwave-listener-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Listener{
		decider:     decider,
		registry:    registry,
		guesser:     guesser,
		store:       store,
		publisher:   publisher,
		destination: cfg.Destination,
		incomplete:  incomplete,
		uid:         uid,
		logger:      logger.With(zap.String("listener", uid)),
	}
}

// UID returns the unique id of this listener instance
func (l *Listener) UID() string {
	return l.uid
}

// event is an announcement that may change decisions
type event struct {
	submitTime      string
	subject         *models.Subject
	testcase        string
	productVersion  string
	publishTestcase bool
}

// HandleResultsDB processes a new result announcement
func (l *Listener) HandleResultsDB(ctx context.Context, msg *ResultsDBMessage) (Outcome, error) {
	testcase, err := msg.TestcaseName()
	if err != nil {
		return Outcome{}, err
	}
	submitTime, err := msg.SubmittedAt()
	if err != nil {
		return Outcome{}, err
	}

	if l.incomplete[msg.Outcome] {
		l.logger.Debug("Assuming no decision change", zap.String("outcome", msg.Outcome))
		return Outcome{}, nil
	}

	subject, err := l.registry.FromData(msg.SubjectData())
	if err != nil {
		l.logger.Debug("Ignoring result without a known subject", zap.String("testcase", testcase))
		return Outcome{}, nil
	}
	// decisions for composes can only be made from results naming the compose id
	if subject.Type() == "compose" && !msg.HasComposeID() {
		return Outcome{}, nil
	}

	l.invalidate(ctx, subject, testcase)

	pvs, err := l.guesser.ProductVersions(ctx, subject, msg.BrewTaskID())
	if err != nil {
		return Outcome{}, err
	}
	l.logger.Debug("Guessed product versions",
		zap.String("subject", subject.String()),
		zap.Strings("product_versions", pvs),
	)
	if len(pvs) == 0 {
		pvs = []string{""}
	}

	out := Outcome{Processed: true}
	for _, pv := range pvs {
		n, err := l.publishDecisionChange(ctx, event{
			submitTime:     submitTime,
			subject:        subject,
			testcase:       testcase,
			productVersion: pv,
		})
		out.Published += n
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// HandleWaiverDB processes a new waiver announcement
func (l *Listener) HandleWaiverDB(ctx context.Context, msg *WaiverDBMessage) (Outcome, error) {
	if err := utils.ValidateStruct(msg); err != nil {
		verr := services.NewValidationError("Invalid waiver message: " + err.Error())
		for field, detail := range utils.GetValidationFields(err) {
			verr.WithDetail(field, detail)
		}
		return Outcome{}, verr
	}

	subject := l.registry.Create(msg.SubjectType, msg.SubjectIdentifier)
	n, err := l.publishDecisionChange(ctx, event{
		submitTime:      msg.Timestamp,
		subject:         subject,
		testcase:        msg.Testcase,
		productVersion:  msg.ProductVersion,
		publishTestcase: true,
	})
	return Outcome{Processed: true, Published: n}, err
}

// invalidate drops the cached passing results of the announced test case
func (l *Listener) invalidate(ctx context.Context, subject *models.Subject, testcase string) {
	key := resources.ResultsCacheKey(subject.Type(), subject.Identifier(), testcase)
	if err := l.store.Delete(ctx, key); err != nil {
		l.logger.Warn("failed to invalidate cached results", zap.String("key", key), zap.Error(err))
	}
}

func (l *Listener) publishDecisionChange(ctx context.Context, ev event) (int, error) {
	pairs := l.decider.ApplicablePairs(ctx, policy.MatchAttributes{
		Subject:        ev.subject,
		Testcase:       ev.testcase,
		ProductVersion: ev.productVersion,
	})

	published := 0
	for _, pair := range pairs {
		logger := l.logger.With(
			zap.String("subject_type", ev.subject.Type()),
			zap.String("subject_identifier", ev.subject.Identifier()),
			zap.String("decision_context", pair.DecisionContext),
			zap.String("product_version", pair.ProductVersion),
		)

		before, after, err := l.decisions(ctx, ev, pair)
		if err != nil {
			logger.Error("Failed to retrieve decision", zap.Error(err))
			continue
		}
		if before["summary"] != after["summary"] {
			logger.Debug("Summary change",
				zap.Any("previous", before["summary"]),
				zap.Any("current", after["summary"]),
			)
		}

		unchanged, err := decision.Unchanged(before, after)
		if err != nil {
			logger.Error("Failed to compare decisions", zap.Error(err))
			continue
		}
		if unchanged {
			logger.Debug("Decision unchanged")
			continue
		}

		msg, err := l.message(ev, pair, before, after)
		if err != nil {
			logger.Error("Failed to build decision change message", zap.Error(err))
			continue
		}
		logger.Info("Publishing decision change message", zap.String("message_id", msg.ID))
		if err := l.publisher.Publish(ctx, msg); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// decisions returns the decision right before the event and the current
// one, computed concurrently
func (l *Listener) decisions(ctx context.Context, ev event, pair policy.Pair) (map[string]any, map[string]any, error) {
	when, err := rightBefore(ev.submitTime)
	if err != nil {
		return nil, nil, err
	}

	var before, after map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		after, err = l.decide(gctx, ev.subject, pair, "")
		return err
	})
	g.Go(func() error {
		var err error
		before, err = l.decide(gctx, ev.subject, pair, when)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (l *Listener) decide(ctx context.Context, subject *models.Subject, pair policy.Pair, when string) (map[string]any, error) {
	dc, err := json.Marshal(pair.DecisionContext)
	if err != nil {
		return nil, err
	}
	subjectType, identifier := subject.Type(), subject.Identifier()
	resp, err := l.decider.MakeDecision(ctx, &models.DecisionRequest{
		DecisionContext:   dc,
		ProductVersion:    pair.ProductVersion,
		SubjectType:       &subjectType,
		SubjectIdentifier: &identifier,
		When:              when,
	})
	if err != nil {
		return nil, err
	}
	return resp.ToMap()
}

func (l *Listener) message(ev event, pair policy.Pair, before, after map[string]any) (Message, error) {
	fingerprint, err := decision.Fingerprint(after)
	if err != nil {
		return Message{}, err
	}

	body := make(map[string]any, len(after)+7)
	for k, v := range after {
		body[k] = v
	}
	body["subject_type"] = ev.subject.Type()
	body["subject_identifier"] = ev.subject.Identifier()
	body["subject"] = []map[string]string{ev.subject.ToMap()}
	body["decision_context"] = pair.DecisionContext
	body["product_version"] = pair.ProductVersion
	body["previous"] = before
	if ev.publishTestcase {
		body["testcase"] = ev.testcase
	}

	return Message{
		ID:          uuid.NewString(),
		Destination: l.destination,
		Headers: map[string]string{
			"subject_type":       ev.subject.Type(),
			"subject_identifier": ev.subject.Identifier(),
			"product_version":    pair.ProductVersion,
			"decision_context":   pair.DecisionContext,
			"policies_satisfied": fmt.Sprint(after["policies_satisfied"]),
			"summary":            fmt.Sprint(after["summary"]),
			"fingerprint":        fingerprint,
		},
		Body: map[string]any{"msg": body, "topic": l.destination},
	}, nil
}

// rightBefore returns the timestamp one microsecond before ts
func rightBefore(ts string) (string, error) {
	t, err := models.ParseTimestamp(ts)
	if err != nil {
		return "", services.NewValidationError(fmt.Sprintf("Invalid timestamp %q", ts))
	}
	return models.FormatTimestamp(t.Add(-time.Microsecond)), nil
}
