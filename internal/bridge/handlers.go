package bridge

import (
	"context"
	"log/slog"

	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/kcidb"
	"github.com/roach88/kcibridge/internal/node"
	"github.com/roach88/kcibridge/internal/tracker"
)

// Subscription filters for the two bridge variants.
var (
	TrackerFilter = channel.Filter{"state": string(node.StateDone)}
	KCIDBFilter   = channel.Filter{"name": "checkout", "state": string(node.StateDone)}
)

// TrackerHandler feeds completed nodes to the regression tracker.
type TrackerHandler struct {
	tracker *tracker.Tracker
	logger  *slog.Logger
	metrics *Metrics
}

func NewTrackerHandler(t *tracker.Tracker, logger *slog.Logger, metrics *Metrics) *TrackerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackerHandler{tracker: t, logger: logger, metrics: metrics}
}

func (h *TrackerHandler) Handle(ctx context.Context, n node.Node) error {
	d, err := h.tracker.Process(ctx, n)
	if err != nil {
		return NewPersistenceError(n.ID, "track regression", err)
	}

	switch d.Outcome {
	case tracker.OutcomeCreated:
		h.metrics.Outcome(OutcomeCreated)
		h.logger.Info("regression created",
			"regression_id", d.Regression.ID,
			"node_id", n.ID,
			"lineage", n.Lineage().String(),
		)
	case tracker.OutcomeExtended:
		h.metrics.Outcome(OutcomeExtended)
		h.logger.Info("regression extended",
			"regression_id", d.Regression.ID,
			"node_id", n.ID,
			"lineage", n.Lineage().String(),
			"length", len(d.Regression.RegressionData),
		)
	case tracker.OutcomeDuplicate:
		h.metrics.Outcome(OutcomeDuplicate)
		h.logger.Info("node already recorded",
			"regression_id", d.Regression.ID,
			"node_id", n.ID,
		)
	default:
		h.metrics.Outcome(OutcomeIgnored)
		h.logger.Debug("node ignored", "node_id", n.ID, "result", string(n.Result), "reason", d.Reason)
	}
	return nil
}

// KCIDBHandler transforms checkout nodes, validates them and submits the
// valid ones to a sink.
type KCIDBHandler struct {
	transformer kcidb.Transformer
	validator   *kcidb.Validator
	sink        kcidb.Sink
	logger      *slog.Logger
	metrics     *Metrics
}

func NewKCIDBHandler(t kcidb.Transformer, v *kcidb.Validator, sink kcidb.Sink, logger *slog.Logger, metrics *Metrics) *KCIDBHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KCIDBHandler{transformer: t, validator: v, sink: sink, logger: logger, metrics: metrics}
}

func (h *KCIDBHandler) Handle(ctx context.Context, n node.Node) error {
	h.logger.Info("submitting node to KCIDB", "node_id", n.ID)

	rev, err := h.transformer.Transform(n)
	if err != nil {
		return NewValidationError(n.ID, "transform checkout", err)
	}
	if err := h.validator.Validate(rev); err != nil {
		return NewValidationError(n.ID, "invalid revision", err)
	}
	if err := h.sink.Submit(ctx, rev); err != nil {
		return NewTransportError(n.ID, "submit revision", err)
	}

	h.metrics.Outcome(OutcomeForwarded)
	h.logger.Info("revision forwarded", "node_id", n.ID, "checkout", rev.CheckoutID())
	return nil
}

// Flush forwards to the sink when it buffers submissions.
func (h *KCIDBHandler) Flush(ctx context.Context) error {
	if f, ok := h.sink.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
