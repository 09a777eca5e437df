package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultSubmitTimeout = 30 * time.Second

type SignStatus string

const (
	// StatusRecorded: signature stored, threshold not met yet.
	StatusRecorded SignStatus = "recorded"
	// StatusDuplicate: the owner had already signed, nothing changed.
	StatusDuplicate SignStatus = "duplicate"
	StatusExecuted  SignStatus = "executed"
	StatusFailed    SignStatus = "failed"
	// StatusRetryable: threshold met but the execution attempt did not reach
	// a verdict. The proposal stays pending.
	StatusRetryable SignStatus = "retryable"
)

type SignResult struct {
	Proposal *Proposal
	Status   SignStatus
	Receipt  *Receipt
}

// Engine drives proposals from creation through signature collection to a
// single execution attempt once the threshold is met.
type Engine struct {
	registry  *Registry
	store     ProposalStore
	builder   TransactionBuilder
	combiner  SignatureCombiner
	submitter ExecutionSubmitter

	timeout time.Duration
	clock   func() time.Time
}

func NewEngine(
	registry *Registry,
	store ProposalStore,
	builder TransactionBuilder,
	combiner SignatureCombiner,
	submitter ExecutionSubmitter,
) *Engine {
	return &Engine{
		registry:  registry,
		store:     store,
		builder:   builder,
		combiner:  combiner,
		submitter: submitter,
		timeout:   DefaultSubmitTimeout,
		clock:     now,
	}
}

// WithSubmitTimeout bounds every call to the execution submitter.
func (e *Engine) WithSubmitTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.timeout = d
	}

	return e
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) CreateProposal(ctx context.Context, recipient, amount, requester string) (*Proposal, error) {
	requester = NormalizeAddress(requester)
	if !e.registry.IsOwner(requester) {
		return nil, fmt.Errorf("%w: %q", ErrUnauthorized, requester)
	}

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, fmt.Errorf("%w: empty recipient", ErrInvalidArgument)
	}

	if v, err := decimal.NewFromString(amount); err != nil || !v.IsPositive() {
		return nil, fmt.Errorf("%w: amount %q must be a positive number", ErrInvalidArgument, amount)
	}

	payload, err := e.builder.Build(ctx, recipient, amount)
	if err != nil {
		slog.Error("build transaction failed", slog.String("recipient", recipient), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %v", ErrPayloadConstruction, err)
	}

	p, err := e.store.Create(ctx, Draft{
		Recipient:          recipient,
		Amount:             amount,
		Payload:            payload,
		RequiredSignatures: e.registry.Threshold(),
		CreatedBy:          requester,
		CreatedAt:          e.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("save proposal failed: %w", err)
	}

	slog.Info("proposal created",
		slog.Int64("proposal", p.ID),
		slog.String("recipient", p.Recipient),
		slog.String("amount", p.Amount),
		slog.String("by", requester),
	)

	return p, nil
}

// SubmitSignature admits one owner signature. When it makes the proposal
// reach its threshold the execution attempt happens within the same call,
// under the proposal's lock.
//
// A non-nil SignResult may accompany an error: ErrExecutionRejected,
// ErrSubmissionTransport and ErrSignatureCombination all carry the proposal
// as it was left.
func (e *Engine) SubmitSignature(ctx context.Context, id int64, signer, signature string) (*SignResult, error) {
	signer = NormalizeAddress(signer)
	if signature == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrInvalidArgument)
	}

	unlock, err := e.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Executed.Terminal() {
		return nil, fmt.Errorf("%w: proposal %d is %s", ErrAlreadyFinalized, id, p.Executed)
	}

	if !e.registry.IsOwner(signer) {
		return nil, fmt.Errorf("%w: %q", ErrUnauthorizedSigner, signer)
	}

	if p.HasSigned(signer) {
		return &SignResult{Proposal: p, Status: StatusDuplicate}, nil
	}

	if err := e.verify(ctx, p, signer, signature); err != nil {
		return nil, err
	}

	p, added, err := e.store.AppendSignature(ctx, id, signer, signature, e.clock())
	if err != nil {
		return nil, err
	}

	if !added {
		return &SignResult{Proposal: p, Status: StatusDuplicate}, nil
	}

	slog.Info("signature recorded",
		slog.Int64("proposal", id),
		slog.String("signer", signer),
		slog.Int("signatures", len(p.Signatures)),
		slog.Int("required", p.RequiredSignatures),
	)

	if !p.ThresholdMet() {
		return &SignResult{Proposal: p, Status: StatusRecorded}, nil
	}

	return e.execute(ctx, p)
}

// RetryExecution repeats the execution attempt of a pending proposal that
// already holds enough signatures, typically after a transport failure.
func (e *Engine) RetryExecution(ctx context.Context, id int64, requester string) (*SignResult, error) {
	requester = NormalizeAddress(requester)
	if !e.registry.IsOwner(requester) {
		return nil, fmt.Errorf("%w: %q", ErrUnauthorized, requester)
	}

	unlock, err := e.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Executed.Terminal() {
		return nil, fmt.Errorf("%w: proposal %d is %s", ErrAlreadyFinalized, id, p.Executed)
	}

	if !p.ThresholdMet() {
		return nil, fmt.Errorf("%w: %d of %d signatures", ErrThresholdNotMet, len(p.Signatures), p.RequiredSignatures)
	}

	return e.execute(ctx, p)
}

func (e *Engine) GetProposal(ctx context.Context, id int64) (*Proposal, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) ListProposals(ctx context.Context) ([]*Proposal, error) {
	return e.store.List(ctx)
}

func (e *Engine) verify(ctx context.Context, p *Proposal, signer, signature string) error {
	v, ok := e.combiner.(SignatureVerifier)
	if !ok {
		return nil
	}

	payload, err := p.PayloadBytes()
	if err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrPayloadConstruction, err)
	}

	if err := v.Verify(ctx, payload, signer, signature); err != nil {
		slog.Warn("signature rejected",
			slog.Int64("proposal", p.ID),
			slog.String("signer", signer),
			slog.Any("err", err),
		)
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return nil
}

// execute must be called with the proposal locked.
func (e *Engine) execute(ctx context.Context, p *Proposal) (*SignResult, error) {
	log := slog.With(slog.Int64("proposal", p.ID))

	payload, err := p.PayloadBytes()
	if err != nil {
		log.Error("decode payload failed", slog.Any("err", err))
		return &SignResult{Proposal: p, Status: StatusRetryable}, fmt.Errorf("%w: decode payload: %v", ErrPayloadConstruction, err)
	}

	combined, err := e.combiner.Combine(ctx, payload, p.SignatureBlobs())
	if err != nil {
		log.Error("combine signatures failed", slog.Any("err", err))
		return &SignResult{Proposal: p, Status: StatusRetryable}, fmt.Errorf("%w: %v", ErrSignatureCombination, err)
	}

	// a caller going away must not abandon a submission halfway
	bg := context.WithoutCancel(ctx)
	sctx, cancel := context.WithTimeout(bg, e.timeout)
	defer cancel()

	receipt, err := e.submitter.Submit(sctx, payload, combined)
	if err == nil && receipt == nil {
		err = errors.New("submitter returned no receipt")
	}

	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.timeout, err)
		}

		log.Error("submit transaction failed", slog.Any("err", err))
		p, rerr := e.record(bg, p.ID, Outcome{State: ExecutionPending, Error: err.Error()})
		if rerr != nil {
			return nil, rerr
		}

		return &SignResult{Proposal: p, Status: StatusRetryable}, fmt.Errorf("%w: %v", ErrSubmissionTransport, err)
	}

	if !receipt.Success {
		log.Warn("execution rejected", slog.String("digest", receipt.Digest), slog.String("reason", receipt.Error))
		p, rerr := e.record(bg, p.ID, Outcome{State: ExecutionFailed, Digest: receipt.Digest, Error: receipt.Error})
		if rerr != nil {
			return nil, rerr
		}

		return &SignResult{Proposal: p, Status: StatusFailed, Receipt: receipt}, fmt.Errorf("%w: %s", ErrExecutionRejected, receipt.Error)
	}

	log.Info("proposal executed", slog.String("digest", receipt.Digest))
	p, err = e.record(bg, p.ID, Outcome{State: ExecutionExecuted, Digest: receipt.Digest})
	if err != nil {
		return nil, err
	}

	return &SignResult{Proposal: p, Status: StatusExecuted, Receipt: receipt}, nil
}

func (e *Engine) record(ctx context.Context, id int64, o Outcome) (*Proposal, error) {
	o.At = e.clock()
	if err := e.store.SetExecutionOutcome(ctx, id, o); err != nil {
		slog.Error("record execution outcome failed",
			slog.Int64("proposal", id),
			slog.String("state", string(o.State)),
			slog.Any("err", err),
		)
		return nil, fmt.Errorf("record execution outcome failed: %w", err)
	}

	return e.store.Get(ctx, id)
}
