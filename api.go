package treasury

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cast"
	"github.com/twitchtv/twirp"
)

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)
	m.Use(handleAuth(s.cfg.JWTSecret))

	m.Route("/api", func(r chi.Router) {
		r.Get("/multisig/info", s.multisigInfo)
		r.Get("/treasury/balance", s.treasuryBalance)
		r.Get("/proposals", s.listProposals)
		r.Get("/proposal/{id}", s.getProposal)
		r.Post("/proposal/create", s.createProposal)
		r.Post("/proposal/{id}/sign", s.signProposal)
		r.Post("/proposal/{id}/execute", s.executeProposal)
	})

	return m
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	_ = json.NewEncoder(w).Encode(v)
}

type errorView struct {
	Error         string          `json:"error"`
	Details       string          `json:"details"`
	Code          twirp.ErrorCode `json:"code"`
	Proposal      *Proposal       `json:"proposal,omitempty"`
	ExecuteResult *Receipt        `json:"executeResult,omitempty"`
}

func renderErr(w http.ResponseWriter, err error) {
	renderSignErr(w, err, nil, "")
}

// renderSignErr renders err, carrying the proposal and ledger receipt of a
// failed execution attempt when there is one. rejected replaces the status
// text when the ledger rejected the execution.
func renderSignErr(w http.ResponseWriter, err error, res *SignResult, rejected string) {
	terr := toTwirpError(err)
	status := twirp.ServerHTTPStatusFromErrorCode(terr.Code())

	view := errorView{
		Error:   http.StatusText(status),
		Details: terr.Msg(),
		Code:    terr.Code(),
	}

	if res != nil {
		view.Proposal = res.Proposal
		view.ExecuteResult = res.Receipt

		if res.Status == StatusFailed && rejected != "" {
			view.Error = rejected
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(view)
}

func toTwirpError(err error) twirp.Error {
	var terr twirp.Error
	if errors.As(err, &terr) {
		return terr
	}

	msg := err.Error()
	switch {
	case errors.Is(err, ErrUnauthorized):
		return twirp.PermissionDenied.Error(msg)
	case errors.Is(err, ErrUnauthorizedSigner), errors.Is(err, ErrInvalidArgument):
		return twirp.InvalidArgument.Error(msg)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyFinalized):
		return twirp.NotFound.Error(msg)
	case errors.Is(err, ErrThresholdNotMet):
		return twirp.FailedPrecondition.Error(msg)
	case errors.Is(err, ErrSubmissionTransport):
		return twirp.Unavailable.Error(msg)
	case errors.Is(err, context.Canceled):
		return twirp.Canceled.Error(msg)
	case errors.Is(err, context.DeadlineExceeded):
		return twirp.DeadlineExceeded.Error(msg)
	default:
		return twirp.Internal.Error(msg)
	}
}

func proposalID(r *http.Request) (int64, error) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, twirp.NotFound.Error("proposal not found")
	}

	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return twirp.InvalidArgument.Errorf("malformed body: %v", err)
	}

	return nil
}

type multisigInfoView struct {
	Owners     []string `json:"owners"`
	Threshold  int      `json:"threshold"`
	TreasuryID string   `json:"treasuryId"`
}

func (s *Server) multisigInfo(w http.ResponseWriter, r *http.Request) {
	registry := s.engine.Registry()
	renderJSON(w, multisigInfoView{
		Owners:     registry.Owners(),
		Threshold:  registry.Threshold(),
		TreasuryID: registry.TreasuryID(),
	})
}

func (s *Server) treasuryBalance(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Balance == nil {
		renderErr(w, twirp.NotFound.Error("balance not available"))
		return
	}

	b, err := s.cfg.Balance.ReadBalance(r.Context())
	if err != nil {
		slog.Error("read balance", "err", err)
		renderErr(w, err)
		return
	}

	renderJSON(w, b)
}

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.engine.ListProposals(r.Context())
	if err != nil {
		slog.Error("list proposals", "err", err)
		renderErr(w, err)
		return
	}

	if proposals == nil {
		proposals = []*Proposal{}
	}

	renderJSON(w, proposals)
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	p, err := s.engine.GetProposal(r.Context(), id)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, p)
}

func (s *Server) createProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Recipient     string `json:"recipient"`
		Amount        string `json:"amount"`
		SenderAddress string `json:"senderAddress"`
	}

	if err := decodeBody(r, &body); err != nil {
		renderErr(w, err)
		return
	}

	if govalidator.IsNull(body.SenderAddress) {
		renderErr(w, twirp.InvalidArgumentError("senderAddress", "is required"))
		return
	}

	if govalidator.IsNull(body.Recipient) {
		renderErr(w, twirp.InvalidArgumentError("recipient", "is required"))
		return
	}

	if !govalidator.IsFloat(body.Amount) {
		renderErr(w, twirp.InvalidArgumentError("amount", "must be a number"))
		return
	}

	if err := s.authorize(ctx, body.SenderAddress); err != nil {
		renderErr(w, err)
		return
	}

	p, err := s.engine.CreateProposal(ctx, body.Recipient, body.Amount, body.SenderAddress)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]interface{}{
		"proposal": p,
		"details":  "Proposal created, awaiting signatures.",
	})
}

func (s *Server) signProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := proposalID(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	var body struct {
		SignerAddress string `json:"signerAddress"`
		Signature     string `json:"signature"`
	}

	if err := decodeBody(r, &body); err != nil {
		renderErr(w, err)
		return
	}

	if govalidator.IsNull(body.Signature) {
		renderErr(w, twirp.InvalidArgumentError("signature", "is required"))
		return
	}

	if err := s.authorize(ctx, body.SignerAddress); err != nil {
		renderErr(w, err)
		return
	}

	res, err := s.engine.SubmitSignature(ctx, id, body.SignerAddress, body.Signature)
	if err != nil {
		renderSignErr(w, err, res, "Signature submitted, but execution failed.")
		return
	}

	renderSignResult(w, res)
}

func (s *Server) executeProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := proposalID(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	var body struct {
		SenderAddress string `json:"senderAddress"`
	}

	if err := decodeBody(r, &body); err != nil {
		renderErr(w, err)
		return
	}

	if err := s.authorize(ctx, body.SenderAddress); err != nil {
		renderErr(w, err)
		return
	}

	res, err := s.engine.RetryExecution(ctx, id, body.SenderAddress)
	if err != nil {
		renderSignErr(w, err, res, "Execution failed.")
		return
	}

	renderSignResult(w, res)
}

func renderSignResult(w http.ResponseWriter, res *SignResult) {
	view := map[string]interface{}{
		"proposal": res.Proposal,
	}

	switch res.Status {
	case StatusExecuted:
		view["digest"] = res.Receipt.Digest
		view["details"] = "Proposal executed successfully."
	case StatusDuplicate:
		view["details"] = "Signature already recorded."
	default:
		view["details"] = "Signature recorded, threshold not yet met."
	}

	renderJSON(w, view)
}
