package server

import (
	"errors"
	"net/http"

	"quadlend/native/governance"
	"quadlend/native/lending"
	"quadlend/native/timelock"
	"quadlend/native/votetoken"
	"quadlend/services/lendingd/node"
	"quadlend/services/oracle"
)

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

var errorStatuses = []struct {
	target error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{node.ErrInvalidAttestation, http.StatusBadRequest},
	{oracle.ErrNoPrice, http.StatusNotFound},

	{governance.ErrProposalNotFound, http.StatusNotFound},
	{governance.ErrZeroAddress, http.StatusBadRequest},
	{governance.ErrInvalidCalldata, http.StatusBadRequest},
	{governance.ErrInvalidMinVotes, http.StatusBadRequest},
	{governance.ErrInvalidVoteType, http.StatusBadRequest},
	{governance.ErrWrongProposalKind, http.StatusBadRequest},
	{governance.ErrBelowThreshold, http.StatusForbidden},
	{governance.ErrTargetNotWhitelisted, http.StatusForbidden},
	{governance.ErrNotCanceller, http.StatusForbidden},
	{governance.ErrNotVetoSigner, http.StatusForbidden},
	{governance.ErrProposalExists, http.StatusConflict},
	{governance.ErrVotingClosed, http.StatusConflict},
	{governance.ErrAlreadyVoted, http.StatusConflict},
	{governance.ErrNotSucceeded, http.StatusConflict},
	{governance.ErrNotQueued, http.StatusConflict},
	{governance.ErrNotCancelable, http.StatusConflict},
	{governance.ErrAlreadyVetoed, http.StatusConflict},

	{timelock.ErrOperationNotReady, http.StatusConflict},
	{timelock.ErrOperationDone, http.StatusConflict},
	{timelock.ErrOperationCancelled, http.StatusConflict},

	{votetoken.ErrZeroAddress, http.StatusBadRequest},
	{votetoken.ErrInvalidAmount, http.StatusBadRequest},
}

// statusFor maps module errors onto HTTP statuses. Lending failures follow
// their recovery class.
func statusFor(err error) int {
	for _, entry := range errorStatuses {
		if errors.Is(err, entry.target) {
			return entry.status
		}
	}
	switch lending.Classify(err) {
	case lending.ClassValidation:
		return http.StatusBadRequest
	case lending.ClassAuthorization:
		return http.StatusForbidden
	case lending.ClassState:
		return http.StatusConflict
	case lending.ClassResource:
		return http.StatusUnprocessableEntity
	case lending.ClassExternal:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error     string `json:"error"`
	Class     string `json:"class,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}
