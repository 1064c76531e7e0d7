package lending

import (
	"errors"

	nativecommon "quadlend/native/common"
)

var (
	ErrStateNotConfigured = errors.New("lending: state not configured")
	ErrInvalidAmount      = errors.New("lending: amount must be positive")
	ErrZeroAddress        = errors.New("lending: zero address")
	ErrInsufficientFunds  = errors.New("lending: caller balance too low")

	ErrDepositTooLow             = errors.New("lending: deposit below minimum")
	ErrDepositExceedsCap         = errors.New("lending: deposit exceeds pool cap")
	ErrNotEligibleToLend         = errors.New("lending: account not eligible to lend")
	ErrLenderNotActive           = errors.New("lending: lender has no active position")
	ErrWithdrawalExceedsBalance  = errors.New("lending: withdrawal exceeds principal")
	ErrCooldownNotElapsed        = errors.New("lending: withdrawal cooldown not elapsed")
	ErrNoPendingWithdrawal       = errors.New("lending: no pending withdrawal")
	ErrInsufficientPoolLiquidity = errors.New("lending: insufficient pool liquidity")
	ErrNoInterestToClaim         = errors.New("lending: no interest to claim")

	ErrRepayExistingDebtFirst = errors.New("lending: repay existing debt first")
	ErrCreditScoreTooLow      = errors.New("lending: credit score too low")
	ErrExceedsLendingCapacity = errors.New("lending: amount exceeds lending capacity")
	ErrExceedsTierLimit       = errors.New("lending: amount exceeds tier limit")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	ErrNoOutstandingDebt      = errors.New("lending: no outstanding debt")
	ErrMustSendFundsToRepay   = errors.New("lending: must send funds to repay")

	ErrCollateralNotAllowed              = errors.New("lending: collateral asset not allowed")
	ErrInsufficientCollateralBalance     = errors.New("lending: insufficient collateral balance")
	ErrWithdrawalWouldUndercollateralize = errors.New("lending: withdrawal would undercollateralize position")
	ErrPriceFeedUnavailable              = errors.New("lending: price feed unavailable")

	ErrInvalidRate             = errors.New("lending: invalid rate")
	ErrOnlyTimelock            = errors.New("lending: caller is not the timelock")
	ErrScoreOutOfRange         = errors.New("lending: credit score out of range")
	ErrInvalidStablecoinParams = errors.New("lending: invalid stablecoin parameters")
	ErrInvalidTier             = errors.New("lending: invalid tier table")
	ErrInvalidPenalty          = errors.New("lending: penalty exceeds 100%")
	ErrInvalidConfig           = errors.New("lending: invalid configuration")
	ErrCreditVerifierMissing   = errors.New("lending: credit verifier not configured")
	ErrUnknownSelector         = errors.New("lending: unknown call selector")

	ErrPositionIsHealthy       = errors.New("lending: position is healthy")
	ErrAlreadyMarked           = errors.New("lending: position already marked for liquidation")
	ErrNotMarkedForLiquidation = errors.New("lending: position not marked for liquidation")
	ErrGracePeriodActive       = errors.New("lending: grace period not elapsed")
	ErrInvalidUpkeepPayload    = errors.New("lending: invalid upkeep payload")
	ErrBatchTooLarge           = errors.New("lending: batch exceeds maximum size")
)

// ErrorClass groups failures by how a caller can recover from them.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	// ClassValidation covers bad input; retrying with corrected input succeeds.
	ClassValidation
	// ClassAuthorization is permanent for the caller and role.
	ClassAuthorization
	// ClassState clears once the underlying state changes.
	ClassState
	// ClassResource depends on other actors' behaviour.
	ClassResource
	// ClassExternal is raised by a collaborator such as the price oracle.
	ClassExternal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	case ClassResource:
		return "resource"
	case ClassExternal:
		return "external"
	default:
		return "unknown"
	}
}

var errorClasses = map[error]ErrorClass{
	ErrInvalidAmount:                     ClassValidation,
	ErrZeroAddress:                       ClassValidation,
	ErrDepositTooLow:                     ClassValidation,
	ErrWithdrawalExceedsBalance:          ClassValidation,
	ErrCollateralNotAllowed:              ClassValidation,
	ErrInsufficientCollateralBalance:     ClassValidation,
	ErrInvalidRate:                       ClassValidation,
	ErrScoreOutOfRange:                   ClassValidation,
	ErrInvalidStablecoinParams:           ClassValidation,
	ErrInvalidTier:                       ClassValidation,
	ErrInvalidPenalty:                    ClassValidation,
	ErrInvalidConfig:                     ClassValidation,
	ErrInvalidUpkeepPayload:              ClassValidation,
	ErrBatchTooLarge:                     ClassValidation,
	ErrUnknownSelector:                   ClassValidation,
	ErrMustSendFundsToRepay:              ClassValidation,
	ErrOnlyTimelock:                      ClassAuthorization,
	ErrNotEligibleToLend:                 ClassAuthorization,
	ErrCreditScoreTooLow:                 ClassAuthorization,
	ErrNoOutstandingDebt:                 ClassState,
	ErrCooldownNotElapsed:                ClassState,
	ErrRepayExistingDebtFirst:            ClassState,
	ErrLenderNotActive:                   ClassState,
	ErrNoPendingWithdrawal:               ClassState,
	ErrNoInterestToClaim:                 ClassState,
	ErrInsufficientCollateral:            ClassState,
	ErrWithdrawalWouldUndercollateralize: ClassState,
	ErrPositionIsHealthy:                 ClassState,
	ErrAlreadyMarked:                     ClassState,
	ErrNotMarkedForLiquidation:           ClassState,
	ErrGracePeriodActive:                 ClassState,
	ErrInsufficientFunds:                 ClassState,
	ErrInsufficientPoolLiquidity:         ClassResource,
	ErrDepositExceedsCap:                 ClassResource,
	ErrExceedsLendingCapacity:            ClassResource,
	ErrExceedsTierLimit:                  ClassResource,
	ErrPriceFeedUnavailable:              ClassExternal,
	ErrCreditVerifierMissing:             ClassExternal,
	nativecommon.ErrModulePaused:         ClassState,
	nativecommon.ErrReentrantCall:        ClassState,
}

// Classify maps an error returned by the engine onto its recovery class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	for target, class := range errorClasses {
		if errors.Is(err, target) {
			return class
		}
	}
	return ClassUnknown
}
