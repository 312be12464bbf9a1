package core

// OutcomeKind tags an AuthOutcome
type OutcomeKind int

const (
	OutcomeFailure OutcomeKind = iota
	OutcomeLocal
	OutcomeFederated
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLocal:
		return "local"
	case OutcomeFederated:
		return "federated"
	default:
		return "failure"
	}
}

// AuthOutcome is the result of any credential acquisition path:
// Local(Account) | Federated(Account) | Failure(Err)
type AuthOutcome struct {
	Kind     OutcomeKind
	Account  *Account
	Provider string // set for OutcomeFederated
	Err      error  // set for OutcomeFailure
}

func LocalOutcome(account *Account) AuthOutcome {
	return AuthOutcome{Kind: OutcomeLocal, Account: account}
}

func FederatedOutcome(provider string, account *Account) AuthOutcome {
	return AuthOutcome{Kind: OutcomeFederated, Account: account, Provider: provider}
}

func FailureOutcome(err error) AuthOutcome {
	return AuthOutcome{Kind: OutcomeFailure, Err: err}
}
