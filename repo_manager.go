package clubhouse

import (
	"github.com/goliatone/go-repository-bun"
)

// RepositoryManager bundles the stores the orchestrator needs, plus the
// transaction hook that lets sign-up flip an invite and create the member in
// one unit.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Members() Members
	Invites() Invites
	VerificationCodes() VerificationCodes
}
