package query

import "graphrag/internal/errs"

// modeDisabledErr reports a query mode that was requested but not wired up
// (e.g. naive mode with no chunks vector store configured). It classifies
// as ContractViolation, which the HTTP layer maps to 400.
func modeDisabledErr(msg string) error {
	return errs.New(errs.ContractViolation, "query", msg)
}
