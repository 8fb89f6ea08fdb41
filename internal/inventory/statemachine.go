// internal/inventory/statemachine.go
package inventory

import "fmt"

// transition events driving the issuance state machine. Guards that depend
// on anything beyond the current status (ownership, due dates) live in the
// service methods; this table is the single source of truth for which
// status moves are legal at all.
type transitionEvent string

const (
	eventRequestExtension transitionEvent = "request_extension"
	eventApproveExtension transitionEvent = "approve_extension"
	eventDenyExtension    transitionEvent = "deny_extension"
	eventInitiateReturn   transitionEvent = "initiate_return"
	eventProcessReturn    transitionEvent = "process_return"
	eventConfiscate       transitionEvent = "confiscate"
)

type transitionKey struct {
	from  string
	event transitionEvent
}

var transitions = map[transitionKey]string{
	{StatusIssued, eventRequestExtension}: StatusExtensionRequested,
	{StatusIssued, eventConfiscate}:       StatusConfiscated,
	{StatusIssued, eventProcessReturn}:    StatusReturned,
	{StatusIssued, eventInitiateReturn}:   StatusReturnPending,

	// EXTENDED behaves like ISSUED for extension, confiscation and return.
	{StatusExtended, eventRequestExtension}: StatusExtensionRequested,
	{StatusExtended, eventConfiscate}:       StatusConfiscated,
	{StatusExtended, eventProcessReturn}:    StatusReturned,
	{StatusExtended, eventInitiateReturn}:   StatusReturnPending,

	{StatusExtensionRequested, eventApproveExtension}: StatusExtended,
	{StatusExtensionRequested, eventDenyExtension}:    StatusIssued,

	{StatusReturnPending, eventProcessReturn}: StatusReturned,
}

// nextStatus returns the status an issuance moves to when event fires, or
// ErrInvalidIssuanceState when the transition is not in the table. RETURNED
// and CONFISCATED are terminal: no key leads out of them.
func nextStatus(from string, event transitionEvent) (string, error) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidIssuanceState, event, from)
	}
	return to, nil
}
