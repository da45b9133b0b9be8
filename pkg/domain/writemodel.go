package domain

import "time"

// WriteModel is the transient fold of one aggregate's events used during
// command handling. Aggregate-specific write models embed it and implement
// Reduce over their known event types; unknown types are skipped so old
// binaries survive new events.
type WriteModel struct {
	AggregateID   string
	InstanceID    string
	ResourceOwner string

	// ProcessedSequence is the aggregate version of the last reduced event.
	ProcessedSequence uint64
	ChangeDate        time.Time

	// Events is the buffer of loaded-but-not-yet-reduced events.
	Events []*Event
}

// AppendEvents buffers events for the next Reduce call.
func (wm *WriteModel) AppendEvents(events ...*Event) {
	wm.Events = append(wm.Events, events...)
}

// Reduce folds the buffered events into the base fields and clears the
// buffer. Embedding write models call it at the end of their own Reduce.
func (wm *WriteModel) Reduce() error {
	for _, event := range wm.Events {
		if wm.AggregateID == "" {
			wm.AggregateID = event.AggregateID
		}
		if wm.InstanceID == "" {
			wm.InstanceID = event.InstanceID
		}
		if wm.ResourceOwner == "" {
			wm.ResourceOwner = event.Owner
		}
		wm.ProcessedSequence = event.AggregateVersion
		wm.ChangeDate = event.CreatedAt
	}
	wm.Events = wm.Events[0:0]
	return nil
}

// ObjectDetails is the aggregate summary returned by every command.
type ObjectDetails struct {
	// Sequence is the aggregate version after the command's events.
	Sequence uint64

	// EventDate is the creation date of the last event.
	EventDate time.Time

	ResourceOwner string
}

// WriteModelToObjectDetails converts a reduced write model into the summary
// returned to the caller.
func WriteModelToObjectDetails(wm *WriteModel) *ObjectDetails {
	return &ObjectDetails{
		Sequence:      wm.ProcessedSequence,
		EventDate:     wm.ChangeDate,
		ResourceOwner: wm.ResourceOwner,
	}
}
