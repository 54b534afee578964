package consumer

// Outcome is the settlement the worker asks the broker to apply.
type Outcome int

const (
	// Complete removes the message from the queue.
	Complete Outcome = iota
	// Abandon returns the message for redelivery and bumps its delivery count.
	Abandon
	// DeadLetter moves the message to the dead-letter queue without retry.
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case Abandon:
		return "abandon"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

const ReasonDeserializationFailed = "DeserializationFailed"

// Verdict is the result of deciding a single message.
type Verdict struct {
	Outcome     Outcome
	Reason      string
	Description string

	// TouchedProducts lists the products whose stock was committed. It is
	// only set for Complete.
	TouchedProducts []int
}

func completed(touched []int) Verdict {
	return Verdict{Outcome: Complete, TouchedProducts: touched}
}

func abandoned(description string) Verdict {
	return Verdict{Outcome: Abandon, Description: description}
}

func deadLettered(reason, description string) Verdict {
	return Verdict{Outcome: DeadLetter, Reason: reason, Description: description}
}
