package ingestion

import "PaperFolio/internal/event"

// SubjectConfig maps one NATS subject to a stream message kind.
type SubjectConfig struct {
	Subject string
	Kind    event.Kind
}

const subjectPrefix = "paper.stream."

// DefaultSubjects returns the standard subject table. Each kind has its own
// subject so consumers can filter server-side.
func DefaultSubjects() []SubjectConfig {
	kinds := []event.Kind{
		event.KindInitialPortfolioData,
		event.KindPortfolioUpdate,
		event.KindPositionsUpdate,
		event.KindTradeExecuted,
		event.KindBalanceUpdate,
		event.KindPositionUpdate,
		event.KindMarkPriceUpdate,
	}

	subjects := make([]SubjectConfig, 0, len(kinds))
	for _, k := range kinds {
		subjects = append(subjects, SubjectConfig{
			Subject: subjectPrefix + k.String(),
			Kind:    k,
		})
	}
	return subjects
}

// SubjectFor returns the stream subject carrying the given kind.
func SubjectFor(k event.Kind) string {
	return subjectPrefix + k.String()
}
