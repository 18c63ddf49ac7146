package certification

import (
	"fmt"

	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/utils"
)

// Mode selects the aggregation key of the bonus computation.
type Mode string

const (
	// ModeGrower aggregates commercial weight and certification per grower
	ModeGrower Mode = "grower"
	// ModeTicket aggregates per delivery ticket
	ModeTicket Mode = "ticket"
)

// KeyStrategy decides which key weight and certification rows are joined on.
type KeyStrategy interface {
	Mode() Mode
	WeightKey(w domain.WeightRecord) string
	CertificationKey(c domain.CertificationRecord) string
}

// StrategyFor returns the key strategy of a mode. An empty mode means grower.
func StrategyFor(mode Mode) (KeyStrategy, error) {
	switch mode {
	case "", ModeGrower:
		return growerKeys{}, nil
	case ModeTicket:
		return ticketKeys{}, nil
	default:
		return nil, fmt.Errorf("unknown certification aggregation mode %q", mode)
	}
}

type growerKeys struct{}

func (growerKeys) Mode() Mode { return ModeGrower }

func (growerKeys) WeightKey(w domain.WeightRecord) string { return utils.NormalizeKey(w.GrowerID) }

func (growerKeys) CertificationKey(c domain.CertificationRecord) string {
	return utils.NormalizeKey(c.GrowerID)
}

type ticketKeys struct{}

func (ticketKeys) Mode() Mode { return ModeTicket }

func (ticketKeys) WeightKey(w domain.WeightRecord) string { return utils.NormalizeKey(w.Ticket) }

func (ticketKeys) CertificationKey(c domain.CertificationRecord) string {
	return utils.NormalizeKey(c.Ticket)
}
