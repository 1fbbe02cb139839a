package scoring

import "github.com/stitts-dev/fpl-squad-optimizer/internal/models"

// Derived metric names
const (
	MetricStrengthAttack      = "team_strength_attack"
	MetricStrengthDefence     = "team_strength_defence"
	MetricStrengthOverall     = "team_strength_overall"
	MetricTransfersInOut      = "transfers_in_out"
	MetricTransfersInOutEvent = "transfers_in_out_event"
)

// DeriveMetrics returns copies of players with the combined team-strength
// and net-transfer metrics added. Source metrics are left in place.
func DeriveMetrics(players []models.Player) []models.Player {
	out := make([]models.Player, len(players))
	for i, p := range players {
		derived := map[string]float64{
			MetricStrengthAttack:  mean(p.Metric(models.MetricStrengthAttackHome), p.Metric(models.MetricStrengthAttackAway)),
			MetricStrengthDefence: mean(p.Metric(models.MetricStrengthDefHome), p.Metric(models.MetricStrengthDefAway)),
			MetricStrengthOverall: mean(p.Metric(models.MetricStrengthAllHome), p.Metric(models.MetricStrengthAllAway)),
			MetricTransfersInOut:  p.Metric(models.MetricTransfersIn) - p.Metric(models.MetricTransfersOut),
			MetricTransfersInOutEvent: p.Metric(models.MetricTransfersInEvent) -
				p.Metric(models.MetricTransfersOutEvent),
		}

		metrics := make(map[string]float64, len(p.Metrics)+len(derived))
		for k, v := range p.Metrics {
			metrics[k] = v
		}
		for k, v := range derived {
			metrics[k] = v
		}
		p.Metrics = metrics
		out[i] = p
	}
	return out
}

func mean(a, b float64) float64 {
	return (a + b) / 2
}
