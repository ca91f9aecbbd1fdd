package factors

import (
	"time"

	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

// transferRecency bounds how far back squad movement still unsettles a team.
const transferRecency = 180 * 24 * time.Hour

func (e *Engine) injuries(b matchdata.Bundle) factorResult {
	if b.Home.Injuries == nil && b.Away.Injuries == nil {
		return e.imputed("injuries", "injury lists unavailable")
	}

	home := len(b.Home.Injuries)
	away := len(b.Away.Injuries)
	// More absentees on the away side favors home. Five players out is
	// treated as a full squad crisis.
	value := clamp(float64(away-home)/5, -1, 1)
	return computed(value, "%d home vs %d away players unavailable", home, away)
}

func (e *Engine) transferImpact(b matchdata.Bundle) factorResult {
	if b.Home.Transfers == nil && b.Away.Transfers == nil {
		return e.imputed("transfer_impact", "transfer activity unavailable")
	}

	homeNet := netTransfers(b.Home.Transfers, b.AsOf)
	awayNet := netTransfers(b.Away.Transfers, b.AsOf)
	value := clamp(float64(homeNet-awayNet)/5, -1, 1)
	return computed(value, "net signings %+d vs %+d in window", homeNet, awayNet)
}

func (e *Engine) squadExperience(b matchdata.Bundle) factorResult {
	homeExp, okHome := experienceScore(b.Home, b.AsOf)
	awayExp, okAway := experienceScore(b.Away, b.AsOf)
	if !okHome || !okAway {
		return e.imputed("squad_experience", "club profile unavailable")
	}

	value := clamp(homeExp-awayExp, -1, 1)
	return computed(value, "institutional experience %.2f vs %.2f", homeExp, awayExp)
}

func (e *Engine) tacticalMatchup(b matchdata.Bundle) factorResult {
	home, away := b.Home.Standing, b.Away.Standing
	if home == nil || away == nil || home.Played == 0 || away.Played == 0 {
		return e.imputed("tactical_matchup", "season stats unavailable")
	}

	homeAttack := float64(home.GoalsFor) / float64(home.Played)
	homeLeak := float64(home.GoalsAgainst) / float64(home.Played)
	awayAttack := float64(away.GoalsFor) / float64(away.Played)
	awayLeak := float64(away.GoalsAgainst) / float64(away.Played)

	// Home attack against away defence, minus the reverse matchup.
	value := clamp(((homeAttack-awayLeak)-(awayAttack-homeLeak))/4, -1, 1)
	return computed(value, "attack/leak per game %.2f/%.2f vs %.2f/%.2f",
		homeAttack, homeLeak, awayAttack, awayLeak)
}

func netTransfers(transfers []matchdata.Transfer, asOf time.Time) int {
	net := 0
	for _, t := range transfers {
		if t.Date.After(asOf) || asOf.Sub(t.Date) > transferRecency {
			continue
		}
		if t.Incoming {
			net++
		} else {
			net--
		}
	}
	return net
}

// experienceScore proxies squad pedigree from club age and stadium size,
// the only stable signals the provider exposes without per-player data.
func experienceScore(team matchdata.TeamSnapshot, asOf time.Time) (float64, bool) {
	if team.Founded == 0 && team.VenueCapacity == 0 {
		return 0, false
	}

	score := 0.0
	if team.Founded > 0 {
		age := float64(asOf.Year() - team.Founded)
		score += clamp(age/100, 0, 1) * 0.5
	}
	if team.VenueCapacity > 0 {
		score += clamp(float64(team.VenueCapacity)/60000, 0, 1) * 0.5
	}
	return score, true
}
