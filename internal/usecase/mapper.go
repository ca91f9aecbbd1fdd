package usecase

import (
	"strconv"
	"time"

	"github.com/tahminlab/matchcast/external/footballapi"
	"github.com/tahminlab/matchcast/internal/domain/matchdata"
)

func applyTeamInfo(snapshot *matchdata.TeamSnapshot, info footballapi.TeamInfo) {
	snapshot.Name = info.Team.Name
	snapshot.Country = info.Team.Country
	snapshot.Founded = info.Team.Founded
	snapshot.VenueCapacity = info.Venue.Capacity
}

func standingFor(rows []footballapi.StandingRow, teamID int64) *matchdata.Standing {
	for _, row := range rows {
		if row.Team.ID != teamID {
			continue
		}
		return &matchdata.Standing{
			Rank:         row.Rank,
			Points:       row.Points,
			Played:       row.All.Played,
			Wins:         row.All.Win,
			Draws:        row.All.Draw,
			Losses:       row.All.Lose,
			GoalsFor:     row.All.Goals.For,
			GoalsAgainst: row.All.Goals.Against,
			Form:         row.Form,
			TableSize:    len(rows),
		}
	}
	return nil
}

// pastMatches keeps only finished fixtures with a final score.
func pastMatches(items []footballapi.FixtureItem) []matchdata.PastMatch {
	out := make([]matchdata.PastMatch, 0, len(items))
	for _, item := range items {
		if !item.Finished() || item.Goals.Home == nil || item.Goals.Away == nil {
			continue
		}
		kickoff, err := time.Parse(time.RFC3339, item.Fixture.Date)
		if err != nil {
			continue
		}
		out = append(out, matchdata.PastMatch{
			FixtureID:  item.Fixture.ID,
			LeagueID:   item.League.ID,
			HomeTeamID: item.Teams.Home.ID,
			AwayTeamID: item.Teams.Away.ID,
			GoalsHome:  *item.Goals.Home,
			GoalsAway:  *item.Goals.Away,
			KickoffAt:  kickoff,
		})
	}
	return out
}

func injuries(items []footballapi.InjuryItem) []matchdata.Injury {
	out := make([]matchdata.Injury, 0, len(items))
	for _, item := range items {
		out = append(out, matchdata.Injury{
			PlayerID:   item.Player.ID,
			PlayerName: item.Player.Name,
			Type:       item.Player.Type,
			Reason:     item.Player.Reason,
		})
	}
	return out
}

// transfers flattens the provider's per-player history into movements seen
// from the given team's perspective.
func transfers(items []footballapi.TransferItem, teamID int64) []matchdata.Transfer {
	out := make([]matchdata.Transfer, 0, len(items))
	for _, item := range items {
		for _, move := range item.Transfers {
			var incoming bool
			switch teamID {
			case move.Teams.In.ID:
				incoming = true
			case move.Teams.Out.ID:
				incoming = false
			default:
				continue
			}
			date, err := time.Parse("2006-01-02", move.Date)
			if err != nil {
				continue
			}
			out = append(out, matchdata.Transfer{
				PlayerID: item.Player.ID,
				Date:     date,
				Incoming: incoming,
			})
		}
	}
	return out
}

// upcomingFixture finds the next not-yet-finished meeting of the pair in the
// league calendar.
func upcomingFixture(items []footballapi.FixtureItem, homeID, awayID int64, asOf time.Time) (int64, time.Time, bool) {
	var bestID int64
	var bestKickoff time.Time
	for _, item := range items {
		if item.Finished() {
			continue
		}
		if item.Teams.Home.ID != homeID || item.Teams.Away.ID != awayID {
			continue
		}
		kickoff, err := time.Parse(time.RFC3339, item.Fixture.Date)
		if err != nil || kickoff.Before(asOf) {
			continue
		}
		if bestID == 0 || kickoff.Before(bestKickoff) {
			bestID = item.Fixture.ID
			bestKickoff = kickoff
		}
	}
	return bestID, bestKickoff, bestID != 0
}

// matchOdds converts the first bookmaker's match-winner prices into implied
// probabilities. The overround stays in; the factor engine normalizes.
func matchOdds(items []footballapi.OddsItem) *matchdata.MatchOdds {
	for _, item := range items {
		for _, bookmaker := range item.Bookmakers {
			for _, bet := range bookmaker.Bets {
				if bet.Name != "Match Winner" {
					continue
				}
				odds := matchdata.MatchOdds{}
				seen := 0
				for _, value := range bet.Values {
					price, err := strconv.ParseFloat(value.Odd, 64)
					if err != nil || price <= 1.0 {
						continue
					}
					implied := 1.0 / price
					switch value.Value {
					case "Home":
						odds.Home = implied
						seen++
					case "Draw":
						odds.Draw = implied
						seen++
					case "Away":
						odds.Away = implied
						seen++
					}
				}
				if seen == 3 {
					return &odds
				}
			}
		}
	}
	return nil
}
