package stats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/guildboard/internal/domain/model"
	"github.com/okian/guildboard/internal/domain/scoring"
)

type profilesResponse struct {
	Success  bool      `json:"success"`
	Cause    string    `json:"cause"`
	Profiles []profile `json:"profiles"`
}

type profile struct {
	ProfileID string                     `json:"profile_id"`
	Selected  bool                       `json:"selected"`
	Members   map[string]json.RawMessage `json:"members"`
}

type member struct {
	Slayer *struct {
		Bosses map[string]map[string]json.RawMessage `json:"slayer_bosses"`
	} `json:"slayer"`
	Dungeons *struct {
		Types map[string]dungeonType `json:"dungeon_types"`
	} `json:"dungeons"`
}

type dungeonType struct {
	TimesPlayed     map[string]float64 `json:"times_played"`
	TierCompletions map[string]float64 `json:"tier_completions"`
}

const (
	attemptsPrefix = "boss_attempts_tier_"
	killsPrefix    = "boss_kills_tier_"
	maxSlayerTier  = 4
	maxFloor       = 7
)

// selectedMember finds the player's section in their selected profile.
func selectedMember(resp profilesResponse, memberKey string) (string, member, error) {
	var chosen *profile
	for i := range resp.Profiles {
		if resp.Profiles[i].Selected {
			chosen = &resp.Profiles[i]
			break
		}
	}
	if chosen == nil {
		return "", member{}, fmt.Errorf("no selected profile: %w", ErrNotFound)
	}
	raw, ok := chosen.Members[memberKey]
	if !ok {
		return "", member{}, fmt.Errorf("player missing from profile %s: %w", chosen.ProfileID, ErrNotFound)
	}
	var m member
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", member{}, fmt.Errorf("decode member: %v: %w", err, ErrTransient)
	}
	return chosen.ProfileID, m, nil
}

// slayerSnapshot reads per-tier attempts and kills of every known boss.
// Bosses and tiers the scoring catalog does not know are skipped.
func slayerSnapshot(profileID string, m member, at time.Time) *model.Snapshot {
	s := model.NewSnapshot(profileID, at)
	if m.Slayer == nil {
		return s
	}
	known := make(map[string]bool, len(scoring.SlayerBosses))
	for _, b := range scoring.SlayerBosses {
		known[b] = true
	}
	for boss, fields := range m.Slayer.Bosses {
		if !known[boss] {
			continue
		}
		for key, raw := range fields {
			var prefix string
			switch {
			case strings.HasPrefix(key, attemptsPrefix):
				prefix = attemptsPrefix
			case strings.HasPrefix(key, killsPrefix):
				prefix = killsPrefix
			default:
				continue
			}
			tier, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
			if err != nil || tier < 0 || tier > maxSlayerTier {
				continue
			}
			var n float64
			if err := json.Unmarshal(raw, &n); err != nil {
				continue
			}
			c := s.Get(boss, tier)
			if prefix == attemptsPrefix {
				c.Attempts = int64(n)
			} else {
				c.Kills = int64(n)
			}
			s.Set(boss, tier, c)
		}
	}
	return s
}

// dungeonSnapshot reads runs and completions per floor of normal and master catacombs.
func dungeonSnapshot(profileID string, m member, at time.Time) *model.Snapshot {
	s := model.NewSnapshot(profileID, at)
	if m.Dungeons == nil {
		return s
	}
	for _, category := range []string{scoring.CategoryCatacombs, scoring.CategoryMasterCatacombs} {
		dt, ok := m.Dungeons.Types[category]
		if !ok {
			continue
		}
		minFloor := 0
		if category == scoring.CategoryMasterCatacombs {
			minFloor = 1
		}
		floors := map[int]model.Counters{}
		for key, n := range dt.TimesPlayed {
			if f, err := strconv.Atoi(key); err == nil && f >= minFloor && f <= maxFloor {
				c := floors[f]
				c.Attempts = int64(n)
				floors[f] = c
			}
		}
		for key, n := range dt.TierCompletions {
			if f, err := strconv.Atoi(key); err == nil && f >= minFloor && f <= maxFloor {
				c := floors[f]
				c.Kills = int64(n)
				floors[f] = c
			}
		}
		for f, c := range floors {
			s.Set(category, f, c)
		}
	}
	return s
}
