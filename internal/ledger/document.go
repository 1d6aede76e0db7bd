package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"sabot-go/internal/sabot"
)

const (
	seenSuffix  = "_posts"
	mediaKey    = "media_mapping"
	accountsKey = "accounts"
)

// Keys written by earlier versions of the bot, mapped to current platforms.
var legacySeenKeys = map[string]sabot.Platform{
	"x_posts":           sabot.Microblog,
	"instagram_posts":   sabot.PhotoPost,
	"instagram_stories": sabot.PhotoStory,
}

// document is the persisted ledger:
//
//	{
//	  "<platform>_posts": ["id", ...],
//	  "media_mapping": {"<platform>": {"<account>": {"<id>": ["path", ...]}}},
//	  "accounts": {"<platform>": ["account", ...]}
//	}
type document struct {
	Seen     map[sabot.Platform][]string
	Media    map[sabot.Platform]map[string]map[string][]string
	Accounts map[sabot.Platform][]string
}

func newDocument() *document {
	return &document{
		Seen:     make(map[sabot.Platform][]string),
		Media:    make(map[sabot.Platform]map[string]map[string][]string),
		Accounts: make(map[sabot.Platform][]string),
	}
}

func (d *document) clone() *document {
	c := newDocument()
	for p, ids := range d.Seen {
		c.Seen[p] = slices.Clone(ids)
	}
	for p, accounts := range d.Accounts {
		c.Accounts[p] = slices.Clone(accounts)
	}
	for p, byAccount := range d.Media {
		ca := make(map[string]map[string][]string, len(byAccount))
		for a, byID := range byAccount {
			ci := make(map[string][]string, len(byID))
			for id, paths := range byID {
				ci[id] = slices.Clone(paths)
			}
			ca[a] = ci
		}
		c.Media[p] = ca
	}
	return c
}

// dropMedia deletes one mapping and prunes emptied levels. It reports
// whether anything was removed.
func (d *document) dropMedia(platform sabot.Platform, account, contentID string) bool {
	byID := d.Media[platform][account]
	if _, ok := byID[contentID]; !ok {
		return false
	}
	delete(byID, contentID)
	if len(byID) == 0 {
		delete(d.Media[platform], account)
	}
	if len(d.Media[platform]) == 0 {
		delete(d.Media, platform)
	}
	return true
}

func (d *document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Seen)+2)
	for p, ids := range d.Seen {
		if ids == nil {
			ids = []string{}
		}
		out[string(p)+seenSuffix] = ids
	}
	out[mediaKey] = d.Media
	out[accountsKey] = d.Accounts
	return json.Marshal(out)
}

// UnmarshalJSON decodes each section independently. A section that fails
// to decode is left empty and reported in the returned error, which the
// caller treats as a warning.
func (d *document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fresh := newDocument()
	var bad []string
	for key, value := range raw {
		switch {
		case key == mediaKey:
			var media map[sabot.Platform]map[string]map[string][]string
			if err := json.Unmarshal(value, &media); err != nil {
				bad = append(bad, key)
				continue
			}
			for p, byAccount := range media {
				if byAccount != nil {
					fresh.Media[p] = byAccount
				}
			}
		case key == accountsKey:
			var accounts map[sabot.Platform][]string
			if err := json.Unmarshal(value, &accounts); err != nil {
				bad = append(bad, key)
				continue
			}
			for p, list := range accounts {
				fresh.Accounts[p] = dedup(append(fresh.Accounts[p], list...))
			}
		default:
			p, ok := legacySeenKeys[key]
			if !ok {
				name, isSeen := strings.CutSuffix(key, seenSuffix)
				if !isSeen {
					continue
				}
				p = sabot.Platform(name)
			}
			var ids []string
			if err := json.Unmarshal(value, &ids); err != nil {
				bad = append(bad, key)
				continue
			}
			fresh.Seen[p] = dedup(append(fresh.Seen[p], ids...))
		}
	}

	*d = *fresh
	if len(bad) > 0 {
		slices.Sort(bad)
		return &sectionError{sections: bad}
	}
	return nil
}

// sectionError reports sections that were reset to empty while loading.
type sectionError struct {
	sections []string
}

func (e *sectionError) Error() string {
	return fmt.Sprintf("malformed ledger sections reset: %s", strings.Join(e.sections, ", "))
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
