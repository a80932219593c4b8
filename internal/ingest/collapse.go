package ingest

import (
	"slices"
	"strings"

	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/normalize"
)

// lastWins collapses items sharing a key into one, at the position of the
// first occurrence with the value of the last. Items with an empty key are
// kept as they are.
func lastWins[T any](items []T, key func(T) string) []T {
	out := make([]T, 0, len(items))
	pos := make(map[string]int, len(items))
	for _, it := range items {
		k := key(it)
		if k == "" {
			out = append(out, it)
			continue
		}
		if i, ok := pos[k]; ok {
			out[i] = it
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out
}

func partyKey(p model.Party) string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return "id:" + id
	}
	if name := normalize.Text(p.Name); name != nil {
		return "name:" + *name
	}
	return ""
}

// mergeParties collapses repeated parties. The last occurrence supplies the
// identity; roles from every occurrence are kept.
func mergeParties(parties []model.Party) []model.Party {
	roles := make(map[string][]string, len(parties))
	for _, p := range parties {
		k := partyKey(p)
		if k == "" {
			continue
		}
		for _, r := range p.Roles {
			if !slices.Contains(roles[k], r) {
				roles[k] = append(roles[k], r)
			}
		}
	}
	out := lastWins(parties, partyKey)
	for i := range out {
		if k := partyKey(out[i]); k != "" {
			out[i].Roles = roles[k]
		}
	}
	return out
}

// mergeTransactions collapses repeated transactions. A winner without a
// contract takes the contract of an earlier occurrence.
func mergeTransactions(txns []model.Transaction) []model.Transaction {
	contracts := make(map[string]string, len(txns))
	for _, t := range txns {
		if id := strings.TrimSpace(t.ID); id != "" && strings.TrimSpace(t.ContractID) != "" {
			contracts[id] = t.ContractID
		}
	}
	out := lastWins(txns, func(t model.Transaction) string { return strings.TrimSpace(t.ID) })
	for i := range out {
		if strings.TrimSpace(out[i].ContractID) == "" {
			out[i].ContractID = contracts[strings.TrimSpace(out[i].ID)]
		}
	}
	return out
}
