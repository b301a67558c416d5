package scope

import "github.com/wippyai/cppsim/types"

// BestOverload picks the candidate whose parameters accept args with the best
// conversions. A candidate is better than another when none of its ranks is
// worse and at least one is better. Ambiguous reports a tie between the
// best viable candidates; ok is false when nothing is viable.
func BestOverload(candidates []Function, args []types.Type) (best Function, ambiguous, ok bool) {
	var bestRanks []types.Rank
	tied := false

	for _, f := range candidates {
		params := f.Signature().Params
		if len(params) != len(args) {
			continue
		}
		ranks := make([]types.Rank, len(args))
		viable := true
		for i := range args {
			ranks[i] = types.ConversionRank(args[i], params[i])
			if ranks[i] == types.RankNone {
				viable = false
				break
			}
		}
		if !viable {
			continue
		}
		if best == nil {
			best, bestRanks = f, ranks
			continue
		}
		switch compareRanks(ranks, bestRanks) {
		case 1:
			best, bestRanks, tied = f, ranks, false
		case 0:
			tied = true
		}
	}
	if best == nil {
		return nil, false, false
	}
	return best, tied, true
}

// compareRanks returns 1 when a is strictly better than b, -1 when b is
// strictly better and 0 otherwise.
func compareRanks(a, b []types.Rank) int {
	better, worse := false, false
	for i := range a {
		switch {
		case a[i] > b[i]:
			better = true
		case a[i] < b[i]:
			worse = true
		}
	}
	switch {
	case better && !worse:
		return 1
	case worse && !better:
		return -1
	}
	return 0
}
