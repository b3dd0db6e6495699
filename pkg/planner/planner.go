package planner

import (
	"fmt"

	"github.com/duke-git/lancet/v2/slice"

	"github.com/screa/king-claimer/pkg/types"
)

// RequiredProxies returns how many proxies n items need at k items per proxy
func RequiredProxies(n, k int) int {
	if k < 1 {
		return n
	}
	return (n + k - 1) / k
}

// Assign pins every item to a proxy. Items are taken in input order in
// groups of accountsPerProxy and group g uses proxies[g], so item i always
// lands on proxies[i/accountsPerProxy]. The result keeps input order.
func Assign(items []types.WorkItem, proxies []types.Proxy, accountsPerProxy int) ([]types.Assignment, error) {
	if accountsPerProxy < 1 {
		return nil, &types.ConfigurationError{Op: "assign proxies", Err: types.ErrInvalidAccountsPerProxy}
	}

	required := RequiredProxies(len(items), accountsPerProxy)
	if len(proxies) < required {
		return nil, &types.ConfigurationError{
			Op:  "assign proxies",
			Err: fmt.Errorf("%w: have %d, need %d", types.ErrInsufficientProxies, len(proxies), required),
		}
	}

	assignments := make([]types.Assignment, 0, len(items))
	for group, chunk := range slice.Chunk(items, accountsPerProxy) {
		for _, item := range chunk {
			assignments = append(assignments, types.Assignment{Item: item, Proxy: proxies[group]})
		}
	}
	return assignments, nil
}
