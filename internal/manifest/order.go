package manifest

import (
	"sort"
)

// PublishOrder returns the publishable (non-private) packages of pkgs ordered
// so that each comes after the workspace packages it depends on. Packages that
// are ready at the same time are ordered by path. Only edges between
// publishable packages count.
//
// A cycle does not fail: the package with the smallest path among those still
// waiting is released early, and its name is returned in broken.
func PublishOrder(pkgs []Package) (order []Package, broken []string) {
	var pub []Package
	for _, p := range pkgs {
		if !p.Private() {
			pub = append(pub, p)
		}
	}

	byName := make(map[string]int, len(pub))
	for i, p := range pub {
		if n := p.Name(); n != "" {
			byName[n] = i
		}
	}

	indegree := make([]int, len(pub))
	dependents := make([][]int, len(pub))
	for i, p := range pub {
		for _, dep := range p.DependencyNames() {
			j, ok := byName[dep]
			if !ok || j == i {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	done := make([]bool, len(pub))
	var ready []int
	for i := range pub {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order = make([]Package, 0, len(pub))
	for len(order) < len(pub) {
		if len(ready) == 0 {
			next := -1
			for i := range pub {
				if !done[i] && (next < 0 || pub[i].Path < pub[next].Path) {
					next = i
				}
			}
			broken = append(broken, pub[next].Name())
			indegree[next] = 0
			ready = append(ready, next)
		}
		sort.Slice(ready, func(a, b int) bool { return pub[ready[a]].Path < pub[ready[b]].Path })
		i := ready[0]
		ready = ready[1:]
		done[i] = true
		order = append(order, pub[i])
		for _, d := range dependents[i] {
			if done[d] {
				continue
			}
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return order, broken
}
