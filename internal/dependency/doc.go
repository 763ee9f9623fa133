// Package dependency orders executable test suites by their declared
// dependencies.
//
// Projects name the suites they depend on through the etf.dependency.ids
// property. The catalog feeds those edges into a Graph so a host can run
// dependencies first and reject a selection whose dependencies are unknown
// or circular.
//
//	g := dependency.New()
//	g.AddNode(dependency.Node{ID: "base"})
//	g.AddNode(dependency.Node{ID: "wfs", DependsOn: []dependency.NodeID{"base"}})
//	order, err := g.TopologicalSort("wfs")
//	// order: [base wfs]
//
// Errors are *CycleError and *MissingError.
package dependency
