// Package allocation apportions limited, time-varying water supply among
// competing consumers ranked by priority.
//
// A subnetwork's physical graph is first collapsed into a minimal allocation
// graph whose nodes are only sources, basins, users and junctions (Reduce).
// From that graph a linear program is built once (BuildModel); every
// allocation interval only its right-hand sides are rewritten with fresh
// demands, measured source supplies and basin targets before the solve
// (Allocator.Run). A Coordinator orders the solves of multiple subnetworks
// that share one primary network as their upstream supplier.
package allocation
