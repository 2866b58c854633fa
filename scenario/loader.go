package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mlefebvre/hydronet/core/allocation"
	"github.com/mlefebvre/hydronet/core/model"
)

// DemandDef is one priority's demand series of a user node. With a single
// value and no times the demand is constant.
type DemandDef struct {
	Priority int       `yaml:"priority"`
	Times    []float64 `yaml:"times,omitempty"`
	Values   []float64 `yaml:"values"`
}

// NodeDef describes one physical node.
type NodeDef struct {
	ID           int         `yaml:"id"`
	Type         string      `yaml:"type"`
	Name         string      `yaml:"name,omitempty"`
	Subnetwork   int         `yaml:"subnetwork,omitempty"`
	MaxFlowRate  *float64    `yaml:"max_flow_rate,omitempty"`
	ReturnFactor float64     `yaml:"return_factor,omitempty"`
	Demands      []DemandDef `yaml:"demands,omitempty"`
}

// ToModel converts the definition into a physical node.
func (d NodeDef) ToModel() (*model.Node, error) {
	typ, err := model.ParseNodeType(d.Type)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", d.ID, err)
	}
	n := model.NewNode(model.NodeID(d.ID), typ)
	n.Name = d.Name
	n.Subnetwork = model.SubnetworkID(d.Subnetwork)
	n.ReturnFactor = d.ReturnFactor
	if d.MaxFlowRate != nil {
		n.MaxFlowRate = *d.MaxFlowRate
	}
	for _, dd := range d.Demands {
		var s model.Series
		if len(dd.Times) == 0 && len(dd.Values) == 1 {
			s = model.Constant(dd.Values[0])
		} else {
			s = model.Series{Times: dd.Times, Values: dd.Values}
			if err := s.Validate(); err != nil {
				return nil, fmt.Errorf("node %d priority %d: %w", d.ID, dd.Priority, err)
			}
		}
		n.Demands = append(n.Demands, model.DemandSeries{Priority: dd.Priority, Demand: s})
	}
	return n, nil
}

// EdgeDef describes one physical edge.
type EdgeDef struct {
	ID     int  `yaml:"id"`
	From   int  `yaml:"from"`
	To     int  `yaml:"to"`
	Source bool `yaml:"source,omitempty"`
}

// SubnetworkDef describes one subnetwork; its member nodes are the nodes
// tagged with its id.
type SubnetworkDef struct {
	ID          int     `yaml:"id"`
	Name        string  `yaml:"name"`
	Primary     bool    `yaml:"primary,omitempty"`
	Interval    float64 `yaml:"interval"`
	SourceEdges []int   `yaml:"source_edges"`
}

// IntervalDef carries the external per-interval scalars.
type IntervalDef struct {
	Time        float64         `yaml:"time"`
	SourceFlow  map[int]float64 `yaml:"source_flow,omitempty"`
	BasinTarget map[int]float64 `yaml:"basin_target,omitempty"`
	UserFlow    map[int]float64 `yaml:"user_flow,omitempty"`
}

// Scenario is a recorded allocation run: a network, its subnetworks and the
// forcing of each allocation interval.
type Scenario struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Priorities  []int           `yaml:"priorities"`
	Nodes       []NodeDef       `yaml:"nodes"`
	Edges       []EdgeDef       `yaml:"edges"`
	Subnetworks []SubnetworkDef `yaml:"subnetworks"`
	Intervals   []IntervalDef   `yaml:"intervals"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Priorities) == 0 {
		return nil, fmt.Errorf("scenario %s: no priorities", sc.Name)
	}
	return &sc, nil
}

// Build converts the definitions into the physical network and subnetworks.
func (sc *Scenario) Build() (*model.Network, []model.Subnetwork, error) {
	nw := model.NewNetwork()
	for _, nd := range sc.Nodes {
		n, err := nd.ToModel()
		if err != nil {
			return nil, nil, err
		}
		if err := nw.AddNode(n); err != nil {
			return nil, nil, err
		}
	}
	for _, ed := range sc.Edges {
		e := &model.Edge{
			ID:         model.EdgeID(ed.ID),
			From:       model.NodeID(ed.From),
			To:         model.NodeID(ed.To),
			SourceEdge: ed.Source,
		}
		if err := nw.AddEdge(e); err != nil {
			return nil, nil, err
		}
	}

	var subs []model.Subnetwork
	for _, sd := range sc.Subnetworks {
		sub := model.Subnetwork{
			ID:       model.SubnetworkID(sd.ID),
			Name:     sd.Name,
			Primary:  sd.Primary,
			Interval: sd.Interval,
		}
		for _, nd := range sc.Nodes {
			if nd.Subnetwork == sd.ID {
				sub.Nodes = append(sub.Nodes, model.NodeID(nd.ID))
			}
		}
		for _, eid := range sd.SourceEdges {
			sub.SourceEdges = append(sub.SourceEdges, model.EdgeID(eid))
		}
		if err := sub.Validate(nw); err != nil {
			return nil, nil, err
		}
		subs = append(subs, sub)
	}
	return nw, subs, nil
}

// Forcings converts the interval definitions into engine forcing records.
func (sc *Scenario) Forcings() []allocation.Forcing {
	fs := make([]allocation.Forcing, len(sc.Intervals))
	for i, iv := range sc.Intervals {
		f := allocation.Forcing{
			Time:        iv.Time,
			SourceFlow:  make(map[model.EdgeID]float64, len(iv.SourceFlow)),
			BasinTarget: make(map[model.NodeID]float64, len(iv.BasinTarget)),
			UserFlow:    make(map[model.NodeID]float64, len(iv.UserFlow)),
		}
		for id, v := range iv.SourceFlow {
			f.SourceFlow[model.EdgeID(id)] = v
		}
		for id, v := range iv.BasinTarget {
			f.BasinTarget[model.NodeID(id)] = v
		}
		for id, v := range iv.UserFlow {
			f.UserFlow[model.NodeID(id)] = v
		}
		fs[i] = f
	}
	return fs
}
