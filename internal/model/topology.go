package model

import "fmt"

// Position is a node's canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// TopologyNode is a device as drawn on the topology canvas.
type TopologyNode struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Title    string     `json:"title,omitempty"`
	Group    DeviceKind `json:"group"`
	Position *Position  `json:"-"`
}

// TopologyEdge is a link between two devices. Cost is always positive.
type TopologyEdge struct {
	ID    string  `json:"id,omitempty" yaml:"id,omitempty"`
	From  string  `json:"from" yaml:"from"`
	To    string  `json:"to" yaml:"to"`
	Label string  `json:"label,omitempty" yaml:"label,omitempty"`
	Cost  int     `json:"cost" yaml:"cost"`
	SrcIf *string `json:"src_if" yaml:"src_if,omitempty"`
	DstIf *string `json:"dst_if" yaml:"dst_if,omitempty"`
}

// DefaultCost is applied to links without a usable cost.
const DefaultCost = 1

// FallbackEdgeID is the id given to the i-th edge when the backend omits one.
func FallbackEdgeID(from, to string, i int) string {
	return fmt.Sprintf("%s-%s-%d", from, to, i)
}

// Normalize fills the edge id and cost defaults.
func (e *TopologyEdge) Normalize(i int) {
	if e.ID == "" {
		e.ID = FallbackEdgeID(e.From, e.To, i)
	}
	if e.Cost <= 0 {
		e.Cost = DefaultCost
	}
}

// Topology is the full graph of a lab.
type Topology struct {
	Nodes     []TopologyNode
	Edges     []TopologyEdge
	Positions map[string]Position
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
