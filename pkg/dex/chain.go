package dex

import (
	"encoding/json"
	"fmt"
)

// ChainNode is one species in an evolution tree.
type ChainNode struct {
	Name     string
	Children []ChainNode
}

// chainLink is the raw recursive shape of the "chain" field.
type chainLink struct {
	Species   NamedRef    `json:"species"`
	EvolvesTo []chainLink `json:"evolves_to"`
}

// chainDocument is the raw JSON from GET /evolution-chain/{id}.
type chainDocument struct {
	ID    int       `json:"id"`
	Chain chainLink `json:"chain"`
}

// ParseChain decodes a raw evolution chain document into its root node.
func ParseChain(raw json.RawMessage) (ChainNode, error) {
	var doc chainDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ChainNode{}, fmt.Errorf("parsing evolution chain document: %w", err)
	}
	if doc.Chain.Species.Name == "" {
		return ChainNode{}, fmt.Errorf("evolution chain %d has no root species", doc.ID)
	}
	return toNode(doc.Chain), nil
}

func toNode(link chainLink) ChainNode {
	node := ChainNode{Name: link.Species.Name}
	for _, child := range link.EvolvesTo {
		node.Children = append(node.Children, toNode(child))
	}
	return node
}

// Walk returns every name in the tree in pre-order: a node before its
// children, children in their listed order.
func Walk(root ChainNode) []string {
	names := []string{root.Name}
	for _, child := range root.Children {
		names = append(names, Walk(child)...)
	}
	return names
}
