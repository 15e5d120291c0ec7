package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainGraph is the domain prefix for graph identity hashing.
// The version suffix enables future encoding migration.
const DomainGraph = "regelum/ir/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GraphHash computes the content-addressed identity of a frozen graph.
// Two compiles of the same authored graph under the same mode yield the
// same hash; this is what makes compile idempotence checkable.
func (g *Graph) GraphHash() (string, error) {
	encoded, err := encodeGraph(g)
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	canonical, err := MarshalCanonical(encoded)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

func encodeGraph(g *Graph) (map[string]any, error) {
	nodes := make([]any, 0, len(g.NodeOrder))
	for _, id := range g.NodeOrder {
		n, err := encodeNode(g.Nodes[id])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	vars := make([]any, 0, len(g.VarOrder))
	for _, name := range g.VarOrder {
		vars = append(vars, encodeVariable(g.Variables[name]))
	}

	edges := make([]any, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, map[string]any{
			"src": e.SrcKey(),
			"dst": e.DstKey(),
		})
	}

	return map[string]any{
		"mode":      g.Mode.String(),
		"nodes":     nodes,
		"variables": vars,
		"edges":     edges,
	}, nil
}

func encodeNode(n *Node) (map[string]any, error) {
	ports := make([]any, 0, len(n.Inputs)+len(n.Outputs))
	for _, p := range n.Inputs {
		ports = append(ports, encodePort(p))
	}
	for _, p := range n.Outputs {
		ports = append(ports, encodePort(p))
	}

	reactions := make([]any, 0, len(n.Reactions))
	for _, r := range n.Reactions {
		enc, err := encodeReaction(r)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, enc)
	}

	return map[string]any{
		"id":        string(n.ID),
		"kind":      n.Kind.String(),
		"ports":     ports,
		"reactions": reactions,
	}, nil
}

func encodePort(p *Port) map[string]any {
	enc := map[string]any{
		"name": p.Name,
		"dir":  int64(p.Direction),
		"type": p.Type.String(),
		"rate": int64(p.Rate),
	}
	if p.HasDefault() {
		enc["default"] = encodeValue(p.Default)
	}
	return enc
}

func encodeVariable(v *Variable) map[string]any {
	enc := map[string]any{
		"name":   v.Name,
		"type":   v.Type.String(),
		"policy": v.Policy.Name(),
		"delay":  v.IsDelayBuffer,
	}
	if v.HasInit() {
		enc["init"] = encodeValue(v.Init)
	}
	if v.Owner != "" {
		enc["owner"] = string(v.Owner)
	}
	return enc
}

func encodeReaction(r *Reaction) (map[string]any, error) {
	enc := map[string]any{
		"id":   r.ID,
		"node": string(r.Node),
	}
	if r.OutputPort != "" {
		enc["output_port"] = r.OutputPort
	}
	if r.Output != nil {
		e, err := encodeExpr(r.Output)
		if err != nil {
			return nil, err
		}
		enc["output"] = e
	}
	if len(r.WriteOrder) > 0 {
		writes := make([]any, 0, len(r.WriteOrder))
		for _, name := range r.WriteOrder {
			e, err := encodeExpr(r.Writes[name])
			if err != nil {
				return nil, err
			}
			writes = append(writes, map[string]any{"var": name, "expr": e})
		}
		enc["writes"] = writes
	}
	if r.Rank != nil {
		e, err := encodeExpr(r.Rank)
		if err != nil {
			return nil, err
		}
		enc["rank"] = e
		enc["max_microsteps"] = int64(r.MaxMicrosteps)
	}
	if len(r.PostCommit) > 0 {
		deferred := make([]any, 0, len(r.PostCommit))
		for _, w := range r.PostCommit {
			e, err := encodeExpr(w.Expr)
			if err != nil {
				return nil, err
			}
			deferred = append(deferred, map[string]any{"var": w.Variable, "expr": e})
		}
		enc["post_commit"] = deferred
	}
	if r.Body != nil {
		// Opaque bodies contribute only their identity to the hash.
		enc["opaque"] = true
	}
	return enc, nil
}

// encodeValue renders a value as a tagged map so that, e.g., Int(1) and
// Float(1) hash differently and floats avoid JSON number formatting.
func encodeValue(v Value) map[string]any {
	switch val := v.(type) {
	case Int:
		return map[string]any{"int": int64(val)}
	case Float:
		return map[string]any{"float": FormatValue(val)}
	case Bool:
		return map[string]any{"bool": bool(val)}
	default:
		return map[string]any{"absent": true}
	}
}

func encodeExpr(e Expr) (map[string]any, error) {
	switch n := e.(type) {
	case *Const:
		return map[string]any{"const": encodeValue(n.Val)}, nil
	case *Ref:
		return map[string]any{"ref": n.Name, "kind": n.Kind.String()}, nil
	case *Binary:
		l, err := encodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := encodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"op": n.Op.String(), "left": l, "right": r}, nil
	case *Compare:
		l, err := encodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := encodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"cmp": n.Op.String(), "left": l, "right": r}, nil
	case *Logical:
		operands := make([]any, 0, len(n.Operands))
		for _, o := range n.Operands {
			enc, err := encodeExpr(o)
			if err != nil {
				return nil, err
			}
			operands = append(operands, enc)
		}
		return map[string]any{"logic": n.Op.String(), "operands": operands}, nil
	case *If:
		c, err := encodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		t, err := encodeExpr(n.Then)
		if err != nil {
			return nil, err
		}
		el, err := encodeExpr(n.Else)
		if err != nil {
			return nil, err
		}
		return map[string]any{"if": c, "then": t, "else": el}, nil
	case *Call:
		args := make([]any, 0, len(n.Args))
		for _, a := range n.Args {
			enc, err := encodeExpr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, enc)
		}
		return map[string]any{"call": n.Builtin.Name, "args": args}, nil
	case *Delay:
		inner, err := encodeExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"delay": inner, "default": encodeValue(n.Default)}, nil
	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}
