package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/OdinManiac/regelum/internal/compiler"
	"github.com/OdinManiac/regelum/internal/ir"
)

// LoadError represents an error that occurred during pipeline loading.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Loader error codes (distinct from pass diagnostics: these mean the
// CUE input itself could not be read or decoded).
const (
	ErrCodeNotFound  = "LOAD001"
	ErrCodeNoFiles   = "LOAD002"
	ErrCodeCUE       = "LOAD003"
	ErrCodeBadField  = "LOAD004"
)

// LoadPipeline reads every CUE file in a directory and decodes the
// top-level "pipeline" struct into a graph descriptor.
//
// CUE pipelines author Core nodes only: Ext, Raw and continuous nodes
// carry Go function bodies and enter through the compiler's descriptor
// API instead.
func LoadPipeline(dir string) (*compiler.GraphDescriptor, ir.Mode, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("pipeline directory not found: %s", dir)}
	}
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", dir, err)}
	}
	if !info.IsDir() {
		return nil, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error scanning %s: %v", dir, err)}
	}
	if len(cueFiles) == 0 {
		return nil, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, 0, &LoadError{Code: ErrCodeCUE, Message: "no CUE instances loaded"}
	}
	if instances[0].Err != nil {
		return nil, 0, &LoadError{Code: ErrCodeCUE, Message: instances[0].Err.Error()}
	}

	value := ctx.BuildInstance(instances[0])
	if value.Err() != nil {
		return nil, 0, &LoadError{Code: ErrCodeCUE, Message: value.Err().Error()}
	}

	root := value.LookupPath(cue.ParsePath("pipeline"))
	if !root.Exists() {
		return nil, 0, &LoadError{Code: ErrCodeBadField, Message: "no top-level \"pipeline\" struct"}
	}
	return decodePipeline(root)
}

func findCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodePipeline(v cue.Value) (*compiler.GraphDescriptor, ir.Mode, error) {
	desc := &compiler.GraphDescriptor{}

	mode := ir.ModePragmatic
	if mv := v.LookupPath(cue.ParsePath("mode")); mv.Exists() {
		s, err := mv.String()
		if err != nil {
			return nil, 0, decodeErr("mode", err)
		}
		mode = ir.ParseMode(s)
	}
	if av := v.LookupPath(cue.ParsePath("autowire")); av.Exists() {
		b, err := av.Bool()
		if err != nil {
			return nil, 0, decodeErr("autowire", err)
		}
		desc.AutoWire = b
	}

	if vars := v.LookupPath(cue.ParsePath("variables")); vars.Exists() {
		decoded, err := decodeVariables(vars)
		if err != nil {
			return nil, 0, err
		}
		desc.Variables = decoded
	}

	nodes := v.LookupPath(cue.ParsePath("nodes"))
	if !nodes.Exists() {
		return nil, 0, &LoadError{Code: ErrCodeBadField, Message: "pipeline has no nodes"}
	}
	iter, err := nodes.Fields()
	if err != nil {
		return nil, 0, decodeErr("nodes", err)
	}
	for iter.Next() {
		nd, err := decodeNode(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, 0, err
		}
		desc.Nodes = append(desc.Nodes, *nd)
	}

	if edges := v.LookupPath(cue.ParsePath("edges")); edges.Exists() {
		list, err := edges.List()
		if err != nil {
			return nil, 0, decodeErr("edges", err)
		}
		for list.Next() {
			ed, err := decodeEdge(list.Value())
			if err != nil {
				return nil, 0, err
			}
			desc.Edges = append(desc.Edges, *ed)
		}
	}

	return desc, mode, nil
}

func decodeVariables(v cue.Value) ([]compiler.VariableDescriptor, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, decodeErr("variables", err)
	}
	var out []compiler.VariableDescriptor
	for iter.Next() {
		vd, err := decodeVariable(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, *vd)
	}
	return out, nil
}

func decodeVariable(name string, v cue.Value) (*compiler.VariableDescriptor, error) {
	vd := &compiler.VariableDescriptor{Name: name, Type: ir.TypeAny}

	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return nil, decodeErr(name+".type", err)
		}
		vd.Type = ir.ParseType(s)
		if vd.Type == ir.TypeInvalid {
			return nil, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("variable %q: unknown type %q", name, s)}
		}
	}
	if iv := v.LookupPath(cue.ParsePath("init")); iv.Exists() {
		val, err := decodeValue(iv)
		if err != nil {
			return nil, decodeErr(name+".init", err)
		}
		vd.Init = val
	}
	if pv := v.LookupPath(cue.ParsePath("policy")); pv.Exists() {
		s, err := pv.String()
		if err != nil {
			return nil, decodeErr(name+".policy", err)
		}
		vd.Policy = s
	}
	if hv := v.LookupPath(cue.ParsePath("height")); hv.Exists() {
		n, err := hv.Int64()
		if err != nil {
			return nil, decodeErr(name+".height", err)
		}
		vd.Height = int(n)
	}
	if prio := v.LookupPath(cue.ParsePath("priority")); prio.Exists() {
		list, err := prio.List()
		if err != nil {
			return nil, decodeErr(name+".priority", err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, decodeErr(name+".priority", err)
			}
			vd.Priority = append(vd.Priority, ir.NodeID(s))
		}
	}
	return vd, nil
}

func decodeNode(id string, v cue.Value) (*compiler.NodeDescriptor, error) {
	nd := &compiler.NodeDescriptor{ID: ir.NodeID(id), Kind: ir.KindCore}

	if kv := v.LookupPath(cue.ParsePath("kind")); kv.Exists() {
		s, err := kv.String()
		if err != nil {
			return nil, decodeErr(id+".kind", err)
		}
		kind, err := ir.ParseNodeKind(s)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("node %q: %v", id, err)}
		}
		if kind != ir.KindCore {
			return nil, &LoadError{Code: ErrCodeBadField,
				Message: fmt.Sprintf("node %q: kind %q requires a Go body and cannot be authored in CUE", id, s)}
		}
		nd.Kind = kind
	}

	decodePorts := func(path string, dir ir.Direction) error {
		pv := v.LookupPath(cue.ParsePath(path))
		if !pv.Exists() {
			return nil
		}
		iter, err := pv.Fields()
		if err != nil {
			return decodeErr(id+"."+path, err)
		}
		for iter.Next() {
			pd, err := decodePort(iter.Selector().Unquoted(), dir, iter.Value())
			if err != nil {
				return err
			}
			nd.Ports = append(nd.Ports, *pd)
		}
		return nil
	}
	if err := decodePorts("inputs", ir.In); err != nil {
		return nil, err
	}
	if err := decodePorts("outputs", ir.Out); err != nil {
		return nil, err
	}

	if sv := v.LookupPath(cue.ParsePath("state")); sv.Exists() {
		decoded, err := decodeVariables(sv)
		if err != nil {
			return nil, err
		}
		nd.States = decoded
	}

	if rv := v.LookupPath(cue.ParsePath("reactions")); rv.Exists() {
		iter, err := rv.Fields()
		if err != nil {
			return nil, decodeErr(id+".reactions", err)
		}
		for iter.Next() {
			rd, err := decodeReaction(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			nd.Reactions = append(nd.Reactions, *rd)
		}
	}

	return nd, nil
}

func decodePort(name string, dir ir.Direction, v cue.Value) (*compiler.PortDescriptor, error) {
	pd := &compiler.PortDescriptor{Name: name, Direction: dir, Type: ir.TypeAny}

	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return nil, decodeErr(name+".type", err)
		}
		pd.Type = ir.ParseType(s)
		if pd.Type == ir.TypeInvalid {
			return nil, &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("port %q: unknown type %q", name, s)}
		}
	}
	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		val, err := decodeValue(dv)
		if err != nil {
			return nil, decodeErr(name+".default", err)
		}
		pd.Default = val
	}
	if rv := v.LookupPath(cue.ParsePath("rate")); rv.Exists() {
		n, err := rv.Int64()
		if err != nil {
			return nil, decodeErr(name+".rate", err)
		}
		pd.Rate = int(n)
	}
	return pd, nil
}

func decodeReaction(id string, v cue.Value) (*compiler.ReactionDescriptor, error) {
	rd := &compiler.ReactionDescriptor{ID: id}

	if ov := v.LookupPath(cue.ParsePath("output")); ov.Exists() {
		s, err := ov.String()
		if err != nil {
			return nil, decodeErr(id+".output", err)
		}
		rd.OutputPort = s
	}
	if ev := v.LookupPath(cue.ParsePath("expr")); ev.Exists() {
		e, err := decodeExpr(ev)
		if err != nil {
			return nil, decodeErr(id+".expr", err)
		}
		rd.Output = e
	}
	if wv := v.LookupPath(cue.ParsePath("writes")); wv.Exists() {
		list, err := wv.List()
		if err != nil {
			return nil, decodeErr(id+".writes", err)
		}
		for list.Next() {
			item := list.Value()
			name, err := item.LookupPath(cue.ParsePath("var")).String()
			if err != nil {
				return nil, decodeErr(id+".writes.var", err)
			}
			e, err := decodeExpr(item.LookupPath(cue.ParsePath("expr")))
			if err != nil {
				return nil, decodeErr(id+".writes.expr", err)
			}
			rd.Writes = append(rd.Writes, compiler.WriteDescriptor{Variable: name, Expr: e})
		}
	}
	if rv := v.LookupPath(cue.ParsePath("rank")); rv.Exists() {
		e, err := decodeExpr(rv)
		if err != nil {
			return nil, decodeErr(id+".rank", err)
		}
		rd.Rank = e
	}
	if mv := v.LookupPath(cue.ParsePath("max_microsteps")); mv.Exists() {
		n, err := mv.Int64()
		if err != nil {
			return nil, decodeErr(id+".max_microsteps", err)
		}
		rd.MaxMicrosteps = int(n)
	}
	return rd, nil
}

func decodeEdge(v cue.Value) (*compiler.EdgeDescriptor, error) {
	from, err := v.LookupPath(cue.ParsePath("from")).String()
	if err != nil {
		return nil, decodeErr("edge.from", err)
	}
	to, err := v.LookupPath(cue.ParsePath("to")).String()
	if err != nil {
		return nil, decodeErr("edge.to", err)
	}
	srcNode, srcPort, err := splitPortKey(from)
	if err != nil {
		return nil, err
	}
	dstNode, dstPort, err := splitPortKey(to)
	if err != nil {
		return nil, err
	}
	return &compiler.EdgeDescriptor{
		SrcNode: srcNode, SrcPort: srcPort,
		DstNode: dstNode, DstPort: dstPort,
	}, nil
}

func splitPortKey(key string) (ir.NodeID, string, error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return ir.NodeID(key[:i]), key[i+1:], nil
		}
	}
	return "", "", &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("edge endpoint %q is not node.port", key)}
}

// decodeExpr decodes the structured expression encoding:
//
//	{const: 1}  {ref: "x"}  {op: "+", left: E, right: E}
//	{cmp: "<", left: E, right: E}  {logic: "and", operands: [...]}
//	{cond: E, then: E, else: E}  {delay: E, default: V}
//
// The conditional key is "cond" rather than "if" because if is a CUE
// comprehension keyword.
func decodeExpr(v cue.Value) (ir.Expr, error) {
	if !v.Exists() {
		return nil, fmt.Errorf("missing expression")
	}

	if cv := v.LookupPath(cue.ParsePath("const")); cv.Exists() {
		val, err := decodeValue(cv)
		if err != nil {
			return nil, err
		}
		return ir.NewConst(val)
	}

	if rv := v.LookupPath(cue.ParsePath("ref")); rv.Exists() {
		name, err := rv.String()
		if err != nil {
			return nil, err
		}
		// Kind and type settle during builder resolution.
		return ir.VarRef(name, ir.TypeAny), nil
	}

	if ov := v.LookupPath(cue.ParsePath("op")); ov.Exists() {
		name, err := ov.String()
		if err != nil {
			return nil, err
		}
		op, err := parseBinaryOp(name)
		if err != nil {
			return nil, err
		}
		left, err := decodeExpr(v.LookupPath(cue.ParsePath("left")))
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(v.LookupPath(cue.ParsePath("right")))
		if err != nil {
			return nil, err
		}
		return ir.NewBinary(op, left, right)
	}

	if cv := v.LookupPath(cue.ParsePath("cmp")); cv.Exists() {
		name, err := cv.String()
		if err != nil {
			return nil, err
		}
		op, err := parseCompareOp(name)
		if err != nil {
			return nil, err
		}
		left, err := decodeExpr(v.LookupPath(cue.ParsePath("left")))
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(v.LookupPath(cue.ParsePath("right")))
		if err != nil {
			return nil, err
		}
		return ir.NewCompare(op, left, right)
	}

	if lv := v.LookupPath(cue.ParsePath("logic")); lv.Exists() {
		name, err := lv.String()
		if err != nil {
			return nil, err
		}
		op, err := parseLogicOp(name)
		if err != nil {
			return nil, err
		}
		list, err := v.LookupPath(cue.ParsePath("operands")).List()
		if err != nil {
			return nil, err
		}
		var operands []ir.Expr
		for list.Next() {
			e, err := decodeExpr(list.Value())
			if err != nil {
				return nil, err
			}
			operands = append(operands, e)
		}
		return ir.NewLogical(op, operands...)
	}

	if iv := v.LookupPath(cue.ParsePath("cond")); iv.Exists() {
		cond, err := decodeExpr(iv)
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(v.LookupPath(cue.ParsePath("then")))
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(v.LookupPath(cue.ParsePath("else")))
		if err != nil {
			return nil, err
		}
		return ir.NewIf(cond, then, els)
	}

	if dv := v.LookupPath(cue.ParsePath("delay")); dv.Exists() {
		inner, err := decodeExpr(dv)
		if err != nil {
			return nil, err
		}
		def, err := decodeValue(v.LookupPath(cue.ParsePath("default")))
		if err != nil {
			return nil, err
		}
		return ir.NewDelay(inner, def)
	}

	return nil, fmt.Errorf("unrecognized expression form")
}

func decodeValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return ir.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return ir.Float(f), nil
	default:
		return nil, fmt.Errorf("unsupported value kind %s", v.Kind())
	}
}

func parseBinaryOp(s string) (ir.BinaryOp, error) {
	switch s {
	case "+":
		return ir.OpAdd, nil
	case "-":
		return ir.OpSub, nil
	case "*":
		return ir.OpMul, nil
	case "/":
		return ir.OpDiv, nil
	case "min":
		return ir.OpMin, nil
	case "max":
		return ir.OpMax, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", s)
	}
}

func parseCompareOp(s string) (ir.CompareOp, error) {
	switch s {
	case "<":
		return ir.CmpLT, nil
	case "<=":
		return ir.CmpLE, nil
	case "==":
		return ir.CmpEQ, nil
	case ">=":
		return ir.CmpGE, nil
	case ">":
		return ir.CmpGT, nil
	default:
		return 0, fmt.Errorf("unknown comparison %q", s)
	}
}

func parseLogicOp(s string) (ir.LogicOp, error) {
	switch s {
	case "and":
		return ir.OpAnd, nil
	case "or":
		return ir.OpOr, nil
	case "not":
		return ir.OpNot, nil
	default:
		return 0, fmt.Errorf("unknown logic op %q", s)
	}
}

func decodeErr(field string, err error) error {
	return &LoadError{Code: ErrCodeBadField, Message: fmt.Sprintf("%s: %v", field, err)}
}
