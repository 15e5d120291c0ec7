package engine

import (
	"github.com/OdinManiac/regelum/internal/ir"
)

// tickEnv is the read surface one reaction sees during propose: the
// committed variable environment (or the SCC's constructive working
// copy), this tick's port state, and port defaults. Writes never touch
// it - ports go to the shared port state, variables become intents.
type tickEnv struct {
	rt      *Runtime
	vars    map[string]ir.Value
	node    ir.NodeID
	react   string
	intents *[]ir.Intent
}

// Lookup implements expr.Env.
func (e *tickEnv) Lookup(ref *ir.Ref) ir.Value {
	if ref.Kind == ir.RefVar {
		return e.readVar(ref.Name)
	}
	return e.rt.readPort(ref.Name)
}

func (e *tickEnv) readVar(name string) ir.Value {
	if v, ok := e.vars[name]; ok {
		return v
	}
	if decl, ok := e.rt.graph.Variables[name]; ok && decl.HasInit() {
		return decl.Init
	}
	return ir.Absent
}

// reactionContext adapts a tickEnv to the surface opaque bodies see.
// Unqualified names resolve against the owning node, matching the
// scoping the builder applied to expression references.
type reactionContext struct {
	env *tickEnv
}

// Read implements ir.ReactionContext.
func (c *reactionContext) Read(port string) ir.Value {
	return c.env.rt.readPort(c.env.qualify(port))
}

// ReadVar implements ir.ReactionContext.
func (c *reactionContext) ReadVar(name string) ir.Value {
	if _, ok := c.env.rt.graph.Variables[name]; ok {
		return c.env.readVar(name)
	}
	return c.env.readVar(string(c.env.node) + "." + name)
}

// Write implements ir.ReactionContext.
func (c *reactionContext) Write(port string, v ir.Value) {
	c.env.rt.ports[c.env.qualify(port)] = v
}

// WriteVar implements ir.ReactionContext.
func (c *reactionContext) WriteVar(name string, v ir.Value) {
	global := name
	if _, ok := c.env.rt.graph.Variables[name]; !ok {
		global = string(c.env.node) + "." + name
	}
	*c.env.intents = append(*c.env.intents, ir.Intent{
		Variable: global,
		Producer: c.env.node,
		Reaction: c.env.react,
		Value:    v,
	})
}

func (e *tickEnv) qualify(port string) string {
	for _, b := range port {
		if b == '.' {
			return port
		}
	}
	return string(e.node) + "." + port
}
