package compose

import (
	"strings"
)

// Arg is one filter option. An empty Key makes it positional.
type Arg struct {
	Key   string
	Value string
}

// Filter is a single filter with ordered options.
type Filter struct {
	Name string
	Args []Arg
}

func NewFilter(name string, args ...Arg) Filter {
	return Filter{Name: name, Args: args}
}

// KV is shorthand for a keyed Arg.
func KV(key, value string) Arg { return Arg{Key: key, Value: value} }

// Pos is shorthand for a positional Arg.
func Pos(value string) Arg { return Arg{Value: value} }

// Chain is a linear run of filters from input pads to output pads.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

// Graph is an ordered list of chains, rendered to ffmpeg's filtergraph
// syntax only by String.
type Graph struct {
	Chains []Chain
}

func (g *Graph) Add(c Chain) {
	g.Chains = append(g.Chains, c)
}

// Output returns the label produced by the last chain.
func (g *Graph) Output() string {
	if len(g.Chains) == 0 {
		return ""
	}
	outs := g.Chains[len(g.Chains)-1].Outputs
	if len(outs) == 0 {
		return ""
	}
	return outs[len(outs)-1]
}

// Relabel renames the final output pad of the last chain.
func (g *Graph) Relabel(label string) {
	if len(g.Chains) == 0 {
		return
	}
	last := &g.Chains[len(g.Chains)-1]
	if len(last.Outputs) == 0 {
		last.Outputs = []string{label}
		return
	}
	last.Outputs[len(last.Outputs)-1] = label
}

func (g Graph) String() string {
	chains := make([]string, len(g.Chains))
	for i, c := range g.Chains {
		chains[i] = c.String()
	}
	return strings.Join(chains, ";")
}

func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// String renders name=k=v:k=v. Values are escaped for the option parser
// first and the whole argument string for the graph parser second.
func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		v := escapeOption(a.Value)
		if a.Key == "" {
			parts[i] = v
		} else {
			parts[i] = a.Key + "=" + v
		}
	}
	return f.Name + "=" + escapeGraph(strings.Join(parts, ":"))
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

func escapeOption(s string) string { return optionEscaper.Replace(s) }
func escapeGraph(s string) string  { return graphEscaper.Replace(s) }
