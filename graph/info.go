package graph

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/template"

	"github.com/Masterminds/sprig"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/echosdaw/echos"
)

type (
	// NodeInfo is a snapshot of one node, detached from the graph.
	NodeInfo struct {
		ID             string
		Kind           echos.NodeKind
		Inputs         []string
		Outputs        []string
		Plugins        []PluginInfo
		LatencySamples int
		Volume         float32
		Pan            float32
		Muted          bool
		Sends          []string
	}

	PluginInfo struct {
		InstanceID     string
		PluginID       string
		Instrument     bool
		Bypassed       bool
		LatencySamples int
	}
)

func (g *Graph) NodeInfo(id string) (NodeInfo, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	info := NodeInfo{
		ID:             n.id,
		Kind:           n.kind,
		LatencySamples: n.latency,
		Volume:         n.volume,
		Pan:            n.pan,
		Muted:          n.muted,
		Sends:          slices.Sorted(maps.Keys(n.sends)),
	}
	for _, c := range g.connections {
		if c.Dest == id {
			info.Inputs = append(info.Inputs, c.Source)
		}
		if c.Source == id {
			info.Outputs = append(info.Outputs, c.Dest)
		}
	}
	slots := n.chain
	if n.instrument != nil {
		slots = append([]*slot{n.instrument}, slots...)
	}
	for _, s := range slots {
		info.Plugins = append(info.Plugins, PluginInfo{
			InstanceID:     s.inst.ID(),
			PluginID:       s.inst.PluginID(),
			Instrument:     s == n.instrument,
			Bypassed:       s.bypassed,
			LatencySamples: s.inst.LatencySamples(),
		})
	}
	return info, true
}

// Validate checks the internal consistency of the graph: every connection
// joins existing nodes, the processing order is topological and every
// plugin instance is owned by the node that holds it.
func (g *Graph) Validate() error {
	var errs []error
	for _, c := range g.connections {
		if _, ok := g.nodes[c.Source]; !ok {
			errs = append(errs, fmt.Errorf("connection %v: %w: %v", c, echos.ErrNodeNotFound, c.Source))
		}
		if _, ok := g.nodes[c.Dest]; !ok {
			errs = append(errs, fmt.Errorf("connection %v: %w: %v", c, echos.ErrNodeNotFound, c.Dest))
		}
	}
	if len(g.order) != len(g.nodes) {
		errs = append(errs, fmt.Errorf("processing order has %d nodes, graph has %d", len(g.order), len(g.nodes)))
	}
	pos := make(map[string]int, len(g.order))
	for i, n := range g.order {
		pos[n.id] = i
	}
	for _, c := range g.connections {
		if pos[c.Source] >= pos[c.Dest] {
			errs = append(errs, fmt.Errorf("connection %v points backwards in processing order", c))
		}
	}
	if g.cycle.Load() {
		errs = append(errs, echos.ErrCycle)
	}
	owned := 0
	for _, n := range g.insertion {
		for _, inst := range n.instances() {
			owned++
			if g.owner[inst.ID()] != n {
				errs = append(errs, fmt.Errorf("plugin %v is not registered to node %v", inst.ID(), n.id))
			}
		}
	}
	if owned != len(g.owner) {
		errs = append(errs, fmt.Errorf("%d plugins registered, %d held by nodes", len(g.owner), owned))
	}
	return errors.Join(errs...)
}

var dotTemplate = template.Must(template.New("dot").Funcs(sprig.TxtFuncMap()).Funcs(template.FuncMap{
	"kindLabel": func(k echos.NodeKind) string { return cases.Title(language.English).String(k.String()) },
}).Parse(`digraph render {
  rankdir=LR;
  node [shape=box];
{{- range .Nodes }}
  "{{ .ID }}" [label="{{ .ID | trunc 24 }}\n{{ kindLabel .Kind }}{{ if .Plugins }} ({{ len .Plugins }} plugins){{ end }}{{ if .LatencySamples }}\nlatency {{ .LatencySamples }}{{ end }}"{{ if .Muted }}, style=dashed{{ end }}];
{{- end }}
{{- range .Connections }}
  "{{ .Source }}" -> "{{ .Dest }}"{{ if hasPrefix "send:" .SourcePort }} [style=dotted, label="{{ trimPrefix "send:" .SourcePort | trunc 8 }}"]{{ end }};
{{- end }}
}
`))

// WriteDOT writes the graph in Graphviz format, nodes in processing order.
func (g *Graph) WriteDOT(w io.Writer) error {
	data := struct {
		Nodes       []NodeInfo
		Connections []echos.Connection
	}{Connections: g.connections}
	for _, n := range g.order {
		info, _ := g.NodeInfo(n.id)
		data.Nodes = append(data.Nodes, info)
	}
	if err := dotTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("could not write dot: %w", err)
	}
	return nil
}
