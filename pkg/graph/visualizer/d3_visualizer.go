package visualizer

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/pkg/errors"
)

// The HTML template for D3.js visualization
const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body { 
            margin: 0;
            font-family: Arial, sans-serif;
        }
        #graph {
            width: 100%;
            height: 100vh;
            background-color: #f5f5f5;
        }
        .node {
            stroke: #fff;
            stroke-width: 1.5px;
        }
        .link {
            stroke: #999;
            stroke-opacity: 0.6;
        }
        .node-label {
            font-size: 10px;
            pointer-events: none;
        }
        .controls {
            position: absolute;
            top: 10px;
            left: 10px;
            background-color: rgba(255,255,255,0.8);
            padding: 10px;
            border-radius: 5px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
    </style>
</head>
<body>
    <div id="graph"></div>
    <div class="controls">
        <h3>{{.Title}}</h3>
        <p>Nodes: {{.NodeCount}}, Edges: {{.EdgeCount}}</p>
        <div>
            <label for="category-filter">Category:</label>
            <select id="category-filter">
                <option value="all">All Categories</option>
                {{range .Categories}}<option value="{{.}}">{{.}}</option>
                {{end}}
            </select>
        </div>
        <div>
            <label for="confidence-filter">Min confidence:</label>
            <input id="confidence-filter" type="range" min="0" max="1" step="0.05" value="0">
            <span id="confidence-value">0.00</span>
        </div>
    </div>

    <script>
        // Graph data
        const graphData = {{.GraphData}};
        
        // Initialize the force simulation
        const simulation = d3.forceSimulation(graphData.nodes)
            .force("link", d3.forceLink(graphData.edges).id(d => d.id).distance(100))
            .force("charge", d3.forceManyBody().strength(-300))
            .force("center", d3.forceCenter(window.innerWidth / 2, window.innerHeight / 2));

        // Create SVG element
        const svg = d3.select("#graph")
            .append("svg")
            .attr("width", "100%")
            .attr("height", "100%")
            .call(d3.zoom().on("zoom", (event) => {
                g.attr("transform", event.transform);
            }));

        const g = svg.append("g");

        const categories = [...new Set(graphData.nodes.map(node => node.category))];
        const colorScale = d3.scaleOrdinal(d3.schemeCategory10).domain(categories);

        // Create links
        const link = g.append("g")
            .selectAll("line")
            .data(graphData.edges)
            .enter()
            .append("line")
            .attr("class", "link")
            .attr("stroke-width", d => Math.sqrt(d.weight) * 2)
            .attr("stroke-opacity", d => 0.2 + 0.8 * d.confidence);

        // Create nodes
        const node = g.append("g")
            .selectAll("circle")
            .data(graphData.nodes)
            .enter()
            .append("circle")
            .attr("class", "node")
            .attr("r", d => 5 + 2 * Math.sqrt(d.observations))
            .attr("fill", d => colorScale(d.category))
            .call(d3.drag()
                .on("start", dragstarted)
                .on("drag", dragged)
                .on("end", dragended));

        // Add labels to nodes
        const label = g.append("g")
            .selectAll("text")
            .data(graphData.nodes)
            .enter()
            .append("text")
            .attr("class", "node-label")
            .attr("dx", 12)
            .attr("dy", ".35em")
            .text(d => d.label);

        // Node tooltip
        node.append("title")
            .text(d => d.label + " (" + d.type + ", " + d.category + ") " + d.confidence.toFixed(2));

        // Link tooltip
        link.append("title")
            .text(d => d.type + " [" + d.category + "] " + d.confidence.toFixed(2));

        // Update positions on simulation tick
        simulation.on("tick", () => {
            link
                .attr("x1", d => d.source.x)
                .attr("y1", d => d.source.y)
                .attr("x2", d => d.target.x)
                .attr("y2", d => d.target.y);

            node
                .attr("cx", d => d.x)
                .attr("cy", d => d.y);

            label
                .attr("x", d => d.x)
                .attr("y", d => d.y);
        });

        function applyFilters() {
            const category = d3.select("#category-filter").property("value");
            const minConfidence = +d3.select("#confidence-filter").property("value");
            d3.select("#confidence-value").text(minConfidence.toFixed(2));

            const visible = d => (category === "all" || d.category === category) && d.confidence >= minConfidence;
            node.style("visibility", d => visible(d) ? "visible" : "hidden");
            label.style("visibility", d => visible(d) ? "visible" : "hidden");
            link.style("visibility", d =>
                visible(d.source) && visible(d.target) && d.confidence >= minConfidence ? "visible" : "hidden");
        }

        d3.select("#category-filter").on("change", applyFilters);
        d3.select("#confidence-filter").on("input", applyFilters);

        // Drag functions
        function dragstarted(event, d) {
            if (!event.active) simulation.alphaTarget(0.3).restart();
            d.fx = d.x;
            d.fy = d.y;
        }

        function dragged(event, d) {
            d.fx = event.x;
            d.fy = event.y;
        }

        function dragended(event, d) {
            if (!event.active) simulation.alphaTarget(0);
            d.fx = null;
            d.fy = null;
        }
    </script>
</body>
</html>
`

// D3Visualizer renders knowledge graphs as a standalone D3.js force layout.
// Nodes are colored by category and sized by how often they were observed.
type D3Visualizer struct {
	outputPath string
	title      string
}

// NewD3Visualizer creates a visualizer that writes to outputPath.
func NewD3Visualizer(outputPath string) *D3Visualizer {
	return &D3Visualizer{
		outputPath: outputPath,
		title:      "Financial Knowledge Graph",
	}
}

// WithTitle sets the page title.
func (v *D3Visualizer) WithTitle(title string) *D3Visualizer {
	v.title = title
	return v
}

var page = template.Must(template.New("d3").Parse(d3Template))

// Visualize writes the HTML page to the output path.
func (v *D3Visualizer) Visualize(g *graph.KnowledgeGraphData) error {
	dir := filepath.Dir(v.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}

	var buf bytes.Buffer
	if err := v.Render(&buf, g); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(v.outputPath, buf.Bytes(), 0644), "write %s", v.outputPath)
}

// Render writes the HTML page for g to w.
func (v *D3Visualizer) Render(w io.Writer, g *graph.KnowledgeGraphData) error {
	if g == nil {
		return errors.New("cannot visualize nil graph")
	}

	graphData, err := json.Marshal(g)
	if err != nil {
		return errors.Wrap(err, "encode graph")
	}

	data := struct {
		Title      string
		GraphData  template.JS
		NodeCount  int
		EdgeCount  int
		Categories []string
	}{
		Title:      v.title,
		GraphData:  template.JS(graphData),
		NodeCount:  len(g.Nodes),
		EdgeCount:  len(g.Edges),
		Categories: categories(g),
	}
	return errors.Wrap(page.Execute(w, data), "render visualization")
}

func categories(g *graph.KnowledgeGraphData) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, n := range g.Nodes {
		c := string(n.Category)
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
