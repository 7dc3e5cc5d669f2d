package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/termgraph/pkg/client"
)

func main() {
	endpoint := flag.String("endpoint", os.Getenv("TERMGRAPH_URL"), "termgraph-d base URL")
	ontology := flag.String("ontology", "go", "ontology to browse")
	term := flag.String("term", "", "IRI to start from (default: the ontology roots)")
	flag.Parse()

	c := client.NewClient(*endpoint)
	p := tea.NewProgram(initialModel(c, *ontology, *term), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
