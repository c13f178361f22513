// Command cellarctl inspects a saved cellar database.
//
//	cellarctl -db data/cellar.db batches
//	cellarctl -db data/cellar.db batch <id>
//	cellarctl -db data/cellar.db vineyards
//	cellarctl -db data/cellar.db feature <id>
//	cellarctl -db data/cellar.db events
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/agnivade/levenshtein"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/cellarworks/internal/feature"
	"github.com/talgya/cellarworks/internal/persistence"
	"github.com/talgya/cellarworks/internal/wine"
)

func main() {
	dbPath := flag.String("db", "data/cellar.db", "path to the cellar database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	db, err := persistence.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cat := feature.Builtin()

	switch args[0] {
	case "batches":
		listBatches(db)
	case "batch":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "batch requires an id")
			os.Exit(2)
		}
		showBatch(db, cat, args[1])
	case "vineyards":
		listVineyards(db)
	case "feature":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "feature requires an id")
			os.Exit(2)
		}
		showFeature(cat, args[1])
	case "events":
		listEvents(db)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cellarctl [-db path] <batches|batch <id>|vineyards|feature <id>|events>")
}

func listBatches(db *persistence.DB) {
	batches, err := db.LoadBatches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load batches: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s in the cellar\n\n", plural(len(batches), "batch", "batches"))
	for _, b := range batches {
		present := 0
		for i := range b.Features {
			if b.Features[i].Present {
				present++
			}
		}
		fmt.Printf("  %s  %-32s %-11s quality %.2f  balance %.2f  %s\n",
			b.ID, b.Label, wine.StateName(b.State), b.GrapeQuality, b.Balance,
			plural(present, "feature", "features"))
	}
}

func showBatch(db *persistence.DB, cat *feature.Catalogue, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad batch id %q\n", idStr)
		os.Exit(2)
	}

	batches, err := db.LoadBatches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load batches: %v\n", err)
		os.Exit(1)
	}

	var b *wine.Batch
	for _, candidate := range batches {
		if candidate.ID == id {
			b = candidate
			break
		}
	}
	if b == nil {
		fmt.Fprintf(os.Stderr, "no batch %s\n", id)
		os.Exit(1)
	}

	fmt.Printf("%s (%s vintage)\n", b.Label, humanize.Ordinal(b.Vintage))
	fmt.Printf("  state: %s, harvested week %d\n", wine.StateName(b.State), b.HarvestedWeek)
	fmt.Printf("  quality %.3f (born %.3f), balance %.3f\n\n", b.GrapeQuality, b.BornGrapeQuality, b.Balance)

	fmt.Println("  features:")
	for i := range b.Features {
		st := &b.Features[i]
		name := st.ID
		if def, ok := cat.Get(st.ID); ok {
			name = def.Name
		} else {
			name = st.ID + " (retired)"
		}
		marker := " "
		if st.Present {
			marker = "*"
		}
		fmt.Printf("    %s %-22s risk %.3f  severity %.3f\n", marker, name, st.Risk, st.Severity)
	}

	if len(b.Breakdown) > 0 {
		fmt.Println("\n  breakdown:")
		for _, e := range b.Breakdown {
			fmt.Printf("    %-20s %-16s %+.3f\n", e.FeatureID, e.Target, e.Delta)
		}
	}
}

func listVineyards(db *persistence.DB) {
	vineyards, err := db.LoadVineyards()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load vineyards: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n\n", plural(len(vineyards), "vineyard", "vineyards"))
	for _, v := range vineyards {
		developing := 0
		for i := range v.PendingFeatures {
			if v.PendingFeatures[i].Risk > 0 || v.PendingFeatures[i].Present {
				developing++
			}
		}
		fmt.Printf("  %s  %-14s %-14s %-11s ripeness %.2f  %s developing\n",
			v.ID, v.Name, v.Region, v.Variety, v.Ripeness,
			humanize.Comma(int64(developing)))
	}
}

// showFeature describes a catalogue entry; on a miss it suggests the
// closest known id by edit distance.
func showFeature(cat *feature.Catalogue, id string) {
	def, ok := cat.Get(id)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown feature %q\n", id)
		if s := closestID(cat, id); s != "" {
			fmt.Fprintf(os.Stderr, "did you mean %q?\n", s)
		}
		os.Exit(1)
	}

	fmt.Printf("%s (%s)\n  %s\n", def.Name, def.ID, def.Description)
	switch def.Behavior.Kind {
	case feature.BehaviorAccumulation:
		p := def.Behavior.Accumulation
		fmt.Printf("  behavior: accumulation, base rate %.3f/week, compound %v\n", p.BaseRate, p.Compound)
		if p.Conditional != nil {
			fmt.Printf("  requires: %s\n", p.Conditional.RequiresFeature)
		}
	case feature.BehaviorEvolving:
		p := def.Behavior.Evolving
		if p.Curve != nil {
			fmt.Println("  behavior: evolving along an aging curve")
		} else {
			fmt.Printf("  behavior: evolving, growth %.3f/week\n", p.GrowthRate)
		}
	case feature.BehaviorTriggered:
		fmt.Printf("  behavior: triggered by %s\n", plural(len(def.Behavior.Triggered.Triggers), "production event", "production events"))
	}
	if len(def.StopsEvolutionOf) > 0 {
		fmt.Printf("  stops evolution of: %v\n", def.StopsEvolutionOf)
	}
}

func closestID(cat *feature.Catalogue, id string) string {
	best, bestDist := "", 5
	for _, known := range cat.IDs() {
		if d := levenshtein.ComputeDistance(id, known); d < bestDist {
			best, bestDist = known, d
		}
	}
	return best
}

func listEvents(db *persistence.DB) {
	events, err := db.RecentEvents(30)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load events: %v\n", err)
		os.Exit(1)
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		fmt.Printf("  week %-5d [%-10s] %s\n", e.Week, e.Category, e.Description)
	}
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("%s %s", humanize.Comma(int64(n)), singular)
	}
	return fmt.Sprintf("%s %s", humanize.Comma(int64(n)), pluralForm)
}
