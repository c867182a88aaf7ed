//go:build ignore

// Package main generates a synthetic Markdown vault for benchmarks and
// manual testing.
// Usage: go run scripts/generate-test-vault.go -notes 500 -output testdata/bench-vault
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numNotes  = flag.Int("notes", 500, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/bench-vault", "Vault output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pools for note generation.
var (
	topics = []string{
		"gardening", "woodworking", "running", "cooking", "reading",
		"photography", "travel", "finances", "home automation", "health",
		"bird watching", "guitar practice", "language learning", "baking",
		"cycling", "meditation", "astronomy", "fermentation",
	}
	projectNouns = []string{
		"raised beds", "bookshelf", "marathon plan", "sourdough starter",
		"reading list", "budget review", "garage workbench", "trip itinerary",
		"herb spiral", "backup strategy", "photo archive", "compost bin",
	}
	tagPool = []string{
		"garden", "wood", "running", "recipes", "books", "photo",
		"travel", "money", "home", "health", "music", "ideas",
		"review", "draft", "followup",
	}
	sentences = []string{
		"Spent the morning on %s and made more progress than expected.",
		"Notes from yesterday about %s, mostly things to try next week.",
		"The %s approach from that article works better than what I did before.",
		"Still stuck on %s, need to ask around or find a better reference.",
		"Measured everything twice this time, the %s numbers finally line up.",
		"Weather was good so %s happened outside for once.",
		"Found an old note about %s that contradicts what I wrote last month.",
		"Three small lessons from %s today, writing them down before I forget.",
		"Ordered the parts for %s, should arrive by Thursday.",
		"Cleaned up the plan for %s and cut the scope in half.",
	}
	statuses = []string{"active", "paused", "done", "idea"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	for _, subdir := range []string{"journal", "projects", "reference", "recipes"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, subdir), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating subdirectory %s: %v\n", subdir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d notes in %s...\n", *numNotes, *outputDir)

	// Distribution: half journal entries, the rest split across
	// projects, reference notes, and recipes. Roughly one note in ten
	// is long enough to be chunked.
	journalNotes := *numNotes * 50 / 100
	projectNotes := *numNotes * 20 / 100
	referenceNotes := *numNotes * 20 / 100
	recipeNotes := *numNotes - journalNotes - projectNotes - referenceNotes

	generated := 0
	for i := 0; i < journalNotes; i++ {
		if err := writeJournalNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing journal note %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < projectNotes; i++ {
		if err := writeProjectNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing project note %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < referenceNotes; i++ {
		if err := writeReferenceNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing reference note %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < recipeNotes; i++ {
		if err := writeRecipeNote(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing recipe note %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d notes.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

// title upper-cases the first letter of each word.
func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// noteDate spreads note timestamps over the past three years so the
// recency boost has something to work with.
func noteDate(rng *rand.Rand) time.Time {
	daysAgo := rng.Intn(3 * 365)
	return time.Now().AddDate(0, 0, -daysAgo).Truncate(24 * time.Hour)
}

func paragraph(rng *rand.Rand, topic string) string {
	n := 2 + rng.Intn(3)
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(pick(rng, sentences), topic))
	}
	return strings.Join(parts, " ")
}

func body(rng *rand.Rand, topic string, long bool) string {
	paragraphs := 2 + rng.Intn(3)
	if long {
		// Push past the chunking threshold.
		paragraphs = 25 + rng.Intn(10)
	}
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		b.WriteString(paragraph(rng, topic))
		b.WriteString("\n\n")
	}
	if rng.Intn(3) == 0 {
		b.WriteString(fmt.Sprintf("Tagged for later: #%s\n", pick(rng, tagPool)))
	}
	return b.String()
}

func frontmatter(title string, tags []string, created time.Time, extra map[string]string) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(fmt.Sprintf("title: %s\n", title))
	if len(tags) > 0 {
		b.WriteString(fmt.Sprintf("tags: [%s]\n", strings.Join(tags, ", ")))
	}
	b.WriteString(fmt.Sprintf("created: %s\n", created.Format("2006-01-02")))
	for k, v := range extra {
		b.WriteString(fmt.Sprintf("%s: %s\n", k, v))
	}
	b.WriteString("---\n\n")
	return b.String()
}

func writeNote(path, content string, modified time.Time) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	// Match the file mtime to the note date so change detection and
	// the recency boost see realistic timestamps.
	return os.Chtimes(path, modified, modified)
}

func writeJournalNote(rng *rand.Rand, index int) error {
	date := noteDate(rng)
	topic := pick(rng, topics)
	noteTitle := date.Format("2006-01-02")

	content := frontmatter(noteTitle, []string{"journal", pick(rng, tagPool)}, date, nil) +
		fmt.Sprintf("# %s\n\n%s", noteTitle, body(rng, topic, rng.Intn(10) == 0))

	// Suffix avoids collisions when two notes land on the same day.
	name := fmt.Sprintf("%s-%d.md", noteTitle, index)
	return writeNote(filepath.Join(*outputDir, "journal", name), content, date)
}

func writeProjectNote(rng *rand.Rand, index int) error {
	date := noteDate(rng)
	noun := pick(rng, projectNouns)
	noteTitle := title(noun)

	content := frontmatter(noteTitle, []string{pick(rng, tagPool), "project"}, date, map[string]string{
		"type":   "project",
		"status": pick(rng, statuses),
	}) + fmt.Sprintf("# %s\n\n%s", noteTitle, body(rng, noun, rng.Intn(8) == 0))

	name := fmt.Sprintf("%s-%d.md", strings.ReplaceAll(noun, " ", "-"), index)
	return writeNote(filepath.Join(*outputDir, "projects", name), content, date)
}

func writeReferenceNote(rng *rand.Rand, index int) error {
	date := noteDate(rng)
	topic := pick(rng, topics)
	noteTitle := fmt.Sprintf("%s reference", title(topic))

	content := frontmatter(noteTitle, []string{pick(rng, tagPool)}, date, map[string]string{
		"type": "reference",
	}) + fmt.Sprintf("# %s\n\n%s", noteTitle, body(rng, topic, rng.Intn(5) == 0))

	name := fmt.Sprintf("%s-%d.md", strings.ReplaceAll(topic, " ", "-"), index)
	return writeNote(filepath.Join(*outputDir, "reference", name), content, date)
}

func writeRecipeNote(rng *rand.Rand, index int) error {
	date := noteDate(rng)
	dish := pick(rng, []string{
		"lentil soup", "sourdough loaf", "pad thai", "shakshuka",
		"roast chicken", "miso ramen", "apple pie", "black bean chili",
	})
	noteTitle := title(dish)

	content := frontmatter(noteTitle, []string{"recipes"}, date, nil) +
		fmt.Sprintf("# %s\n\n%s", noteTitle, body(rng, dish, false))

	name := fmt.Sprintf("%s-%d.md", strings.ReplaceAll(dish, " ", "-"), index)
	return writeNote(filepath.Join(*outputDir, "recipes", name), content, date)
}
