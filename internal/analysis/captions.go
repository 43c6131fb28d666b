package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Stopwords is the combined Spanish and English stopword list.
var Stopwords = toSet(
	// Spanish
	"de", "la", "el", "en", "a", "y", "que", "es", "por", "un", "para",
	"con", "no", "una", "su", "al", "lo", "como", "más", "mas", "pero", "sus",
	"le", "ya", "o", "este", "sí", "si", "porque", "esta", "entre", "cuando",
	"muy", "sin", "sobre", "también", "tambien", "me", "hasta", "hay", "donde",
	"han", "quien", "están", "estan", "desde", "todo", "nos", "durante",
	"todos", "uno", "les", "ni", "contra", "otros", "ese", "eso", "ante",
	"ellos", "e", "esto", "mí", "mi", "antes", "algunos", "qué", "unos", "yo",
	"del", "las", "los", "se", "está", "son", "ser", "fue", "ha",
	// English
	"the", "of", "and", "in", "to", "for", "is", "on", "that", "by",
	"this", "with", "i", "you", "it", "not", "or", "be", "are", "from",
	"at", "as", "your", "all", "have", "new", "more", "an", "was", "we",
	"will", "can", "us", "about", "if", "my", "has", "but", "our", "one",
	"other", "do", "may", "down", "side", "been", "now", "find", "any", "these", "each",
	"their", "there", "which", "she", "him", "his", "her", "would", "make", "them",
	"its", "into", "out", "up", "so", "what", "than", "some", "could", "only", "between",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// CaptionCounter counts words, bigrams and trigrams of captions. Single-word counts leave out
// the city name; n-grams keep it. It is not safe for concurrent use.
type CaptionCounter struct {
	city     string
	lower    cases.Caser
	words    map[string]int
	bigrams  map[string]int
	trigrams map[string]int
	captions int
}

// NewCaptionCounter creates a counter for captions about city.
func NewCaptionCounter(city string) *CaptionCounter {
	c := &CaptionCounter{
		lower:    cases.Lower(language.Und),
		words:    make(map[string]int),
		bigrams:  make(map[string]int),
		trigrams: make(map[string]int),
	}
	c.city = strings.TrimSpace(c.lower.String(norm.NFC.String(city)))
	return c
}

// Tokenize lowercases text, blanks out punctuation and digits and drops short words and
// stopwords.
func (c *CaptionCounter) Tokenize(text string) []string {
	text = c.lower.String(norm.NFC.String(text))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || (!isWordRune(r) && !unicode.IsSpace(r)) {
			return ' '
		}
		return r
	}, text)

	fields := strings.Fields(cleaned)
	words := fields[:0]
	for _, w := range fields {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := Stopwords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// Add counts one caption.
func (c *CaptionCounter) Add(caption string) {
	words := c.Tokenize(caption)
	if len(words) == 0 {
		return
	}
	c.captions++

	for _, w := range words {
		if w != c.city {
			c.words[w]++
		}
	}
	for i := 0; i+2 <= len(words); i++ {
		c.bigrams[strings.Join(words[i:i+2], " ")]++
	}
	for i := 0; i+3 <= len(words); i++ {
		c.trigrams[strings.Join(words[i:i+3], " ")]++
	}
}

// Captions is the number of captions that produced at least one word.
func (c *CaptionCounter) Captions() int {
	return c.captions
}

// TopWords returns the n most frequent words.
func (c *CaptionCounter) TopWords(n int) []Count { return top(c.words, n) }

// TopBigrams returns the n most frequent bigrams.
func (c *CaptionCounter) TopBigrams(n int) []Count { return top(c.bigrams, n) }

// TopTrigrams returns the n most frequent trigrams.
func (c *CaptionCounter) TopTrigrams(n int) []Count { return top(c.trigrams, n) }

// WriteCSV writes top_words.csv, top_bigrams.csv and top_trigrams.csv into dir. Empty tables
// are skipped.
func (c *CaptionCounter) WriteCSV(dir string, n int) ([]string, error) {
	tables := []struct {
		name, column string
		rows         []Count
	}{
		{"top_words.csv", "word", c.TopWords(n)},
		{"top_bigrams.csv", "bigram", c.TopBigrams(n)},
		{"top_trigrams.csv", "trigram", c.TopTrigrams(n)},
	}

	var written []string
	for _, t := range tables {
		if len(t.rows) == 0 {
			continue
		}
		path, err := writeCounts(dir, t.name, []string{t.column, "frequency"}, t.rows)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
