// Package analysis computes side statistics over the point source: image host domains and
// caption vocabulary.
package analysis

import (
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Count is one ranked entry.
type Count struct {
	Key   string
	Count int
}

// DomainCounter counts image host domains. It is not safe for concurrent use.
type DomainCounter struct {
	counts map[string]int
	total  int
}

// NewDomainCounter creates an empty counter.
func NewDomainCounter() *DomainCounter {
	return &DomainCounter{counts: make(map[string]int)}
}

// ExtractDomain returns the host of rawURL without a leading "www." and without port.
// A missing scheme is tolerated. It returns "" when no host can be found.
func ExtractDomain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Add counts the domain of one URL.
func (d *DomainCounter) Add(rawURL string) {
	if domain := ExtractDomain(rawURL); domain != "" {
		d.counts[domain]++
		d.total++
	}
}

// Total is the number of URLs with a domain.
func (d *DomainCounter) Total() int {
	return d.total
}

// Top returns the n most frequent domains.
func (d *DomainCounter) Top(n int) []Count {
	return top(d.counts, n)
}

// WriteCSV writes top_domains.csv into dir.
func (d *DomainCounter) WriteCSV(dir string, n int) (string, error) {
	return writeCounts(dir, "top_domains.csv", []string{"domain", "count"}, d.Top(n))
}

// top ranks by count descending, then key ascending.
func top(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for k, c := range counts {
		out = append(out, Count{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func writeCounts(dir, name string, header []string, rows []Count) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Key, strconv.Itoa(r.Count)}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}
