package pharma

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultFormulary lists the medications commonly dispensed in outpatient
// consultations. Deployments extend or replace it with [LoadFormulary].
var DefaultFormulary = []string{
	"Paracetamol",
	"Ibuprofen",
	"Aspirin",
	"Amoxicillin",
	"Azithromycin",
	"Ciprofloxacin",
	"Cetirizine",
	"Loratadine",
	"Omeprazole",
	"Pantoprazole",
	"Ranitidine",
	"Metformin",
	"Amlodipine",
	"Atorvastatin",
	"Salbutamol",
	"Montelukast",
	"Dextromethorphan",
	"Chlorpheniramine",
	"Diclofenac",
	"Ondansetron",
}

// LoadFormulary reads one canonical drug name per line from path. Blank lines
// and lines starting with '#' are skipped.
func LoadFormulary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pharma: open formulary %q: %w", path, err)
	}
	defer f.Close()

	names, err := readFormulary(f)
	if err != nil {
		return nil, fmt.Errorf("pharma: read formulary %q: %w", path, err)
	}
	return names, nil
}

func readFormulary(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}
