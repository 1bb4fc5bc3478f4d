package prescription_test

import (
	"strings"
	"testing"

	"github.com/arogyalabs/medscribe/internal/attribution"
	"github.com/arogyalabs/medscribe/internal/pharma"
	"github.com/arogyalabs/medscribe/internal/prescription"
)

func consultation() []attribution.Turn {
	return []attribution.Turn{
		{Speaker: attribution.RoleDoctor, Text: "Good morning, Mrs. Sharma. What brings you in today?"},
		{Speaker: attribution.RolePatient, Text: "I have had a fever and a sore throat since Tuesday, and a headache."},
		{Speaker: attribution.RoleDoctor, Text: "Any cough? Let me examine your throat."},
		{Speaker: attribution.RolePatient, Text: "Yes, a dry cough at night."},
		{Speaker: attribution.RoleDoctor, Text: "Take para cetamol 500mg twice a day for 3 days. Drink plenty of fluids and take rest."},
	}
}

func TestExtractFullConsultation(t *testing.T) {
	t.Parallel()

	matcher := pharma.New(pharma.DefaultFormulary)
	p := prescription.NewExtractor(matcher).Extract(consultation())

	if p.PatientName != "Sharma" {
		t.Errorf("PatientName = %q, want %q", p.PatientName, "Sharma")
	}
	for _, want := range []string{"fever", "sore throat", "headache", "cough"} {
		if !contains(p.Symptoms, want) {
			t.Errorf("Symptoms = %v, missing %q", p.Symptoms, want)
		}
	}

	if len(p.Medications) != 1 {
		t.Fatalf("Medications = %+v, want exactly one", p.Medications)
	}
	med := p.Medications[0]
	if med.Name != "Paracetamol" {
		t.Errorf("Name = %q, want Paracetamol (corrected from split syllables)", med.Name)
	}
	if !med.Corrected {
		t.Error("Corrected = false, want true for a rewritten name")
	}
	if med.Dosage != "500mg" {
		t.Errorf("Dosage = %q, want 500mg", med.Dosage)
	}
	if med.Frequency != "twice a day" {
		t.Errorf("Frequency = %q, want \"twice a day\"", med.Frequency)
	}
	if med.Duration != "for 3 days" {
		t.Errorf("Duration = %q, want \"for 3 days\"", med.Duration)
	}

	if !contains(p.Advice, "take rest") || !contains(p.Advice, "drink plenty of fluids") {
		t.Errorf("Advice = %v, want rest and fluids", p.Advice)
	}
}

func TestExtractSymptomsOnlyFromPatientTurns(t *testing.T) {
	t.Parallel()

	turns := []attribution.Turn{
		{Speaker: attribution.RoleDoctor, Text: "Do you have fever or cough?"},
		{Speaker: attribution.RolePatient, Text: "No, just a headache."},
	}
	p := prescription.NewExtractor(nil).Extract(turns)

	if contains(p.Symptoms, "fever") || contains(p.Symptoms, "cough") {
		t.Errorf("Symptoms = %v, doctor's screening question must not contribute", p.Symptoms)
	}
	if !contains(p.Symptoms, "headache") {
		t.Errorf("Symptoms = %v, want headache from the patient's answer", p.Symptoms)
	}
}

func TestExtractNilMatcherKeepsDictatedName(t *testing.T) {
	t.Parallel()

	turns := []attribution.Turn{
		{Speaker: attribution.RoleDoctor, Text: "Start ibuprofin 400mg once a day."},
	}
	p := prescription.NewExtractor(nil).Extract(turns)

	if len(p.Medications) != 1 {
		t.Fatalf("Medications = %+v, want one", p.Medications)
	}
	if got := p.Medications[0]; got.Name != "ibuprofin" || got.Corrected {
		t.Errorf("Medication = %+v, want verbatim uncorrected name", got)
	}
}

func TestExtractDeduplicatesSymptoms(t *testing.T) {
	t.Parallel()

	turns := []attribution.Turn{
		{Speaker: attribution.RolePatient, Text: "The fever started Monday."},
		{Speaker: attribution.RolePatient, Text: "The fever gets worse at night."},
	}
	p := prescription.NewExtractor(nil).Extract(turns)

	count := 0
	for _, s := range p.Symptoms {
		if s == "fever" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Symptoms = %v, want fever listed once", p.Symptoms)
	}
}

func TestExtractEmptyTurns(t *testing.T) {
	t.Parallel()

	p := prescription.NewExtractor(nil).Extract(nil)
	if !p.Empty() {
		t.Errorf("Extract(nil) = %+v, want empty prescription", p)
	}
}

func TestRenderIncludesEverySection(t *testing.T) {
	t.Parallel()

	p := prescription.Prescription{
		PatientName: "Rao",
		Symptoms:    []string{"fever"},
		Medications: []prescription.Medication{{
			Name: "Paracetamol", Dosage: "500mg", Frequency: "twice a day",
		}},
		Advice: []string{"take rest"},
	}

	out := p.Render()
	for _, want := range []string{"Patient: Rao", "fever", "Paracetamol 500mg, twice a day", "take rest"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
