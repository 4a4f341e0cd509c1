package donations

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/tui/components"
)

// ScreeningForm collects the medical screening recorded when a donation is
// approved.
type ScreeningForm struct {
	donation *models.Donation

	hemoglobin  *components.Input
	systolic    *components.Input
	diastolic   *components.Input
	temperature *components.Input
	pulse       *components.Input
	weight      *components.Input
	screenedBy  *components.Input
	notes       *components.Input

	focusIndex int
	fields     []components.FormField
	submitted  bool
	cancelled  bool
	err        string
}

// NewScreeningForm creates a screening form for donation. Weight is
// prefilled from the donor record when it was joined.
func NewScreeningForm(donation *models.Donation, screener string) *ScreeningForm {
	f := &ScreeningForm{
		donation: donation,

		hemoglobin:  components.NewInput("Hemoglobin").SetRequired(true).SetWidth(6).SetMaxLength(5).SetPlaceholder("g/dL"),
		systolic:    components.NewInput("Systolic").SetRequired(true).SetWidth(4).SetMaxLength(3).SetPlaceholder("mmHg"),
		diastolic:   components.NewInput("Diastolic").SetRequired(true).SetWidth(4).SetMaxLength(3).SetPlaceholder("mmHg"),
		temperature: components.NewInput("Temperature").SetRequired(true).SetWidth(5).SetMaxLength(4).SetPlaceholder("C"),
		pulse:       components.NewInput("Pulse").SetRequired(true).SetWidth(4).SetMaxLength(3).SetPlaceholder("bpm"),
		weight:      components.NewInput("Weight").SetRequired(true).SetWidth(6).SetMaxLength(5).SetPlaceholder("kg"),
		screenedBy:  components.NewInput("Screened By").SetRequired(true).SetWidth(25).SetValue(screener),
		notes:       components.NewInput("Notes").SetWidth(40),
	}
	if donation != nil && donation.Donor != nil && donation.Donor.WeightKg > 0 {
		f.weight.SetValue(strconv.FormatFloat(donation.Donor.WeightKg, 'f', 1, 64))
	}

	f.fields = []components.FormField{
		f.hemoglobin,
		f.systolic,
		f.diastolic,
		f.temperature,
		f.pulse,
		f.weight,
		f.screenedBy,
		f.notes,
	}
	f.fields[0].Focus(true)

	return f
}

// Donation returns the donation under review.
func (f *ScreeningForm) Donation() *models.Donation {
	return f.donation
}

// HandleKey handles key input.
func (f *ScreeningForm) HandleKey(key string) {
	switch key {
	case "tab", "down":
		f.nextField()
	case "shift+tab", "up":
		f.prevField()
	case "ctrl+s":
		f.submit()
	case "esc":
		f.cancelled = true
	case "enter":
		if f.focusIndex == len(f.fields)-1 {
			f.submit()
		} else {
			f.nextField()
		}
	default:
		f.fields[f.focusIndex].HandleKey(key)
	}
}

func (f *ScreeningForm) nextField() {
	f.fields[f.focusIndex].Focus(false)
	f.focusIndex = (f.focusIndex + 1) % len(f.fields)
	f.fields[f.focusIndex].Focus(true)
}

func (f *ScreeningForm) prevField() {
	f.fields[f.focusIndex].Focus(false)
	f.focusIndex--
	if f.focusIndex < 0 {
		f.focusIndex = len(f.fields) - 1
	}
	f.fields[f.focusIndex].Focus(true)
}

func (f *ScreeningForm) submit() {
	f.err = ""

	valid := true
	for _, in := range []*components.Input{f.hemoglobin, f.systolic, f.diastolic, f.temperature, f.pulse, f.weight, f.screenedBy} {
		if !in.Validate() {
			valid = false
		}
	}
	if !valid {
		f.err = "Please fill in all required fields"
		return
	}

	if _, err := f.GetData(time.Time{}); err != nil {
		f.err = err.Error()
		return
	}

	f.submitted = true
}

// SetError shows err under the form and lets the operator correct it.
func (f *ScreeningForm) SetError(err string) {
	f.err = err
	f.submitted = false
}

// IsSubmitted returns true if the form was submitted.
func (f *ScreeningForm) IsSubmitted() bool {
	return f.submitted
}

// IsCancelled returns true if the form was cancelled.
func (f *ScreeningForm) IsCancelled() bool {
	return f.cancelled
}

// GetData parses the form into a screening dated now. Thresholds are left to
// the donation service so the rules live in one place.
func (f *ScreeningForm) GetData(now time.Time) (*models.MedicalScreening, error) {
	hemoglobin, err := parseFloat("hemoglobin", f.hemoglobin.Value())
	if err != nil {
		return nil, err
	}
	systolic, err := parseInt("systolic pressure", f.systolic.Value())
	if err != nil {
		return nil, err
	}
	diastolic, err := parseInt("diastolic pressure", f.diastolic.Value())
	if err != nil {
		return nil, err
	}
	temperature, err := parseFloat("temperature", f.temperature.Value())
	if err != nil {
		return nil, err
	}
	pulse, err := parseInt("pulse", f.pulse.Value())
	if err != nil {
		return nil, err
	}
	weight, err := parseFloat("weight", f.weight.Value())
	if err != nil {
		return nil, err
	}

	return &models.MedicalScreening{
		Hemoglobin:    hemoglobin,
		BloodPressure: models.BloodPressure{Systolic: systolic, Diastolic: diastolic},
		Temperature:   temperature,
		Pulse:         pulse,
		WeightKg:      weight,
		ScreenedBy:    strings.TrimSpace(f.screenedBy.Value()),
		ScreeningDate: now,
		Notes:         f.notes.Value(),
	}, nil
}

func parseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}

func parseInt(field, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}

// Render renders the form with default width.
func (f *ScreeningForm) Render() string {
	return f.RenderResponsive(0)
}

// RenderResponsive renders the form adapted to the given terminal width.
func (f *ScreeningForm) RenderResponsive(width int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))

	labelWidth := 16
	if width > 0 && width < 60 {
		labelWidth = 12
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Width(labelWidth)

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ APPROVE DONATION ═══"))
	b.WriteString("\n\n")

	if d := f.donation; d != nil {
		b.WriteString(labelStyle.Render("Donation:") + " " +
			valueStyle.Render(fmt.Sprintf("%s  %s  %d ml", d.ID, d.BloodType, d.Quantity)))
		b.WriteString("\n\n")
	}

	b.WriteString(f.hemoglobin.RenderWithLabelWidth(labelWidth))
	b.WriteString("\n")

	if width > 0 && width < 60 {
		b.WriteString(labelStyle.Render("BP:"))
	} else {
		b.WriteString(labelStyle.Render("Blood Pressure:"))
	}
	b.WriteString(" ")
	b.WriteString(f.systolic.RenderWithLabelWidth(0))
	b.WriteString(" / ")
	b.WriteString(f.diastolic.RenderWithLabelWidth(0))
	b.WriteString("\n")

	b.WriteString(f.temperature.RenderWithLabelWidth(labelWidth))
	b.WriteString("\n")
	b.WriteString(f.pulse.RenderWithLabelWidth(labelWidth))
	b.WriteString("\n")
	b.WriteString(f.weight.RenderWithLabelWidth(labelWidth))
	b.WriteString("\n\n")

	b.WriteString(f.screenedBy.RenderWithLabelWidth(labelWidth))
	b.WriteString("\n")
	b.WriteString(f.notes.RenderWithLabelWidth(labelWidth))
	b.WriteString("\n")

	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("Error: " + f.err))
	}

	b.WriteString("\n\n")
	if width > 0 && width < 60 {
		b.WriteString(helpStyle.Render("Tab:Next  Ctrl+S:Save  Esc:Cancel"))
	} else {
		b.WriteString(helpStyle.Render("Tab/Down:Next  Shift+Tab/Up:Prev  Ctrl+S:Approve  Esc:Cancel"))
	}

	return b.String()
}
