package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is the repeat unit offered by the appointment editor.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// previewHorizon bounds Preview for rules without COUNT/UNTIL.
const previewHorizon = 5 * 366 * 24 * time.Hour

var ErrInvalidRule = errors.New("invalid recurrence rule")

var weekdayCodes = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

var weekdayNames = map[string]string{
	"MO": "Mon", "TU": "Tue", "WE": "Wed", "TH": "Thu", "FR": "Fri", "SA": "Sat", "SU": "Sun",
}

// Rule is the recurrence form of the appointment editor.
type Rule struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval,omitempty"`
	// Weekdays are two-letter codes (MO..SU).
	Weekdays []string `json:"weekdays,omitempty"`
	MonthDay int      `json:"month_day,omitempty"`
	Count    int      `json:"count,omitempty"`
	// Until is an inclusive end date (YYYY-MM-DD).
	Until string `json:"until,omitempty"`
}

// Validate checks the form for combinations RFC 5545 or the API rejects.
func (r Rule) Validate() error {
	if _, err := r.freq(); err != nil {
		return err
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidRule)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: count must be positive", ErrInvalidRule)
	}
	if r.Count > 0 && r.Until != "" {
		return fmt.Errorf("%w: count and until are mutually exclusive", ErrInvalidRule)
	}
	if r.MonthDay != 0 && (r.MonthDay < -31 || r.MonthDay > 31) {
		return fmt.Errorf("%w: month_day out of range", ErrInvalidRule)
	}
	for _, d := range r.Weekdays {
		if _, ok := weekdays[strings.ToUpper(d)]; !ok {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, d)
		}
	}
	if r.Until != "" {
		if _, err := time.Parse("2006-01-02", r.Until); err != nil {
			return fmt.Errorf("%w: until: %v", ErrInvalidRule, err)
		}
	}
	return nil
}

func (r Rule) freq() (rrule.Frequency, error) {
	switch r.Frequency {
	case Daily:
		return rrule.DAILY, nil
	case Weekly:
		return rrule.WEEKLY, nil
	case Monthly:
		return rrule.MONTHLY, nil
	case Yearly:
		return rrule.YEARLY, nil
	default:
		return 0, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}
}

func (r Rule) build(dtstart time.Time) (*rrule.RRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	freq, _ := r.freq()

	opt := rrule.ROption{
		Freq:     freq,
		Interval: max(r.Interval, 1),
		Count:    r.Count,
		Dtstart:  dtstart,
	}
	for _, d := range r.Weekdays {
		opt.Byweekday = append(opt.Byweekday, weekdays[strings.ToUpper(d)])
	}
	if r.MonthDay != 0 {
		opt.Bymonthday = []int{r.MonthDay}
	}
	if r.Until != "" {
		until, _ := time.ParseInLocation("2006-01-02", r.Until, dtstart.Location())
		// Inclusive date: allow occurrences any time on that day.
		opt.Until = until.AddDate(0, 0, 1).Add(-time.Second)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return rule, nil
}

// RRule renders the RFC 5545 RRULE value (without the "RRULE:" prefix).
func (r Rule) RRule(dtstart time.Time) (string, error) {
	rule, err := r.build(dtstart)
	if err != nil {
		return "", err
	}
	return rule.OrigOptions.RRuleString(), nil
}

// Preview returns up to n occurrence starts of the rule beginning at dtstart.
func (r Rule) Preview(dtstart time.Time, n int) ([]time.Time, error) {
	rule, err := r.build(dtstart)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []time.Time{}, nil
	}
	occ := rule.Between(dtstart, dtstart.Add(previewHorizon), true)
	if len(occ) > n {
		occ = occ[:n]
	}
	return occ, nil
}

// Describe renders a short human summary, e.g. "Every 2 weeks on Mon, Wed, 5 times".
func (r Rule) Describe() string {
	unit := map[Frequency]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[r.Frequency]
	if unit == "" {
		return ""
	}
	var b strings.Builder
	if r.Interval > 1 {
		fmt.Fprintf(&b, "Every %d %ss", r.Interval, unit)
	} else {
		b.WriteString("Every " + unit)
	}
	if len(r.Weekdays) > 0 {
		names := make([]string, 0, len(r.Weekdays))
		for _, d := range r.Weekdays {
			names = append(names, weekdayNames[strings.ToUpper(d)])
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if r.MonthDay != 0 {
		fmt.Fprintf(&b, " on day %d", r.MonthDay)
	}
	switch {
	case r.Count == 1:
		b.WriteString(", once")
	case r.Count > 1:
		fmt.Fprintf(&b, ", %d times", r.Count)
	case r.Until != "":
		b.WriteString(", until " + r.Until)
	}
	return b.String()
}

// ParseRule converts an RRULE value (as stored on an appointment) back into
// the editor form. A leading "RRULE:" is accepted.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "RRULE:")
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	var r Rule
	switch opt.Freq {
	case rrule.DAILY:
		r.Frequency = Daily
	case rrule.WEEKLY:
		r.Frequency = Weekly
	case rrule.MONTHLY:
		r.Frequency = Monthly
	case rrule.YEARLY:
		r.Frequency = Yearly
	default:
		return Rule{}, fmt.Errorf("%w: unsupported frequency in %q", ErrInvalidRule, s)
	}
	if opt.Interval > 1 {
		r.Interval = opt.Interval
	}
	for i := range opt.Byweekday {
		day := opt.Byweekday[i].Day()
		if day >= 0 && day < len(weekdayCodes) {
			r.Weekdays = append(r.Weekdays, weekdayCodes[day])
		}
	}
	if len(opt.Bymonthday) > 0 {
		r.MonthDay = opt.Bymonthday[0]
	}
	r.Count = opt.Count
	if !opt.Until.IsZero() {
		r.Until = opt.Until.Format("2006-01-02")
	}
	return r, nil
}
