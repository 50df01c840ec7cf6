package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestExpandDates(t *testing.T) {
	tests := []struct {
		name    string
		spec    RecurrenceSpec
		want    []string
		wantErr error
	}{
		{
			name: "every day",
			spec: RecurrenceSpec{From: mustDate(t, "2024-05-01"), To: mustDate(t, "2024-05-03")},
			want: []string{"2024-05-01", "2024-05-02", "2024-05-03"},
		},
		{
			name: "single day",
			spec: RecurrenceSpec{From: mustDate(t, "2024-05-01"), To: mustDate(t, "2024-05-01")},
			want: []string{"2024-05-01"},
		},
		{
			name: "weekday mask",
			spec: RecurrenceSpec{From: mustDate(t, "2024-05-01"), To: mustDate(t, "2024-05-14"), Weekdays: []time.Weekday{time.Monday, time.Friday}},
			want: []string{"2024-05-03", "2024-05-06", "2024-05-10", "2024-05-13"},
		},
		{
			name: "exclusions win over mask",
			spec: RecurrenceSpec{
				From:     mustDate(t, "2024-05-01"),
				To:       mustDate(t, "2024-05-14"),
				Weekdays: []time.Weekday{time.Monday, time.Friday},
				Exclude:  []Date{mustDate(t, "2024-05-06"), mustDate(t, "2024-05-07")},
			},
			want: []string{"2024-05-03", "2024-05-10", "2024-05-13"},
		},
		{
			name:    "to before from",
			spec:    RecurrenceSpec{From: mustDate(t, "2024-05-02"), To: mustDate(t, "2024-05-01")},
			wantErr: ErrValidation,
		},
		{
			name:    "missing bounds",
			spec:    RecurrenceSpec{To: mustDate(t, "2024-05-01")},
			wantErr: ErrValidation,
		},
		{
			name: "exactly the cap",
			spec: RecurrenceSpec{From: mustDate(t, "2024-01-01"), To: mustDate(t, "2024-01-01").AddDays(MaxBulkDates - 1)},
		},
		{
			name:    "one past the cap",
			spec:    RecurrenceSpec{From: mustDate(t, "2024-01-01"), To: mustDate(t, "2024-01-01").AddDays(MaxBulkDates)},
			wantErr: ErrTooManyDates,
		},
		{
			name:    "huge range fails fast",
			spec:    RecurrenceSpec{From: mustDate(t, "2000-01-01"), To: mustDate(t, "2999-12-31")},
			wantErr: ErrTooManyDates,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates, err := ExpandDates(tt.spec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Len(t, dates, MaxBulkDates)
				return
			}
			got := make([]string, len(dates))
			for i, d := range dates {
				got[i] = d.String()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday":   time.Monday,
		"Friday":   time.Friday,
		" sun ":    time.Sunday,
		"THU":      time.Thursday,
		"tue":      time.Tuesday,
		"saturday": time.Saturday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseWeekday("funday")
	assert.Error(t, err)
	_, err = ParseWeekday("mo")
	assert.Error(t, err)
}
